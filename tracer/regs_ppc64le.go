//go:build ppc64le

package tracer

import "syscall"

// See regs_amd64.go. ppc64le is the architecture OCC-bearing POWER
// systems actually run Linux on; syscall.PtraceRegs on this GOARCH
// names the program counter Nip ("next instruction pointer").
func pc(regs *syscall.PtraceRegs) uint64 { return regs.Nip }

func setPC(regs *syscall.PtraceRegs, v uint64) { regs.Nip = v }

// syscallNum/syscallArg1 read the in-flight syscall number and its
// first argument at a PTRACE_SYSCALL-entry stop, per the ppc64 Linux
// syscall ABI: the number is in r0, and the first argument is
// preserved in orig_gpr3 since r3 itself is clobbered with the return
// value on syscall exit.
func syscallNum(regs *syscall.PtraceRegs) uint64  { return regs.Gpr[0] }
func syscallArg1(regs *syscall.PtraceRegs) uint64 { return regs.Orig_gpr3 }
