//go:build amd64

package tracer

import "syscall"

// pc/setPC isolate the one register-layout difference between the
// two architectures nrgprof targets: syscall.PtraceRegs's program
// counter field is named differently per GOARCH (Rip here, Nip on
// ppc64le in regs_ppc64le.go).
func pc(regs *syscall.PtraceRegs) uint64 { return regs.Rip }

func setPC(regs *syscall.PtraceRegs, v uint64) { regs.Rip = v }

// syscallNum/syscallArg1 read the in-flight syscall number and its
// first argument at a PTRACE_SYSCALL-entry stop, per the amd64 System
// V syscall ABI (number in orig_rax, first argument in rdi).
func syscallNum(regs *syscall.PtraceRegs) uint64  { return regs.Orig_rax }
func syscallArg1(regs *syscall.PtraceRegs) uint64 { return regs.Rdi }
