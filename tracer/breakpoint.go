package tracer

import "github.com/aclements/nrgprof/errtag"

// installTrap overwrites the word at addr with the architecture's
// trap instruction and returns the original bytes spanning exactly
// the instruction's width: PEEKDATA the word, overwrite its leading
// byte(s) with the trap instruction, POKEDATA the modified word,
// remember the original.
func installTrap(tid int, addr uint64, a breakpointInstr) ([]byte, error) {
	word, err := peekWord(tid, addr)
	if err != nil {
		return nil, err
	}
	orig := make([]byte, len(a.instr))
	buf := make([]byte, wordSize)
	hostEndian.PutUint64(buf, word)
	copy(orig, buf[:len(a.instr)])

	copy(buf, a.instr)
	if err := pokeWord(tid, addr, hostEndian.Uint64(buf)); err != nil {
		return nil, err
	}
	return orig, nil
}

// restoreTrap writes saved back over the trap instruction at addr, so
// the tracee can single-step over its original instruction before the
// trap byte is reinstalled once it has moved past.
func restoreTrap(tid int, addr uint64, saved []byte) error {
	word, err := peekWord(tid, addr)
	if err != nil {
		return err
	}
	buf := make([]byte, wordSize)
	hostEndian.PutUint64(buf, word)
	copy(buf, saved)
	return pokeWord(tid, addr, hostEndian.Uint64(buf))
}

// readCString reads a NUL-terminated string out of tid's address
// space one word at a time via PEEKDATA, for pulling the pathname
// argument of an execve syscall-entry stop out of tracee memory.
func readCString(tid int, addr uint64) (string, error) {
	const maxLen = 4096 // matches Linux's PATH_MAX
	var out []byte
	for len(out) < maxLen {
		word, err := peekWord(tid, addr+uint64(len(out)))
		if err != nil {
			return "", err
		}
		buf := make([]byte, wordSize)
		hostEndian.PutUint64(buf, word)
		for _, b := range buf {
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
		}
	}
	return "", errtag.New(errtag.Read, "tracer: execve pathname exceeds PATH_MAX")
}
