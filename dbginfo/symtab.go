package dbginfo

import (
	"debug/elf"
	"sort"

	"github.com/aclements/nrgprof/errtag"
)

// SymbolBinding is an ELF symbol's STB_* binding, restricted to the
// three bindings a function symbol can carry.
type SymbolBinding uint8

const (
	BindLocal SymbolBinding = iota
	BindGlobal
	BindWeak
)

func (b SymbolBinding) String() string {
	switch b {
	case BindLocal:
		return "local"
	case BindGlobal:
		return "global"
	case BindWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// FunctionSymbol is one STT_FUNC entry from the ELF symbol table. It
// is grounded on the C++ `function_symbol` type in
// original_source/src/dbg/elf.cpp, which captures exactly this set of
// fields from the same libelf symbol record.
type FunctionSymbol struct {
	Name       string
	Address    uint64
	Size       uint64
	Binding    SymbolBinding
	Visibility elf.SymVis
	StOther    uint8
}

// LocalEntry returns the function's local entry point: on ppc64 ELFv2
// binaries this can differ from Address by a fixed offset encoded in
// st_other (the global entry point sets up the TOC pointer; the local
// entry point skips that prologue for calls that already have r2
// set). On every other architecture it is Address.
//
// This is the ELFv2 ABI's PPC64_LOCAL_ENTRY_OFFSET macro, grounded on
// original_source/src/dbg/elf.cpp:function_symbol::local_entrypoint.
func (s FunctionSymbol) LocalEntry(machine elf.Machine) uint64 {
	if machine != elf.EM_PPC64 {
		return s.Address
	}
	const (
		stoPPC64LocalMask = 0xe0
		stoPPC64LocalBit  = 5
	)
	idx := (s.StOther & stoPPC64LocalMask) >> stoPPC64LocalBit
	offset := uint64((1 << idx) >> 2 << 2)
	return s.Address + offset
}

// loadFunctionSymbols walks f's SHT_SYMTAB, keeping STT_FUNC entries
// with binding in {LOCAL, GLOBAL, WEAK} and a defined section index,
// sorted by (Name, Address). Grounded on perfsession/symbolize.go's
// use of debug/elf and on original_source/src/dbg/elf.cpp's
// function_symbol constructor for which fields and filters matter.
func loadFunctionSymbols(f *elf.File) ([]FunctionSymbol, error) {
	syms, err := f.Symbols()
	if err != nil {
		if err == elf.ErrNoSymbols {
			return nil, nil
		}
		return nil, errtag.Wrap(errtag.Setup, "dbginfo: reading ELF symbol table", err)
	}

	out := make([]FunctionSymbol, 0, len(syms))
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
			continue
		}
		if sym.Section == elf.SHN_UNDEF {
			continue
		}
		var binding SymbolBinding
		switch elf.ST_BIND(sym.Info) {
		case elf.STB_LOCAL:
			binding = BindLocal
		case elf.STB_GLOBAL:
			binding = BindGlobal
		case elf.STB_WEAK:
			binding = BindWeak
		default:
			continue
		}
		out = append(out, FunctionSymbol{
			Name:       sym.Name,
			Address:    sym.Value,
			Size:       sym.Size,
			Binding:    binding,
			Visibility: elf.ST_VISIBILITY(sym.Other),
			StOther:    sym.Other,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}
