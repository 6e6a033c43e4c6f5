package dbginfo

import (
	"debug/dwarf"
	"io"
	"sort"

	"github.com/aclements/nrgprof/errtag"
)

// SourceLine is one `.debug_line` row: file, line, column, address,
// is-statement, is-block-start, is-end-sequence, and
// prologue-end/epilogue-begin flags. Grounded on dwarf.LineEntry,
// which already has this exact shape (see
// perfsession/symbolize.go:dwarfLineTable); dbginfo reuses
// dwarf.LineEntry directly rather than redeclaring its fields.
type SourceLine = dwarf.LineEntry

// FuncAddresses is the concrete address range set of a non-inline
// function: an entry PC plus one or more contiguous ranges. Grounded
// on original_source/src/dbg/dwarf.cpp:function_addresses.
type FuncAddresses struct {
	EntryPC uint64
	Ranges  []Range
}

// DeclLocation is a function's declaration source position, grounded
// on original_source/src/dbg/dwarf.cpp:source_location's decl_param
// constructor (DW_AT_decl_file/_line/_column).
type DeclLocation struct {
	File   string
	Line   uint32
	Column uint32
}

// CallLocation is an inline instance's call-site source position,
// grounded on source_location's call_param constructor
// (DW_AT_call_file/_line/_column).
type CallLocation struct {
	File   string
	Line   uint32
	Column uint32
}

// InlineInstance is one inlined copy of a function: an optional entry
// PC, the call site it was inlined at, and the address range(s) the
// inlined code occupies. Grounded on
// original_source/src/dbg/dwarf.cpp:inline_instance.
type InlineInstance struct {
	EntryPC  uint64
	HasEntry bool
	CallLoc  CallLocation
	Ranges   []Range
}

// Function is one DW_TAG_subprogram DIE (or, for pure inlines, the
// abstract instance tying its concrete inline copies together).
// Exactly one of Concrete or Inlines is populated, mirroring the
// `static_function::data_t` variant in
// original_source/src/dbg/dwarf.cpp.
type Function struct {
	DIEName     string
	LinkageName string // mangled name; empty for static/local functions
	HasDecl     bool
	Decl        DeclLocation

	Concrete *FuncAddresses   // non-nil for a normal, non-inline function
	Inlines  []InlineInstance // non-empty for an inline-only function
}

// IsStatic reports whether the function has no linkage (mangled) name
// and so can only be looked up by its DIE name, per
// original_source/src/dbg/dwarf.cpp:load_functions's is_static check.
func (f *Function) IsStatic() bool { return f.LinkageName == "" }

// CompileUnit is one DW_TAG_compile_unit, with its canonical path, PC
// ranges, full line table, and function index. Grounded on
// original_source/src/dbg/dwarf.cpp:compilation_unit.
type CompileUnit struct {
	Path   string
	Ranges []Range
	Lines  []SourceLine
	Funcs  []*Function
}

func loadCompileUnits(d *dwarf.Data) ([]*CompileUnit, error) {
	var cus []*CompileUnit
	r := d.Reader()
	for {
		ent, err := r.Next()
		if err != nil {
			return nil, errtag.Wrap(errtag.Setup, "dbginfo: reading DWARF", err)
		}
		if ent == nil {
			break
		}
		if ent.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		cu := &CompileUnit{
			Path: cuPath(ent),
		}
		ranges, err := d.Ranges(ent)
		if err != nil {
			return nil, errtag.Wrap(errtag.Setup, "dbginfo: reading CU ranges", err)
		}
		cu.Ranges = rangesFromDwarf(ranges)

		lines, files, err := loadLineTable(d, ent)
		if err != nil {
			return nil, err
		}
		cu.Lines = lines

		// DW_AT_decl_file / DW_AT_call_file are indices into this same
		// CU's line-table file register, per DWARF §2.14; resolve them
		// against the table the line reader just built, matching what
		// elfutils's dwarf_decl_file/dwarf_filesrc do internally.
		funcs, err := loadFunctions(d, r, files)
		if err != nil {
			return nil, err
		}
		cu.Funcs = funcs

		cus = append(cus, cu)
	}
	return cus, nil
}

// cuPath builds comp_dir/name, grounded on
// original_source/src/dbg/dwarf.cpp:build_path.
func cuPath(cu *dwarf.Entry) string {
	dir, _ := cu.Val(dwarf.AttrCompDir).(string)
	name, _ := cu.Val(dwarf.AttrName).(string)
	if dir == "" {
		return name
	}
	if name == "" {
		return dir
	}
	return dir + "/" + name
}

// loadLineTable decodes one CU's `.debug_line` program in full via
// stdlib debug/dwarf.LineReader, grounded directly on
// perfsession/symbolize.go:dwarfLineTable. It also returns the CU's
// resolved file-name table, used to turn DW_AT_decl_file and
// DW_AT_call_file indices into paths.
func loadLineTable(d *dwarf.Data, cu *dwarf.Entry) ([]SourceLine, []*dwarf.LineFile, error) {
	lr, err := d.LineReader(cu)
	if err != nil {
		return nil, nil, errtag.Wrap(errtag.Setup, "dbginfo: reading line table", err)
	}
	if lr == nil {
		return nil, nil, nil
	}
	var out []SourceLine
	for {
		var lent dwarf.LineEntry
		if err := lr.Next(&lent); err != nil {
			if err == io.EOF {
				break
			}
			return nil, nil, errtag.Wrap(errtag.Setup, "dbginfo: reading line table entry", err)
		}
		out = append(out, lent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, lr.Files(), nil
}

// loadFunctions walks the children of the compile unit entry r is
// currently positioned after, collecting every DW_TAG_subprogram,
// grounded on original_source/src/dbg/dwarf.cpp:load_functions. Unlike
// perfsession's dwarfFuncTable (which explicitly skips
// DW_TAG_inlined_subroutine because "apparently gc doesn't produce
// these"), this walks inline instances too: nrgprof's targets are
// C/C++ binaries, which routinely inline.
func loadFunctions(d *dwarf.Data, r *dwarf.Reader, files []*dwarf.LineFile) ([]*Function, error) {
	var funcs []*Function
	depth := 0
	for {
		ent, err := r.Next()
		if err != nil {
			return nil, errtag.Wrap(errtag.Setup, "dbginfo: reading DWARF", err)
		}
		if ent == nil {
			return funcs, nil
		}
		if ent.Tag == 0 {
			if depth == 0 {
				return funcs, nil
			}
			depth--
			continue
		}

		if ent.Tag != dwarf.TagSubprogram {
			if ent.Children {
				depth++
			}
			continue
		}

		fn, abstract, err := newFunction(d, ent, files)
		if err != nil {
			return nil, err
		}
		if ent.Children {
			// Walk this subprogram's children looking for
			// DW_TAG_inlined_subroutine entries belonging to it.
			kids, err := readInlineInstances(d, r, files)
			if err != nil {
				return nil, err
			}
			if abstract {
				fn.Inlines = kids
				if len(kids) == 0 {
					// An abstract inline instance with no concrete
					// instantiation in this CU carries nothing
					// queryable; drop it, matching load_functions's
					// "if (is_inline && get_inline_instance_count ==
					// 0) continue".
					continue
				}
			}
		} else if fn.Concrete == nil {
			continue
		}
		funcs = append(funcs, fn)
	}
}

// fileName resolves a DW_AT_decl_file/DW_AT_call_file index against
// the CU's line-table file register, matching what elfutils's
// dwarf_decl_file/dwarf_filesrc do internally against the same table.
func fileName(files []*dwarf.LineFile, idx int64) (string, bool) {
	if idx < 0 || int(idx) >= len(files) || files[idx] == nil {
		return "", false
	}
	return files[idx].Name, true
}

// newFunction builds a Function from a DW_TAG_subprogram entry, not
// yet populating Inlines (the caller does that after walking
// children). The second return value reports whether this DIE is
// itself abstract-inline (no DW_AT_low_pc), which needs its children
// scanned for DW_TAG_inlined_subroutine entries.
func newFunction(d *dwarf.Data, ent *dwarf.Entry, files []*dwarf.LineFile) (*Function, bool, error) {
	fn := &Function{}
	if name, ok := ent.Val(dwarf.AttrName).(string); ok {
		fn.DIEName = name
	}
	if ln, ok := ent.Val(dwarf.AttrLinkageName).(string); ok {
		fn.LinkageName = ln
	}
	if idx, ok := ent.Val(dwarf.AttrDeclFile).(int64); ok {
		if file, ok := fileName(files, idx); ok {
			fn.HasDecl = true
			fn.Decl.File = file
		}
	}
	if ln, ok := ent.Val(dwarf.AttrDeclLine).(int64); ok {
		fn.Decl.Line = uint32(ln)
	}
	if col, ok := ent.Val(dwarf.AttrDeclColumn).(int64); ok {
		fn.Decl.Column = uint32(col)
	}

	lowpc, hasLow := ent.Val(dwarf.AttrLowpc).(uint64)
	if !hasLow {
		// Abstract inline instance: no PC range of its own.
		return fn, true, nil
	}

	// Concrete functions may have either a single contiguous range
	// (DW_AT_low_pc/DW_AT_high_pc) or several (DW_AT_ranges).
	ranges, err := d.Ranges(ent)
	if err != nil {
		return nil, false, errtag.Wrap(errtag.Setup, "dbginfo: reading function ranges", err)
	}
	var rngs []Range
	if len(ranges) > 0 {
		rngs = rangesFromDwarf(ranges)
	} else {
		var highpc uint64
		switch v := ent.Val(dwarf.AttrHighpc).(type) {
		case uint64:
			highpc = v
		case int64:
			highpc = lowpc + uint64(v)
		}
		rngs = []Range{{lowpc, highpc}}
	}
	var entryPC uint64
	if ep, ok := ent.Val(dwarf.AttrEntrypc).(uint64); ok {
		entryPC = ep
	} else {
		entryPC = lowpc
	}
	fn.Concrete = &FuncAddresses{
		EntryPC: entryPC,
		Ranges:  rngs,
	}
	return fn, false, nil
}

// readInlineInstances scans the children of the current subprogram
// (the reader r is positioned right after its opening entry) for
// DW_TAG_inlined_subroutine entries, building one InlineInstance per
// match, grounded on
// original_source/src/dbg/dwarf.cpp:get_inline_instances.
func readInlineInstances(d *dwarf.Data, r *dwarf.Reader, files []*dwarf.LineFile) ([]InlineInstance, error) {
	var out []InlineInstance
	depth := 0
	for {
		ent, err := r.Next()
		if err != nil {
			return nil, errtag.Wrap(errtag.Setup, "dbginfo: reading DWARF", err)
		}
		if ent == nil {
			return out, nil
		}
		if ent.Tag == 0 {
			if depth == 0 {
				return out, nil
			}
			depth--
			continue
		}
		if ent.Children {
			depth++
		}
		if ent.Tag != dwarf.TagInlinedSubroutine {
			continue
		}

		inst := InlineInstance{}
		if idx, ok := ent.Val(dwarf.AttrCallFile).(int64); ok {
			if file, ok := fileName(files, idx); ok {
				inst.CallLoc.File = file
			}
		}
		if ln, ok := ent.Val(dwarf.AttrCallLine).(int64); ok {
			inst.CallLoc.Line = uint32(ln)
		}
		if col, ok := ent.Val(dwarf.AttrCallColumn).(int64); ok {
			inst.CallLoc.Column = uint32(col)
		}
		if ep, ok := ent.Val(dwarf.AttrEntrypc).(uint64); ok {
			inst.EntryPC = ep
			inst.HasEntry = true
		}

		ranges, err := d.Ranges(ent)
		if err != nil {
			return nil, errtag.Wrap(errtag.Setup, "dbginfo: reading inline instance ranges", err)
		}
		if len(ranges) > 0 {
			inst.Ranges = rangesFromDwarf(ranges)
		} else if lowpc, ok := ent.Val(dwarf.AttrLowpc).(uint64); ok {
			var highpc uint64
			switch v := ent.Val(dwarf.AttrHighpc).(type) {
			case uint64:
				highpc = v
			case int64:
				highpc = lowpc + uint64(v)
			}
			inst.Ranges = []Range{{lowpc, highpc}}
		}
		out = append(out, inst)
	}
}
