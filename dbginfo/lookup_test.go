package dbginfo

import (
	"debug/dwarf"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/nrgprof/errtag"
)

func lineFile(name string) *dwarf.LineFile { return &dwarf.LineFile{Name: name} }

func line(addr uint64, file *dwarf.LineFile, lineNo, col int, isStmt, prologueEnd bool) SourceLine {
	return SourceLine{Address: addr, File: file, Line: lineNo, Column: col, IsStmt: isStmt, PrologueEnd: prologueEnd}
}

func TestFindCompileUnitByAddr(t *testing.T) {
	cu1 := &CompileUnit{Path: "a.c", Ranges: []Range{{0x1000, 0x2000}}}
	cu2 := &CompileUnit{Path: "b.c", Ranges: []Range{{0x2000, 0x3000}}}
	idx := &Index{CUs: []*CompileUnit{cu1, cu2}}

	got, err := idx.FindCompileUnitByAddr(0x1500)
	require.NoError(t, err)
	assert.Same(t, cu1, got)

	got, err = idx.FindCompileUnitByAddr(0x2500)
	require.NoError(t, err)
	assert.Same(t, cu2, got)

	_, err = idx.FindCompileUnitByAddr(0x5000)
	assertLookupKind(t, err, NotFound)
}

func TestFindCompileUnitByPathAmbiguous(t *testing.T) {
	idx := &Index{CUs: []*CompileUnit{
		{Path: "/src/foo/main.c"},
		{Path: "/src/bar/main.c"},
	}}

	_, err := idx.FindCompileUnitByPath("main.c")
	assertLookupKind(t, err, Ambiguous)

	got, err := idx.FindCompileUnitByPath("foo/main.c")
	require.NoError(t, err)
	assert.Equal(t, "/src/foo/main.c", got.Path)

	_, err = idx.FindCompileUnitByPath("nope.c")
	assertLookupKind(t, err, NotFound)
}

func TestFindLinesExactAndGreater(t *testing.T) {
	f := lineFile("main.c")
	cu := &CompileUnit{
		Path: "main.c",
		Lines: []SourceLine{
			line(0x10, f, 4, 1, true, false),
			line(0x14, f, 5, 1, true, false),
			line(0x18, f, 5, 3, false, false),
			line(0x1c, f, 6, 1, true, false),
		},
	}

	lines, err := FindLines(cu, "", 5, true, 0, false)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, uint64(0x14), lines[0].Address)
	assert.Equal(t, uint64(0x18), lines[1].Address)

	lines, err = FindLines(cu, "", 5, false, 0, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x14), lines[0].Address)

	_, err = FindLines(cu, "", 99, true, 0, false)
	assertLookupKind(t, err, NotFound)

	_, err = FindLines(cu, "other.c", 5, true, 0, false)
	assertLookupKind(t, err, NotFound)
}

func TestLowestHighestAddressLine(t *testing.T) {
	f := lineFile("main.c")
	lines := []SourceLine{
		line(0x10, f, 5, 0, false, false),
		line(0x14, f, 5, 0, true, false),
		line(0x18, f, 5, 0, false, false),
	}

	low, err := LowestAddressLine(lines, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x10), low.Address)

	low, err = LowestAddressLine(lines, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x14), low.Address)

	high, err := HighestAddressLine(lines, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x18), high.Address)

	high, err = HighestAddressLine(lines, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x14), high.Address)

	_, err = HighestAddressLine(nil, false)
	assertLookupKind(t, err, NotFound)
}

func TestFindFunctionSymbolAmbiguity(t *testing.T) {
	idx := &Index{Symbols: []FunctionSymbol{
		{Name: "_Z3foov", Address: 0x100, Binding: BindGlobal},
	}}
	sym, err := idx.FindFunctionSymbol("foo()")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x100), sym.Address)

	idx.Symbols = append(idx.Symbols, FunctionSymbol{Name: "_Z3foov", Address: 0x200, Binding: BindWeak})
	_, err = idx.FindFunctionSymbol("foo()")
	assertLookupKind(t, err, AmbiguousWeak)

	idx.Symbols[1].Binding = BindLocal
	_, err = idx.FindFunctionSymbol("foo()")
	assertLookupKind(t, err, AmbiguousStatic)

	idx.Symbols[1].Binding = BindGlobal
	_, err = idx.FindFunctionSymbol("foo()")
	assertLookupKind(t, err, Ambiguous)

	_, err = idx.FindFunctionSymbol("bar()")
	assertLookupKind(t, err, NotFound)
}

func TestFindFunctionSymbolMatchedSuffix(t *testing.T) {
	idx := &Index{Symbols: []FunctionSymbol{
		{Name: "_Z3foov", Address: 0x100, Binding: BindGlobal},
		{Name: "_Z3foov.cold", Address: 0x200, Binding: BindGlobal},
	}}

	sym, err := idx.FindFunctionSymbolMatched("foo()", true)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x100), sym.Address)

	sym, err = idx.FindFunctionSymbolMatched("foo()", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x100), sym.Address, "an exact demangled match wins even with no_suffix=false")
}

func TestFindFunctionByAddr(t *testing.T) {
	fn := &Function{DIEName: "foo", Concrete: &FuncAddresses{EntryPC: 0x10, Ranges: []Range{{0x10, 0x30}}}}
	cu := &CompileUnit{Path: "main.c", Funcs: []*Function{fn}}
	idx := &Index{CUs: []*CompileUnit{cu}}

	got, gotCU, err := idx.FindFunctionByAddr(0x20)
	require.NoError(t, err)
	assert.Same(t, fn, got)
	assert.Same(t, cu, gotCU)

	_, _, err = idx.FindFunctionByAddr(0x40)
	assertLookupKind(t, err, NotFound)
}

func TestPrologueEnd(t *testing.T) {
	f := lineFile("main.c")
	fn := &Function{Concrete: &FuncAddresses{EntryPC: 0x10, Ranges: []Range{{0x10, 0x30}}}}
	cu := &CompileUnit{
		Path: "main.c",
		Lines: []SourceLine{
			line(0x10, f, 4, 0, true, false),
			line(0x18, f, 5, 0, true, true),
			line(0x20, f, 6, 0, true, false),
		},
		Funcs: []*Function{fn},
	}

	addr, ok := cu.PrologueEnd(fn)
	require.True(t, ok)
	assert.Equal(t, uint64(0x18), addr)
	assert.Equal(t, uint64(0x18), cu.EntryAddr(fn))

	fnNoPrologue := &Function{Concrete: &FuncAddresses{EntryPC: 0x40, Ranges: []Range{{0x40, 0x50}}}}
	_, ok = cu.PrologueEnd(fnNoPrologue)
	assert.False(t, ok)
	assert.Equal(t, uint64(0x40), cu.EntryAddr(fnNoPrologue))
}

func TestHasDotSuffixAndRemoveSpaces(t *testing.T) {
	assert.True(t, hasDotSuffix("foo.cold"))
	assert.True(t, hasDotSuffix("foo.part.0"))
	assert.False(t, hasDotSuffix("foo"))
	assert.Equal(t, "foo(int)", removeSpaces("foo (int)"))
}

func assertLookupKind(t *testing.T, err error, want LookupErrorKind) {
	t.Helper()
	require.Error(t, err)
	var tagged *errtag.Error
	require.True(t, errors.As(err, &tagged))
	le, ok := tagged.Err.(*LookupError)
	require.True(t, ok, "expected a *LookupError cause, got %T", tagged.Err)
	assert.Equal(t, want, le.Kind)
}
