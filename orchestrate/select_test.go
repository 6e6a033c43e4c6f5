package orchestrate

import (
	"debug/dwarf"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aclements/nrgprof/dbginfo"
)

func lineFile(name string) *dwarf.LineFile { return &dwarf.LineFile{Name: name} }

func srcLine(addr uint64, file *dwarf.LineFile, lineNo int, isStmt, prologueEnd, endSeq bool) dbginfo.SourceLine {
	return dbginfo.SourceLine{Address: addr, File: file, Line: lineNo, IsStmt: isStmt, PrologueEnd: prologueEnd, EndSequence: endSeq}
}

func TestResolveAddrRegion(t *testing.T) {
	idx := &dbginfo.Index{}
	instances, err := resolveAddrRegion(idx, &AddrRegion{Start: 0x1000, End: 0x2000})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, uint64(0x1000), instances[0].start)
	assert.Equal(t, uint64(0x2000), instances[0].end)
	assert.Equal(t, uint64(0x1000), instances[0].startCtx.Addr())
}

func TestResolveFunctionRegionConcrete(t *testing.T) {
	f := lineFile("loop.c")
	fn := &dbginfo.Function{
		DIEName:  "compute",
		HasDecl:  true,
		Decl:     dbginfo.DeclLocation{File: "loop.c", Line: 10},
		Concrete: &dbginfo.FuncAddresses{EntryPC: 0x1000, Ranges: []dbginfo.Range{{0x1000, 0x1100}}},
	}
	cu := &dbginfo.CompileUnit{
		Path:   "loop.c",
		Ranges: []dbginfo.Range{{0x1000, 0x2000}},
		Funcs:  []*dbginfo.Function{fn},
		Lines: []dbginfo.SourceLine{
			srcLine(0x1000, f, 10, true, false, false),
			srcLine(0x1008, f, 11, true, true, false),
			srcLine(0x10f0, f, 20, true, false, false),
			srcLine(0x1100, f, 20, false, false, true),
		},
	}
	idx := &dbginfo.Index{CUs: []*dbginfo.CompileUnit{cu}}

	instances, err := resolveFunctionRegion(idx, &FunctionRegion{Name: "compute", CompileUnit: "loop.c", Exact: true})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, uint64(0x1008), instances[0].start)
	assert.Equal(t, uint64(0x10f0), instances[0].end)

	startCtx, ok := instances[0].startCtx.(interface{ Addr() uint64 })
	require.True(t, ok)
	assert.Equal(t, uint64(0x1008), startCtx.Addr())
}

func TestResolveFunctionRegionInline(t *testing.T) {
	fn := &dbginfo.Function{
		DIEName: "helper",
		Inlines: []dbginfo.InlineInstance{
			{Ranges: []dbginfo.Range{{0x3000, 0x3020}}, CallLoc: dbginfo.CallLocation{File: "loop.c", Line: 42}},
			{Ranges: []dbginfo.Range{{0x4000, 0x4040}}, CallLoc: dbginfo.CallLocation{File: "loop.c", Line: 55}},
		},
	}
	cu := &dbginfo.CompileUnit{
		Path:   "loop.c",
		Ranges: []dbginfo.Range{{0x3000, 0x5000}},
		Funcs:  []*dbginfo.Function{fn},
	}
	idx := &dbginfo.Index{CUs: []*dbginfo.CompileUnit{cu}}

	instances, err := resolveFunctionRegion(idx, &FunctionRegion{Name: "helper", Exact: true})
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, uint64(0x3000), instances[0].start)
	assert.Equal(t, uint64(0x3020), instances[0].end)
	assert.Equal(t, uint64(0x4000), instances[1].start)
	assert.Equal(t, uint64(0x4040), instances[1].end)
}

func TestResolveLineRegion(t *testing.T) {
	f := lineFile("loop.c")
	cu := &dbginfo.CompileUnit{
		Path: "loop.c",
		Lines: []dbginfo.SourceLine{
			srcLine(0x2000, f, 5, true, false, false),
			srcLine(0x2010, f, 6, true, false, false),
			srcLine(0x2020, f, 7, true, false, false),
		},
	}
	idx := &dbginfo.Index{CUs: []*dbginfo.CompileUnit{cu}}

	instances, err := resolveLineRegion(idx, &LineRegion{CompileUnit: "loop.c", File: "loop.c", StartLine: 5, EndLine: 7})
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, uint64(0x2000), instances[0].start)
	assert.Equal(t, uint64(0x2020), instances[0].end)
}

func TestResolveRegionUnknownSelector(t *testing.T) {
	idx := &dbginfo.Index{}
	_, err := resolveRegion(idx, RegionConfig{})
	assert.Error(t, err)
}
