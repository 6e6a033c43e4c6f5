package orchestrate

import (
	"fmt"

	"github.com/aclements/nrgprof/dbginfo"
	"github.com/aclements/nrgprof/errtag"
	"github.com/aclements/nrgprof/trap"
)

// regionInstance is one resolved, concrete start/end address pair
// with the trap context each side carries — the unit orchestrate
// registers into the trap registry. A FunctionRegion with inline
// instances resolves to one regionInstance per instance, since each
// contiguous-range instance becomes its own region.
type regionInstance struct {
	start    uint64
	end      uint64
	startCtx trap.Context
	endCtx   trap.Context
}

// resolveRegion resolves a region config's bounds into start/end
// address pairs and their accompanying trap context, for all three
// region selector shapes.
func resolveRegion(idx *dbginfo.Index, r RegionConfig) ([]regionInstance, error) {
	switch {
	case r.Addr != nil:
		return resolveAddrRegion(idx, r.Addr)
	case r.Function != nil:
		return resolveFunctionRegion(idx, r.Function)
	case r.Line != nil:
		return resolveLineRegion(idx, r.Line)
	default:
		return nil, errtag.New(errtag.Setup, "orchestrate: region config names no selector")
	}
}

func resolveAddrRegion(idx *dbginfo.Index, a *AddrRegion) ([]regionInstance, error) {
	startCtx := addressContext(idx, a.Start)
	endCtx := addressContext(idx, a.End)
	return []regionInstance{{start: a.Start, end: a.End, startCtx: startCtx, endCtx: endCtx}}, nil
}

// addressContext builds the richest Context available for addr,
// falling back to a bare AddressContext when no CU covers it (e.g. a
// PLT stub or library code with no debug info).
func addressContext(idx *dbginfo.Index, addr uint64) trap.Context {
	cu, err := idx.FindCompileUnitByAddr(addr)
	if err != nil {
		return trap.AddressContext{Address: addr}
	}
	if fn, fcu, err := idx.FindFunctionByAddr(addr); err == nil {
		sym, _ := idx.FindFunctionSymbolByAddr(addr)
		return trap.FunctionCallContext{Address: addr, CU: fcu, Func: fn, Symbol: sym}
	}
	return trap.AddressContext{Address: addr, CU: cu}
}

func resolveFunctionRegion(idx *dbginfo.Index, f *FunctionRegion) ([]regionInstance, error) {
	var cuFilter *dbginfo.CompileUnit
	if f.CompileUnit != "" {
		cu, err := idx.FindCompileUnitByPath(f.CompileUnit)
		if err != nil {
			return nil, err
		}
		cuFilter = cu
	}

	fn, sym, err := idx.FindFunctionByName(cuFilter, f.Name, f.Exact)
	if err != nil {
		return nil, err
	}

	if fn.Concrete != nil {
		return resolveConcreteFunction(idx, fn, sym)
	}
	return resolveInlineFunction(idx, fn)
}

func resolveConcreteFunction(idx *dbginfo.Index, fn *dbginfo.Function, sym *dbginfo.FunctionSymbol) ([]regionInstance, error) {
	cu, err := idx.FindCompileUnitByAddr(fn.Concrete.EntryPC)
	if err != nil {
		return nil, err
	}
	start := cu.EntryAddr(fn)
	end, ok := cu.ReturnAddr(fn)
	if !ok {
		return nil, errtag.New(errtag.Lookup, "orchestrate: function "+fn.DIEName+" has no resolvable return address")
	}
	startCtx := trap.FunctionCallContext{Address: start, CU: cu, Func: fn, Symbol: sym}
	endCtx := trap.FunctionReturnContext{Address: end, CU: cu}
	return []regionInstance{{start: start, end: end, startCtx: startCtx, endCtx: endCtx}}, nil
}

func resolveInlineFunction(idx *dbginfo.Index, fn *dbginfo.Function) ([]regionInstance, error) {
	if len(fn.Inlines) == 0 {
		return nil, errtag.New(errtag.Lookup, "orchestrate: function "+fn.DIEName+" has neither a concrete body nor inline instances")
	}
	var out []regionInstance
	for i, inst := range fn.Inlines {
		if len(inst.Ranges) == 0 {
			continue
		}
		cu, err := idx.FindCompileUnitByAddr(inst.Ranges[0].Low)
		if err != nil {
			return nil, err
		}
		start := inst.Ranges[0].Low
		end := inst.Ranges[len(inst.Ranges)-1].High
		sym, _ := idx.FindFunctionSymbolByAddr(start)
		startCtx := trap.InlineFunctionContext{Address: start, CU: cu, Func: fn, Symbol: sym, Instance: fn.Inlines[i]}
		endCtx := trap.FunctionReturnContext{Address: end, CU: cu}
		out = append(out, regionInstance{start: start, end: end, startCtx: startCtx, endCtx: endCtx})
	}
	if len(out) == 0 {
		return nil, errtag.New(errtag.Lookup, "orchestrate: function "+fn.DIEName+" has no instances with a resolvable range")
	}
	return out, nil
}

func resolveLineRegion(idx *dbginfo.Index, l *LineRegion) ([]regionInstance, error) {
	cu, err := idx.FindCompileUnitByPath(l.CompileUnit)
	if err != nil {
		return nil, err
	}
	startLine, err := dbginfo.FindLine(cu, l.File, l.StartLine, 0)
	if err != nil {
		return nil, err
	}
	endLine, err := dbginfo.FindLine(cu, l.File, l.EndLine, 0)
	if err != nil {
		return nil, err
	}
	startCtx := trap.SourceLineContext{Address: startLine.Address, CU: cu, Line: *startLine}
	endCtx := trap.SourceLineContext{Address: endLine.Address, CU: cu, Line: *endLine}
	return []regionInstance{{start: startLine.Address, end: endLine.Address, startCtx: startCtx, endCtx: endCtx}}, nil
}

func (r regionInstance) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.start, r.end)
}
