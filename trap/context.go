package trap

import "github.com/aclements/nrgprof/dbginfo"

// Context is the sum type attached to every trap: a raw address, a
// resolved source line, a concrete function call, an inlined function
// instance, or a function return. Go has no std::variant, so the
// original's tagged union is a Go interface with a sealed set of
// implementations, matching the "tagged struct behind an interface"
// shape perffile.EventGeneric.Decode() uses for perf event variants —
// callers type-switch on Context rather than matching a discriminant
// field.
type Context interface {
	// Addr is the trap address every context variant carries,
	// letting output serialization avoid a type switch just to
	// report where a trap fired.
	Addr() uint64
	isContext()
}

// AddressContext is a trap whose region endpoint was specified as a
// raw address, with no further debug-info resolution.
type AddressContext struct {
	Address uint64
	CU      *dbginfo.CompileUnit
}

func (c AddressContext) Addr() uint64 { return c.Address }
func (AddressContext) isContext()     {}

// SourceLineContext is a trap resolved from a source file:line[:col]
// region endpoint.
type SourceLineContext struct {
	Address uint64
	CU      *dbginfo.CompileUnit
	Line    dbginfo.SourceLine
}

func (c SourceLineContext) Addr() uint64 { return c.Address }
func (SourceLineContext) isContext()     {}

// FunctionCallContext is a trap at a (possibly prologue-skipped) entry
// to a concrete, non-inlined function.
type FunctionCallContext struct {
	Address uint64
	CU      *dbginfo.CompileUnit
	Func    *dbginfo.Function
	Symbol  *dbginfo.FunctionSymbol
}

func (c FunctionCallContext) Addr() uint64 { return c.Address }
func (FunctionCallContext) isContext()     {}

// InlineFunctionContext is a trap at one inlined instantiation of a
// function.
type InlineFunctionContext struct {
	Address  uint64
	CU       *dbginfo.CompileUnit
	Func     *dbginfo.Function
	Symbol   *dbginfo.FunctionSymbol
	Instance dbginfo.InlineInstance
}

func (c InlineFunctionContext) Addr() uint64 { return c.Address }
func (InlineFunctionContext) isContext()     {}

// FunctionReturnContext is a trap at a function's return address,
// used to close a region whose start was a function-call context.
type FunctionReturnContext struct {
	Address uint64
	CU      *dbginfo.CompileUnit
}

func (c FunctionReturnContext) Addr() uint64 { return c.Address }
func (FunctionReturnContext) isContext()     {}
