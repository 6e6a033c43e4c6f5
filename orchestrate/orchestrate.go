// Package orchestrate ties dbginfo, trap, tracer, sampler, and output
// together: it reads a Config once, resolves every section's region
// into trap addresses and contexts, registers traps, launches the
// tracee, and assembles the resulting execution records into an
// output.Document.
package orchestrate

import (
	"debug/elf"
	"time"

	"github.com/aclements/nrgprof/dbginfo"
	"github.com/aclements/nrgprof/energy"
	"github.com/aclements/nrgprof/errtag"
	"github.com/aclements/nrgprof/output"
	"github.com/aclements/nrgprof/sampler"
	"github.com/aclements/nrgprof/tracer"
	"github.com/aclements/nrgprof/trap"
)

// binding records which (group, section) a start trap's executions
// belong to, keyed by the trap's address — looked up by index, not a
// cached slice pointer, so it stays correct regardless of how the
// Document's slices get appended to afterward.
type binding struct {
	groupIdx, sectionIdx int
}

// Orchestrator runs one profiling session against a single target
// binary.
type Orchestrator struct {
	cfg *Config
	idx *dbginfo.Index

	cpuReader energy.Reader
	gpuReader energy.Reader

	registry *trap.Registry
	bindings map[uint64]binding
	doc      *output.Document
	tracer   *tracer.Tracer
}

// New opens the target binary's debug info and prepares an
// Orchestrator to run it. Readers are constructed lazily inside Run
// once the set of targets actually named by cfg is known.
func New(cfg *Config) (*Orchestrator, error) {
	idx, err := dbginfo.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:      cfg,
		idx:      idx,
		registry: trap.NewRegistry(),
		bindings: make(map[uint64]binding),
	}, nil
}

// Run executes the full profiling session and returns the assembled
// result document.
func (o *Orchestrator) Run() (*output.Document, error) {
	if err := o.prepareReaders(); err != nil {
		return nil, err
	}
	defer o.closeReaders()

	o.doc = output.NewDocument(o.platformFormat())

	if err := o.buildDocumentAndTraps(); err != nil {
		return nil, err
	}

	if o.cfg.IdleDuration > 0 {
		o.sampleIdleBaseline()
	}

	t, err := tracer.Launch(tracer.LaunchOptions{
		Path:      o.cfg.Path,
		Args:      o.cfg.Args,
		AwaitExec: o.cfg.AwaitExec,
	}, o.idx, o.registry, o)
	if err != nil {
		return nil, err
	}
	o.tracer = t

	if err := o.rebaseTraps(t.LoadAddr()); err != nil {
		return nil, err
	}
	if err := t.InstallTraps(); err != nil {
		return nil, err
	}

	t.Run()
	t.Wait()
	if err := t.Err(); err != nil {
		return nil, err
	}

	return o.doc, nil
}

// ExitCode reports the tracee's own exit status, for the CLI to
// propagate. Valid only after Run has returned with a nil error;
// returns (0, false) otherwise.
func (o *Orchestrator) ExitCode() (code int, exited bool) {
	if o.tracer == nil {
		return 0, false
	}
	return o.tracer.ExitStatus()
}

func (o *Orchestrator) platformFormat() output.Format {
	if o.idx.Machine() == elf.EM_PPC64 {
		return output.Format{CPU: []string{"sensor_time", "power"}, GPU: []string{"power"}}
	}
	return output.Format{CPU: []string{"energy"}, GPU: []string{"power"}}
}

func (o *Orchestrator) prepareReaders() error {
	locMask, err := parseLocationMask(o.cfg.Locations)
	if err != nil {
		return err
	}
	sockMask, err := parseSocketMask(o.cfg.Sockets)
	if err != nil {
		return err
	}
	devMask, err := parseDeviceMask(o.cfg.Devices)
	if err != nil {
		return err
	}

	wantsCPU, wantsGPU := false, false
	for _, g := range o.cfg.Groups {
		for _, s := range g.Sections {
			for _, t := range s.Targets {
				switch t {
				case "cpu":
					wantsCPU = true
				case "gpu":
					wantsGPU = true
				}
			}
		}
	}

	if wantsCPU {
		r, err := newCPUReader(locMask, sockMask)
		if err != nil {
			return err
		}
		o.cpuReader = r
	}
	if wantsGPU {
		r, err := newGPUReader(devMask)
		if err != nil {
			return err
		}
		o.gpuReader = r
	}
	return nil
}

func (o *Orchestrator) closeReaders() {
	if o.cpuReader != nil {
		o.cpuReader.Close()
	}
	if o.gpuReader != nil {
		o.gpuReader.Close()
	}
}

// buildDocumentAndTraps walks every group/section once: resolving
// bounds, choosing a sampler factory, registering traps, and
// associating (group, section) with the output document.
func (o *Orchestrator) buildDocumentAndTraps() error {
	for gi, gc := range o.cfg.Groups {
		o.doc.Groups = append(o.doc.Groups, output.Group{Label: gc.Label, Extra: gc.Extra})
		for si, sc := range gc.Sections {
			o.doc.Groups[gi].Sections = append(o.doc.Groups[gi].Sections, output.Section{
				Label:        sc.Label,
				Extra:        sc.Extra,
				ReadingsKind: sc.Method,
			})

			reader, err := selectReaders(sc.Targets, o.cpuReader, o.gpuReader)
			if err != nil {
				return err
			}
			factory, err := samplerFactory(sc)
			if err != nil {
				return err
			}

			instances, err := resolveRegion(o.idx, sc.Region)
			if err != nil {
				return errtag.Wrapf(errtag.Lookup, err, "orchestrate: resolving region for section %q", sc.Label)
			}

			for _, inst := range instances {
				if err := o.registry.InsertStart(&trap.StartTrap{
					Address:          trap.StartAddr(inst.start),
					Factory:          factory,
					Reader:           reader,
					AllowConcurrency: sc.AllowConcurrency,
					Context:          inst.startCtx,
				}); err != nil {
					return err
				}
				if err := o.registry.InsertEnd(&trap.EndTrap{
					Address:   trap.EndAddr(inst.end),
					StartAddr: trap.StartAddr(inst.start),
					Context:   inst.endCtx,
				}); err != nil {
					return err
				}
				o.bindings[inst.start] = binding{groupIdx: gi, sectionIdx: si}
			}
		}
	}
	return nil
}

// rebaseTraps shifts every registered trap's installation address by
// the tracee's runtime load address, for a PIE binary whose addresses
// the debug-info index recorded link-time-relative (load is zero for
// a fixed binary, so this is a no-op there). Must run after Launch
// resolves LoadAddr but before InstallTraps.
//
// Only the registry's installation addresses move. Each trap's
// Context keeps the original static address dbginfo resolved — the
// address a user would see in the binary's own symbol table, stable
// across runs regardless of ASLR — and bindings stays keyed by that
// same static address, since that's what Context.Addr() returns to
// OnExecution.
func (o *Orchestrator) rebaseTraps(loadAddr uint64) error {
	if loadAddr == 0 {
		return nil
	}
	rebased := trap.NewRegistry()
	for _, addr := range o.registry.StartAddrs() {
		st, _ := o.registry.LookupStart(addr)
		moved := &trap.StartTrap{
			Address:          trap.StartAddr(uint64(addr) + loadAddr),
			Factory:          st.Factory,
			Reader:           st.Reader,
			AllowConcurrency: st.AllowConcurrency,
			Context:          st.Context,
		}
		if err := rebased.InsertStart(moved); err != nil {
			return err
		}
	}
	for _, addr := range o.registry.EndAddrs() {
		et, _ := o.registry.EndTrapAt(addr)
		moved := &trap.EndTrap{
			Address:   trap.EndAddr(uint64(addr) + loadAddr),
			StartAddr: trap.StartAddr(uint64(et.StartAddr) + loadAddr),
			Context:   et.Context,
		}
		if err := rebased.InsertEnd(moved); err != nil {
			return err
		}
	}
	o.registry = rebased
	return nil
}

func samplerFactory(sc SectionConfig) (trap.Factory, error) {
	switch sc.Method {
	case "short":
		return func(r energy.Reader) sampler.Sampler { return sampler.NewShort(r) }, nil
	case "bounded":
		period := sc.Period
		if period == 0 {
			period = sampler.DefaultBoundedPeriod
		}
		return func(r energy.Reader) sampler.Sampler { return sampler.NewBounded(r, period) }, nil
	case "unbounded":
		period := sc.Period
		if period == 0 {
			period = sampler.DefaultUnboundedPeriod
		}
		capacity := sc.InitialCapacity
		if capacity == 0 {
			capacity = sampler.DefaultInitialCapacity
		}
		return func(r energy.Reader) sampler.Sampler { return sampler.NewUnbounded(r, period, capacity) }, nil
	default:
		return nil, errtag.New(errtag.Setup, "orchestrate: unknown sampling method "+sc.Method)
	}
}

// sampleIdleBaseline runs an unbounded-periodic sampler against each
// selected reader for Config.IdleDuration before the tracee attaches,
// reusing sampler.Unbounded directly rather than a dedicated idle
// sampling path.
func (o *Orchestrator) sampleIdleBaseline() {
	for label, r := range map[string]energy.Reader{"cpu": o.cpuReader, "gpu": o.gpuReader} {
		if r == nil {
			continue
		}
		s := sampler.NewUnbounded(r, sampler.DefaultUnboundedPeriod, sampler.DefaultInitialCapacity)
		if err := s.Start(); err != nil {
			continue
		}
		time.Sleep(o.cfg.IdleDuration)
		readings, err := s.Stop()
		if err != nil {
			continue
		}
		o.doc.Idle = append(o.doc.Idle, output.IdleRecord{
			Reader:  label,
			Samples: toSamples(readings),
		})
	}
}

// OnExecution implements tracer.Hooks: it is called once per completed
// region traversal and appends the execution to the bound section.
func (o *Orchestrator) OnExecution(start, end trap.Context, readings []energy.Reading, err error) {
	b, ok := o.bindings[start.Addr()]
	if !ok {
		return
	}
	exec := output.Execution{
		Start:   contextInfo(start),
		End:     contextInfo(end),
		Samples: toSamples(readings),
	}
	if err != nil {
		exec.Err = err.Error()
	}
	sec := &o.doc.Groups[b.groupIdx].Sections[b.sectionIdx]
	sec.Executions = append(sec.Executions, exec)
}

func toSamples(readings []energy.Reading) []output.Sample {
	if len(readings) == 0 {
		return nil
	}
	base := readings[0].At
	out := make([]output.Sample, len(readings))
	for i, r := range readings {
		out[i] = output.Sample{TimeNS: r.At.Sub(base).Nanoseconds(), Values: r.Values}
	}
	return out
}

func contextInfo(c trap.Context) output.ContextInfo {
	info := output.ContextInfo{Address: c.Addr()}
	switch v := c.(type) {
	case trap.SourceLineContext:
		info.File = lineFileName(v.Line)
		info.Line = uint32(v.Line.Line)
	case trap.FunctionCallContext:
		info.Function = functionName(v.Func, v.Symbol)
		if v.Func != nil && v.Func.HasDecl {
			info.File = v.Func.Decl.File
			info.Line = v.Func.Decl.Line
		}
	case trap.InlineFunctionContext:
		info.Function = functionName(v.Func, v.Symbol)
		info.CallFile = v.Instance.CallLoc.File
		info.CallLine = v.Instance.CallLoc.Line
	}
	return info
}

func functionName(fn *dbginfo.Function, sym *dbginfo.FunctionSymbol) string {
	switch {
	case sym != nil:
		return sym.Name
	case fn != nil:
		return fn.DIEName
	default:
		return ""
	}
}

func lineFileName(l dbginfo.SourceLine) string {
	if l.File == nil {
		return ""
	}
	return l.File.Name
}
