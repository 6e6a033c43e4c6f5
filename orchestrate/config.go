package orchestrate

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aclements/nrgprof/errtag"
)

// Config is the user-facing profiling run description: a target
// binary, optional idle-baseline duration, optional
// location/socket/device masks, and the group/section tree naming
// what to measure. Struct-tagged for YAML the way rcourtman-Pulse's
// proxy Config is, rather than a hand-rolled flag parser.
type Config struct {
	Path string   `yaml:"path"`
	Args []string `yaml:"args,omitempty"`
	// AwaitExec names the executable nrgprof should wait to see
	// execve'd before installing traps, for wrapper scripts that exec
	// the real target indirectly. Empty means traps install
	// immediately after the initial attach stop.
	AwaitExec string `yaml:"await_exec,omitempty"`

	// IdleDuration, if non-zero, runs an unbounded-periodic sampler
	// against each selected reader for this long before attaching the
	// tracee, to record an idle baseline.
	IdleDuration time.Duration `yaml:"idle_duration,omitempty"`

	Locations string `yaml:"locations,omitempty"` // comma-separated energy.Location names; empty means all
	Sockets   string `yaml:"sockets,omitempty"`   // comma-separated socket indices; empty means all
	Devices   string `yaml:"devices,omitempty"`   // comma-separated GPU device indices; empty means all

	Groups []GroupConfig `yaml:"groups"`
}

// GroupConfig is one named collection of sections.
type GroupConfig struct {
	Label    string          `yaml:"label"`
	Extra    string          `yaml:"extra,omitempty"`
	Sections []SectionConfig `yaml:"sections"`
}

// SectionConfig names one region to trace and how to sample it.
type SectionConfig struct {
	Label string `yaml:"label"`
	Extra string `yaml:"extra,omitempty"`

	// Targets is the subset of {"cpu","gpu"} to sample for this
	// section's executions.
	Targets []string `yaml:"targets"`

	// Method selects the sampling discipline: "short" (entry/exit
	// only), "bounded" (periodic with a default or overridden
	// heartbeat), or "unbounded" (periodic profile with optional
	// interval/initial capacity).
	Method          string        `yaml:"method"`
	Period          time.Duration `yaml:"period,omitempty"`
	InitialCapacity int           `yaml:"initial_capacity,omitempty"`

	AllowConcurrency bool `yaml:"allow_concurrency,omitempty"`

	Region RegionConfig `yaml:"region"`
}

// RegionConfig names a region by exactly one of three selector
// shapes: a raw address range, a named function, or a source line
// range. Unlike trap.Context's sealed interface (an internal runtime
// value), this is a plain struct with optional fields: it is decoded
// straight out of user-authored YAML, where a tagged sum type has no
// natural encoding.
type RegionConfig struct {
	// Addr selects a region by raw [start, end) address range.
	Addr *AddrRegion `yaml:"addr,omitempty"`
	// Function selects a region spanning one named function (or all
	// of its inline instances).
	Function *FunctionRegion `yaml:"function,omitempty"`
	// Line selects a region by a {compile_unit, line} start/end pair.
	Line *LineRegion `yaml:"line,omitempty"`
}

type AddrRegion struct {
	Start uint64 `yaml:"start"`
	End   uint64 `yaml:"end"`
}

type FunctionRegion struct {
	Name string `yaml:"name"`
	// CompileUnit restricts the search to one CU's source path (or a
	// suffix of it); empty searches every CU.
	CompileUnit string `yaml:"compile_unit,omitempty"`
	// Exact requires an exact (not prefix-demangled) name match.
	Exact bool `yaml:"exact,omitempty"`
}

type LineRegion struct {
	CompileUnit string `yaml:"compile_unit"`
	File        string `yaml:"file"`
	StartLine   uint32 `yaml:"start_line"`
	EndLine     uint32 `yaml:"end_line"`
}

// LoadConfig reads and parses a YAML config file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errtag.Wrap(errtag.Setup, "orchestrate: reading config "+path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errtag.Wrap(errtag.Setup, "orchestrate: parsing config "+path, err)
	}
	return &cfg, nil
}
