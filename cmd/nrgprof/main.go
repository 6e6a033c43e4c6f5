// Command nrgprof ptrace-traces a native binary's user-defined regions
// and reports per-region energy and power readings from the host's
// RAPL, OCC, or GPU sensors.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aclements/nrgprof/internal/plot"
	"github.com/aclements/nrgprof/orchestrate"
	"github.com/aclements/nrgprof/output"
)

type flags struct {
	configPath string
	outPath    string
	plotDir    string

	locations string
	sockets   string
	devices   string
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "nrgprof --config FILE [target-path] [-- args...]",
		Short: "Trace a binary's regions and report per-region energy/power",
		Long: `nrgprof ptrace-traces one or more user-defined regions of a native
binary and reports the energy and power readings taken from the
host's RAPL, OCC, or GPU sensors while each region ran.

Regions, sections, and targets are described in a YAML config file;
--locations/--sockets/--devices override the config's global masks
without editing it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := run(f, args)
			exitCode = code
			return err
		},
		SilenceUsage: true,
	}

	root.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML config describing regions to trace (required)")
	root.Flags().StringVarP(&f.outPath, "out", "o", "", "write the JSON result document here (default: stdout)")
	root.Flags().StringVar(&f.plotDir, "plot-dir", "", "write one PNG power-over-time chart per execution of each profile-method section into this directory")
	root.Flags().StringVar(&f.locations, "locations", "", "override the config's location mask (comma-separated names)")
	root.Flags().StringVar(&f.sockets, "sockets", "", "override the config's socket mask (comma-separated indices)")
	root.Flags().StringVar(&f.devices, "devices", "", "override the config's device mask (comma-separated indices)")
	root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}

// exitCode carries the process exit status out of run, since RunE's
// error return alone can't carry it: a setup failure arrives with an
// error and code 1, while the tracee's own non-zero exit status
// arrives with a nil error.
var exitCode int

// run does the actual work and returns the process exit code (0 on
// success, non-zero on setup failure, the tracee's own exit status on
// tracee failure) alongside an error for cobra to log.
func run(f flags, args []string) (int, error) {
	cfg, err := orchestrate.LoadConfig(f.configPath)
	if err != nil {
		return 1, err
	}

	if len(args) > 0 {
		cfg.Path = args[0]
	}
	if len(args) > 1 {
		cfg.Args = args[1:]
	}
	if f.locations != "" {
		cfg.Locations = f.locations
	}
	if f.sockets != "" {
		cfg.Sockets = f.sockets
	}
	if f.devices != "" {
		cfg.Devices = f.devices
	}

	orch, err := orchestrate.New(cfg)
	if err != nil {
		return 1, err
	}

	doc, err := orch.Run()
	if err != nil {
		return 1, fmt.Errorf("trace run failed: %w", err)
	}

	if err := writeDocument(doc, f.outPath); err != nil {
		return 1, err
	}

	if f.plotDir != "" {
		if err := writePlots(doc, f.plotDir); err != nil {
			slog.Warn("plot rendering failed", "err", err)
		}
	}

	if code, _ := orch.ExitCode(); code != 0 {
		return code, nil
	}
	return 0, nil
}

func writeDocument(doc *output.Document, outPath string) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("nrgprof: encoding result: %w", err)
	}
	raw = append(raw, '\n')

	if outPath == "" {
		_, err := os.Stdout.Write(raw)
		return err
	}
	return os.WriteFile(outPath, raw, 0o644)
}

// writePlots renders one PNG per execution of each profile
// ("unbounded"-method) section, skipping executions with an error or
// no samples, named by group/section label and execution index.
func writePlots(doc *output.Document, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("nrgprof: creating plot directory: %w", err)
	}
	for _, g := range doc.Groups {
		for _, s := range g.Sections {
			if s.ReadingsKind != "unbounded" {
				continue
			}
			for i, exec := range s.Executions {
				if exec.Err != "" || len(exec.Samples) == 0 {
					continue
				}
				name := fmt.Sprintf("%s-%s-%d.png", sanitize(g.Label), sanitize(s.Label), i)
				path := filepath.Join(dir, name)
				if err := renderOne(exec.Samples, doc.Format.CPU, path); err != nil {
					slog.Warn("plot section", "section", s.Label, "err", err)
				}
			}
		}
	}
	return nil
}

func renderOne(samples []output.Sample, format []string, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	valueIndex := len(format) - 1 // the last column is always the power/energy reading
	if valueIndex < 0 {
		valueIndex = 0
	}
	return plot.RenderPowerOverTime(samples, format, valueIndex, plot.DefaultOptions, f)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "section"
	}
	return string(out)
}
