package orchestrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshal(t *testing.T) {
	doc := `
path: /bin/target
args: ["--flag"]
idle_duration: 2s
groups:
  - label: hot loop
    sections:
      - label: inner
        targets: [cpu]
        method: unbounded
        region:
          function:
            name: compute
            compile_unit: loop.c
      - label: whole run
        targets: [cpu, gpu]
        method: short
        region:
          addr:
            start: 0x1000
            end: 0x2000
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))

	assert.Equal(t, "/bin/target", cfg.Path)
	assert.Equal(t, []string{"--flag"}, cfg.Args)
	require.Len(t, cfg.Groups, 1)
	require.Len(t, cfg.Groups[0].Sections, 2)

	first := cfg.Groups[0].Sections[0]
	require.NotNil(t, first.Region.Function)
	assert.Equal(t, "compute", first.Region.Function.Name)
	assert.Equal(t, "loop.c", first.Region.Function.CompileUnit)

	second := cfg.Groups[0].Sections[1]
	require.NotNil(t, second.Region.Addr)
	assert.Equal(t, uint64(0x1000), second.Region.Addr.Start)
	assert.Equal(t, uint64(0x2000), second.Region.Addr.End)
}
