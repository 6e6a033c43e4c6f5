package output

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument(t *testing.T) {
	format := Format{CPU: []string{"energy"}, GPU: []string{"power"}}
	doc := NewDocument(format)

	assert.Equal(t, FixedUnits, doc.Units)
	assert.Equal(t, format, doc.Format)
	assert.Nil(t, doc.Groups)
	assert.Nil(t, doc.Idle)
}

func TestDocumentJSONShape(t *testing.T) {
	doc := NewDocument(Format{CPU: []string{"sensor_time", "power"}})
	doc.Groups = append(doc.Groups, Group{
		Label: "hot loop",
		Sections: []Section{
			{
				Label:        "inner",
				ReadingsKind: "unbounded",
				Executions: []Execution{
					{
						Start:   ContextInfo{Address: 0x1008, Function: "compute"},
						End:     ContextInfo{Address: 0x10f0, Function: "compute"},
						Samples: []Sample{{TimeNS: 0, Values: []float64{1.5}}},
					},
				},
			},
		},
	})

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(raw, &round))

	units, ok := round["units"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ns", units["time"])
	assert.Equal(t, "J", units["energy"])
	assert.Equal(t, "W", units["power"])

	format, ok := round["format"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, format, "gpu")

	_, hasIdle := round["idle"]
	assert.False(t, hasIdle)

	groups, ok := round["groups"].([]any)
	require.True(t, ok)
	require.Len(t, groups, 1)
}

func TestExecutionErrOmitted(t *testing.T) {
	exec := Execution{Start: ContextInfo{Address: 1}, End: ContextInfo{Address: 2}}
	raw, err := json.Marshal(exec)
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(raw, &round))
	_, hasErr := round["error"]
	assert.False(t, hasErr)
}
