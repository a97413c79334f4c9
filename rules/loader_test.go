package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_YAML(t *testing.T) {
	data := []byte(`
- name: crash_recovery
  action: "="
  value: "on"
- name: failsafe_procedure
  action: "!="
  values: [DROP, GPS_RESCUE]
- name: failsafe_delay
  action: "="
  value: 15
`)
	list, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, Equal("crash_recovery", "on"), list[0])
	assert.Equal(t, NoneOf("failsafe_procedure", "DROP", "GPS_RESCUE"), list[1])
	assert.Equal(t, Equal("failsafe_delay", "15"), list[2])
}

func TestParse_JSON(t *testing.T) {
	data := []byte(`[
  {"name": "crash_recovery", "action": "=", "value": "on"},
  {"name": "mode", "action": "=", "values": ["A", "B"]}
]`)
	list, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, []Constraint{Equal("crash_recovery", "on"), OneOf("mode", "A", "B")}, list)
}

func TestParse_KeepsUnknownActionForEvaluation(t *testing.T) {
	list, err := Parse([]byte(`[{"name": "crash_recovery", "action": "maybe", "value": "on"}]`))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.ErrorIs(t, list[0].Validate(), ErrConfiguration)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("- name: [unterminated"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "failed to parse constraints", le.Message)
	assert.Error(t, le.Cause)

	_, err = Parse([]byte(`[{"action": "=", "value": "on"}]`))
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "constraint 0: name is required", le.Message)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name": "crash_recovery", "action": "=", "value": "on"}]`), 0o644))

	list, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Constraint{Equal("crash_recovery", "on")}, list)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.File, "missing.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- name: ["), 0o644))
	_, err = Load(bad)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, bad, le.File)
	assert.Contains(t, err.Error(), bad+": failed to parse constraints")
}
