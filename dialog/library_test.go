package dialog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlowValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing entry",
			yaml: "id: broken\nnodes:\n  - id: a\n",
			want: "missing an entry node",
		},
		{
			name: "entry not defined",
			yaml: "id: broken\nentry: nope\nnodes:\n  - id: a\n",
			want: "entry node",
		},
		{
			name: "undefined transition target",
			yaml: "id: broken\nentry: a\nnodes:\n  - id: a\n    transitions:\n      - { intent: greeting, target: ghost }\n",
			want: "undefined node",
		},
		{
			name: "unreachable node",
			yaml: "id: broken\nentry: a\nnodes:\n  - id: a\n  - id: island\n",
			want: "unreachable",
		},
		{
			name: "duplicate node id",
			yaml: "id: broken\nentry: a\nnodes:\n  - id: a\n  - id: a\n",
			want: "twice",
		},
		{
			name: "unknown action kind",
			yaml: "id: broken\nentry: a\nnodes:\n  - id: a\n    action: { kind: explode }\n",
			want: "unknown action kind",
		},
		{
			name: "call_service without method",
			yaml: "id: broken\nentry: a\nnodes:\n  - id: a\n    action: { kind: call_service, service: weather }\n",
			want: "needs service and method",
		},
		{
			name: "transfer without flow",
			yaml: "id: broken\nentry: a\nnodes:\n  - id: a\n    action: { kind: transfer_to_flow }\n",
			want: "needs a target flow",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFlow([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseFlowValid(t *testing.T) {
	f, err := ParseFlow([]byte(`
id: mini
entry: start
nodes:
  - id: start
    template: greeting
    transitions:
      - { intent: greeting, target: start }
      - { intent: "*", target: done }
  - id: done
    template: goodbye
    action: { kind: end_conversation }
`))
	require.NoError(t, err)
	assert.Equal(t, "mini", f.ID)
	assert.NotNil(t, f.Node("done"))

	tr, ok := f.Node("start").Match("greeting")
	require.True(t, ok)
	assert.Equal(t, "start", tr.Target)

	tr, ok = f.Node("start").Match("anything_else")
	require.True(t, ok)
	assert.Equal(t, "done", tr.Target)

	_, ok = f.Node("done").Match("greeting")
	assert.False(t, ok)
}

func TestMatchDeclarationOrder(t *testing.T) {
	f, err := ParseFlow([]byte(`
id: mini
entry: start
nodes:
  - id: start
    transitions:
      - { intent: greeting, target: first }
      - { intent: greeting, target: second }
      - { intent: "*", target: start }
  - id: first
  - id: second
`))
	require.NoError(t, err)

	tr, ok := f.Node("start").Match("greeting")
	require.True(t, ok)
	assert.Equal(t, "first", tr.Target)
}

func TestLoadLibraryDefaults(t *testing.T) {
	log, _ := test.NewNullLogger()

	lib, err := LoadLibrary("", log)
	require.NoError(t, err)

	ids := lib.FlowIDs()
	for _, want := range []string{"attractions", "destinations", "dining", "events", "fallback", "general", "lodging", "transport", "weather"} {
		assert.Contains(t, ids, want)
	}

	general := lib.Flow(EntryFlowID)
	require.NotNil(t, general)
	assert.Equal(t, "welcome", general.Entry)
	require.NotNil(t, lib.Flow(FallbackFlowID))
}

func TestLoadLibraryOverride(t *testing.T) {
	log, _ := test.NewNullLogger()
	dir := t.TempDir()

	custom := `
id: weather
entry: only
nodes:
  - id: only
    template: custom_weather
    transitions:
      - { intent: "*", target: only }
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "weather.yaml"), []byte(custom), 0o644))

	lib, err := LoadLibrary(dir, log)
	require.NoError(t, err)

	f := lib.Flow("weather")
	require.NotNil(t, f)
	assert.Equal(t, "only", f.Entry)
	assert.Equal(t, "custom_weather", f.Node("only").Template)
}

func TestLoadLibraryRejectsBadOverride(t *testing.T) {
	log, _ := test.NewNullLogger()
	dir := t.TempDir()

	bad := `
id: extra
entry: start
nodes:
  - id: start
    action: { kind: transfer_to_flow, flow: does_not_exist }
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(bad), 0o644))

	_, err := LoadLibrary(dir, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined flow")
}

func TestLibraryValidateRequiresCoreFlows(t *testing.T) {
	log, _ := test.NewNullLogger()

	general, err := ParseFlow([]byte("id: general\nentry: a\nnodes:\n  - id: a\n"))
	require.NoError(t, err)

	lib := &Library{flows: map[string]*Flow{"general": general}, log: log}
	err = lib.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), FallbackFlowID)

	fallback, err := ParseFlow([]byte("id: fallback\nentry: a\nnodes:\n  - id: a\n"))
	require.NoError(t, err)
	lib.flows[FallbackFlowID] = fallback
	assert.NoError(t, lib.validate())
}
