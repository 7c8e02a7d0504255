package dialog

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marhaba-ai/marhaba/nlu"
	"github.com/marhaba-ai/marhaba/session"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	log, _ := test.NewNullLogger()
	lib, err := LoadLibrary("", log)
	require.NoError(t, err)
	return NewManager(lib, 0, log)
}

func newTurnContext(turn int) *session.Context {
	return &session.Context{ID: "sess-1", TurnCount: turn}
}

func TestNextGreeting(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(1)

	a := m.Next(sc, nlu.Result{Intent: "greeting"})

	assert.Equal(t, ActionRespond, a.Kind)
	assert.Equal(t, "greeting", a.TemplateID)
	assert.NotEmpty(t, a.Suggestions)
	assert.Equal(t, "general", sc.Dialog.FlowID)
	assert.Equal(t, "welcome", sc.Dialog.NodeID)
}

func TestNextTransfersToAttractions(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(1)

	a := m.Next(sc, nlu.Result{
		Intent: "attraction_info",
		Entities: []nlu.Entity{
			{Type: nlu.EntityAttraction, Surface: "the pyramids", Value: "Pyramids of Giza", ID: 42},
		},
	})

	assert.Equal(t, ActionCallService, a.Kind)
	assert.Equal(t, "knowledge", a.Service)
	assert.Equal(t, "describe", a.Method)
	assert.Equal(t, "attraction", a.Params["kind"])
	assert.Equal(t, "Pyramids of Giza", a.Params["attraction"])
	assert.Equal(t, "42", a.Params["attraction_id"])
	assert.Equal(t, "attractions", sc.Dialog.FlowID)
	assert.Equal(t, "describe", sc.Dialog.NodeID)
}

func TestNextPromptsThenFillsSlot(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(1)

	a := m.Next(sc, nlu.Result{Intent: "hotel_search"})
	assert.Equal(t, ActionPrompt, a.Kind)
	assert.Equal(t, "destination", a.Slot)
	assert.Equal(t, "ask_destination", a.TemplateID)
	assert.Equal(t, "lodging", sc.Dialog.FlowID)

	// The slot answer usually carries no routable intent, so the wildcard
	// self-loop has to keep the turn in the lodging flow.
	sc.TurnCount = 2
	a = m.Next(sc, nlu.Result{
		Intent: nlu.IntentFallback,
		Entities: []nlu.Entity{
			{Type: nlu.EntityDestination, Surface: "hurghada", Value: "Hurghada", ID: 7},
		},
	})
	assert.Equal(t, ActionCallService, a.Kind)
	assert.Equal(t, "knowledge", a.Service)
	assert.Equal(t, "search", a.Method)
	assert.Equal(t, "accommodation", a.Params["kind"])
	assert.Equal(t, "Hurghada", a.Params["destination"])
	assert.Equal(t, "7", a.Params["destination_id"])
}

func TestNextUnroutedIntentFallsBackToRetrieval(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(1)

	a := m.Next(sc, nlu.Result{Intent: nlu.IntentFallback})

	assert.Equal(t, ActionCallService, a.Kind)
	assert.Equal(t, "rag", a.Service)
	assert.Equal(t, "answer", a.Method)
	assert.Equal(t, FallbackFlowID, sc.Dialog.FlowID)
}

func TestNextFarewellEndsConversation(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(1)

	m.Next(sc, nlu.Result{
		Intent:   "attraction_info",
		Entities: []nlu.Entity{{Type: nlu.EntityAttraction, Value: "Karnak Temple", ID: 3}},
	})
	require.Equal(t, "attractions", sc.Dialog.FlowID)

	sc.TurnCount = 2
	a := m.Next(sc, nlu.Result{Intent: "farewell"})

	assert.Equal(t, ActionEndConversation, a.Kind)
	assert.Equal(t, "goodbye", a.TemplateID)
	assert.Equal(t, "general", sc.Dialog.FlowID)
	assert.Equal(t, "welcome", sc.Dialog.NodeID)
	assert.Empty(t, sc.Dialog.Slots)
}

func TestNextSlotExpiresAfterTTL(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(1)

	m.Next(sc, nlu.Result{Intent: "hotel_search"})
	sc.TurnCount = 2
	a := m.Next(sc, nlu.Result{
		Intent:   nlu.IntentFallback,
		Entities: []nlu.Entity{{Type: nlu.EntityDestination, Value: "Hurghada", ID: 7}},
	})
	require.Equal(t, ActionCallService, a.Kind)

	sc.TurnCount = 2 + DefaultSlotTTLTurns
	a = m.Next(sc, nlu.Result{Intent: "hotel_search"})

	assert.Equal(t, ActionPrompt, a.Kind)
	assert.Equal(t, "destination", a.Slot)
}

func TestNextRefreshesSoleSlotOfType(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(1)

	a := m.Next(sc, nlu.Result{
		Intent:   "weather_query",
		Entities: []nlu.Entity{{Type: nlu.EntityDestination, Value: "Luxor", ID: 11}},
	})
	require.Equal(t, "weather", a.Service)
	require.Equal(t, "Luxor", a.Params["destination"])

	sc.TurnCount = 2
	a = m.Next(sc, nlu.Result{
		Intent:   "weather_query",
		Entities: []nlu.Entity{{Type: nlu.EntityDestination, Value: "Aswan", ID: 12}},
	})

	assert.Equal(t, "Aswan", a.Params["destination"])
	assert.Equal(t, "12", a.Params["destination_id"])
}

func TestNextRepairsUnknownFlowState(t *testing.T) {
	m := newTestManager(t)
	sc := newTurnContext(5)
	sc.Dialog = session.DialogState{FlowID: "removed_by_redeploy", NodeID: "gone"}

	a := m.Next(sc, nlu.Result{Intent: "greeting"})

	assert.Equal(t, ActionRespond, a.Kind)
	assert.Equal(t, "greeting", a.TemplateID)
	assert.Equal(t, "general", sc.Dialog.FlowID)
}

func TestNextTransferBudgetExhausted(t *testing.T) {
	log, _ := test.NewNullLogger()

	// Two flows that bounce the same intent between each other forever.
	general, err := ParseFlow([]byte(`
id: general
entry: start
nodes:
  - id: start
    transitions:
      - { intent: ping, target: away }
  - id: away
    action: { kind: transfer_to_flow, flow: fallback }
`))
	require.NoError(t, err)
	fallback, err := ParseFlow([]byte(`
id: fallback
entry: start
nodes:
  - id: start
    transitions:
      - { intent: ping, target: away }
  - id: away
    action: { kind: transfer_to_flow, flow: general }
`))
	require.NoError(t, err)

	lib := &Library{flows: map[string]*Flow{"general": general, "fallback": fallback}, log: log}
	require.NoError(t, lib.validate())

	m := NewManager(lib, 0, log)
	sc := newTurnContext(1)

	a := m.Next(sc, nlu.Result{Intent: "ping"})
	assert.Equal(t, ActionRespond, a.Kind)
	assert.Equal(t, apologyTemplate, a.TemplateID)
}
