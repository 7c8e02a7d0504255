package dialog

import (
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/marhaba-ai/marhaba/nlu"
	"github.com/marhaba-ai/marhaba/session"
)

// DefaultSlotTTLTurns is how many turns a filled slot stays usable before
// the manager forgets it.
const DefaultSlotTTLTurns = 10

// maxTransferHops bounds flow-to-flow transfers within a single turn so a
// miswired flow override cannot loop forever.
const maxTransferHops = 5

// apologyTemplate is rendered when routing gives up entirely.
const apologyTemplate = "apology"

// Manager steps conversations through the flow library. It owns no state of
// its own: everything persistent lives in the session's DialogState, so any
// instance can serve any session.
type Manager struct {
	lib     *Library
	slotTTL int
	log     *logrus.Logger
}

// NewManager builds a manager over a validated library. slotTTLTurns <= 0
// selects the default.
func NewManager(lib *Library, slotTTLTurns int, log *logrus.Logger) *Manager {
	if slotTTLTurns <= 0 {
		slotTTLTurns = DefaultSlotTTLTurns
	}
	return &Manager{lib: lib, slotTTL: slotTTLTurns, log: log}
}

// Next advances the conversation one turn and returns the action the engine
// should execute. It mutates sc.Dialog: flow position moves along the
// matched transition, stale slots are dropped and tagged entities fill the
// target node's declared slots.
//
// Routing rules: the current node's transition table is scanned in
// declaration order for the detected intent, then for the wildcard. A node
// without a match hands the turn to the global fallback flow. Landing on a
// transfer node re-dispatches the same intent at the target flow's entry.
func (m *Manager) Next(sc *session.Context, res nlu.Result) Action {
	m.ensureState(sc)
	m.expireSlots(sc)

	flow := m.lib.Flow(sc.Dialog.FlowID)
	node := flow.Node(sc.Dialog.NodeID)

	for hops := 0; hops <= maxTransferHops; hops++ {
		t, ok := node.Match(res.Intent)
		if !ok {
			if flow.ID == FallbackFlowID {
				break
			}
			flow = m.lib.Flow(FallbackFlowID)
			node = flow.Node(flow.Entry)
			continue
		}

		target := flow.Node(t.Target)
		spec := target.action()
		if spec.Kind == ActionTransferFlow {
			flow = m.lib.Flow(spec.Flow)
			node = flow.Node(flow.Entry)
			continue
		}

		sc.Dialog.FlowID = flow.ID
		sc.Dialog.NodeID = target.ID
		m.fillSlots(sc, target, res.Entities)

		if missing, ok := firstMissingSlot(target, sc.Dialog.Slots); ok {
			return Action{
				Kind:        ActionPrompt,
				Slot:        missing.Name,
				TemplateID:  promptTemplate(missing),
				Suggestions: target.Suggestions,
			}
		}
		return m.buildAction(sc, target, spec)
	}

	m.log.WithFields(logrus.Fields{
		"flow":   sc.Dialog.FlowID,
		"node":   sc.Dialog.NodeID,
		"intent": res.Intent,
	}).Error("Dialog routing exhausted transfer budget")
	return Respond(apologyTemplate)
}

// Reset returns the session to the entry flow and clears collected slots.
func (m *Manager) Reset(sc *session.Context) {
	entry := m.lib.Flow(EntryFlowID)
	sc.Dialog = session.DialogState{
		FlowID: entry.ID,
		NodeID: entry.Entry,
		Slots:  make(map[string]session.SlotValue),
	}
}

// ensureState repairs sessions that are new or that reference flows removed
// by a redeploy.
func (m *Manager) ensureState(sc *session.Context) {
	flow := m.lib.Flow(sc.Dialog.FlowID)
	if flow == nil || flow.Node(sc.Dialog.NodeID) == nil {
		m.Reset(sc)
		return
	}
	if sc.Dialog.Slots == nil {
		sc.Dialog.Slots = make(map[string]session.SlotValue)
	}
}

func (m *Manager) expireSlots(sc *session.Context) {
	for name, sv := range sc.Dialog.Slots {
		if sc.TurnCount-sv.FilledAt >= m.slotTTL {
			delete(sc.Dialog.Slots, name)
		}
	}
}

// fillSlots assigns tagged entities to the node's declared slots by type.
// The first pass fills empty slots in declaration order, one entity each.
// The second pass lets a leftover entity refresh an already filled slot when
// the node declares exactly one slot of that type, so "what about Luxor?"
// replaces the previous destination instead of being ignored.
func (m *Manager) fillSlots(sc *session.Context, node *Node, entities []nlu.Entity) {
	used := make([]bool, len(entities))

	for _, slot := range node.Slots {
		if _, filled := sc.Dialog.Slots[slot.Name]; filled {
			continue
		}
		for i, e := range entities {
			if used[i] || e.Type != slot.Type {
				continue
			}
			m.setSlot(sc, slot.Name, e)
			used[i] = true
			break
		}
	}

	for i, e := range entities {
		if used[i] {
			continue
		}
		if slot, ok := soleSlotOfType(node, e.Type); ok {
			m.setSlot(sc, slot.Name, e)
			used[i] = true
		}
	}
}

func (m *Manager) setSlot(sc *session.Context, name string, e nlu.Entity) {
	value := e.Value
	if value == "" {
		value = e.Surface
	}
	sc.Dialog.Slots[name] = session.SlotValue{Value: value, FilledAt: sc.TurnCount}
	if e.ID != 0 {
		sc.Dialog.Slots[name+"_id"] = session.SlotValue{
			Value:    strconv.FormatInt(e.ID, 10),
			FilledAt: sc.TurnCount,
		}
	} else {
		delete(sc.Dialog.Slots, name+"_id")
	}
}

func soleSlotOfType(node *Node, typ string) (Slot, bool) {
	var found Slot
	count := 0
	for _, s := range node.Slots {
		if s.Type == typ {
			found = s
			count++
		}
	}
	return found, count == 1
}

func firstMissingSlot(node *Node, filled map[string]session.SlotValue) (Slot, bool) {
	for _, s := range node.Slots {
		if _, ok := filled[s.Name]; !ok {
			return s, true
		}
	}
	return Slot{}, false
}

func promptTemplate(s Slot) string {
	if s.Prompt != "" {
		return s.Prompt
	}
	return "ask_" + s.Name
}

// buildAction turns the node's declared action into the concrete action
// handed to the engine. Slot values overlay the declared static params so
// service calls see what the conversation collected.
func (m *Manager) buildAction(sc *session.Context, node *Node, spec ActionSpec) Action {
	a := Action{
		Kind:        spec.Kind,
		TemplateID:  node.Template,
		Service:     spec.Service,
		Method:      spec.Method,
		Suggestions: node.Suggestions,
	}

	params := make(map[string]string, len(spec.Params)+len(sc.Dialog.Slots))
	for k, v := range spec.Params {
		params[k] = v
	}
	for name, sv := range sc.Dialog.Slots {
		params[name] = sv.Value
	}
	a.Params = params

	if spec.Kind == ActionEndConversation {
		m.Reset(sc)
	}
	return a
}
