package dialog

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// WildcardIntent matches any intent that has no dedicated transition entry.
const WildcardIntent = "*"

// FallbackFlowID names the flow every library must define. Turns that no
// flow can route end up here.
const FallbackFlowID = "fallback"

// Slot declares a piece of information a node needs before its action can
// run. Slots are filled from tagged entities whose type matches Type, in
// declaration order.
type Slot struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Prompt string `yaml:"prompt"`
}

// Transition routes a detected intent to a target node within the same flow.
// Lookup scans transitions in declaration order and takes the first match,
// so earlier entries win ties.
type Transition struct {
	Intent string `yaml:"intent"`
	Target string `yaml:"target"`
}

// ActionSpec is the YAML form of a node action. Kind defaults to respond
// when absent.
type ActionSpec struct {
	Kind    ActionKind        `yaml:"kind"`
	Service string            `yaml:"service"`
	Method  string            `yaml:"method"`
	Flow    string            `yaml:"flow"`
	Params  map[string]string `yaml:"params"`
}

// Node is one state in a flow graph.
type Node struct {
	ID          string       `yaml:"id"`
	Template    string       `yaml:"template"`
	Slots       []Slot       `yaml:"slots"`
	Transitions []Transition `yaml:"transitions"`
	Suggestions []string     `yaml:"suggestions"`
	Action      *ActionSpec  `yaml:"action"`
}

// Flow is a named dialog graph with a single entry node.
type Flow struct {
	ID    string  `yaml:"id"`
	Entry string  `yaml:"entry"`
	Nodes []*Node `yaml:"nodes"`

	byID map[string]*Node
}

// ParseFlow decodes a single YAML flow definition and runs its local
// validation. Cross-flow checks happen when the flow joins a Library.
func ParseFlow(data []byte) (*Flow, error) {
	var f Flow
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse flow definition: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the flow in isolation: ids present and unique, entry node
// defined, every transition target defined, every node reachable from entry.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("flow is missing an id")
	}
	if f.Entry == "" {
		return fmt.Errorf("flow %q is missing an entry node", f.ID)
	}
	if len(f.Nodes) == 0 {
		return fmt.Errorf("flow %q defines no nodes", f.ID)
	}

	f.byID = make(map[string]*Node, len(f.Nodes))
	for _, n := range f.Nodes {
		if n.ID == "" {
			return fmt.Errorf("flow %q contains a node without an id", f.ID)
		}
		if _, dup := f.byID[n.ID]; dup {
			return fmt.Errorf("flow %q defines node %q twice", f.ID, n.ID)
		}
		f.byID[n.ID] = n
	}
	if _, ok := f.byID[f.Entry]; !ok {
		return fmt.Errorf("flow %q entry node %q is not defined", f.ID, f.Entry)
	}

	for _, n := range f.Nodes {
		for _, t := range n.Transitions {
			if t.Intent == "" {
				return fmt.Errorf("flow %q node %q has a transition without an intent", f.ID, n.ID)
			}
			if _, ok := f.byID[t.Target]; !ok {
				return fmt.Errorf("flow %q node %q transition %q targets undefined node %q", f.ID, n.ID, t.Intent, t.Target)
			}
		}
		if n.Action != nil {
			if err := validateActionSpec(f.ID, n.ID, n.Action); err != nil {
				return err
			}
		}
		for _, s := range n.Slots {
			if s.Name == "" || s.Type == "" {
				return fmt.Errorf("flow %q node %q declares a slot without name or type", f.ID, n.ID)
			}
		}
	}

	if unreached := f.unreachable(); len(unreached) > 0 {
		return fmt.Errorf("flow %q has unreachable nodes: %v", f.ID, unreached)
	}
	return nil
}

func validateActionSpec(flowID, nodeID string, a *ActionSpec) error {
	switch a.Kind {
	case "", ActionRespond, ActionEndConversation:
		return nil
	case ActionPrompt:
		return nil
	case ActionCallService:
		if a.Service == "" || a.Method == "" {
			return fmt.Errorf("flow %q node %q call_service action needs service and method", flowID, nodeID)
		}
		return nil
	case ActionTransferFlow:
		if a.Flow == "" {
			return fmt.Errorf("flow %q node %q transfer action needs a target flow", flowID, nodeID)
		}
		return nil
	default:
		return fmt.Errorf("flow %q node %q has unknown action kind %q", flowID, nodeID, a.Kind)
	}
}

// unreachable walks the transition graph from the entry node and reports
// node ids nothing can reach.
func (f *Flow) unreachable() []string {
	seen := map[string]bool{f.Entry: true}
	stack := []string{f.Entry}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, t := range f.byID[id].Transitions {
			if !seen[t.Target] {
				seen[t.Target] = true
				stack = append(stack, t.Target)
			}
		}
	}
	var missing []string
	for _, n := range f.Nodes {
		if !seen[n.ID] {
			missing = append(missing, n.ID)
		}
	}
	return missing
}

// Node returns the node with the given id, or nil.
func (f *Flow) Node(id string) *Node {
	return f.byID[id]
}

// Match scans the node's transition table in declaration order and returns
// the first entry for the intent, falling back to the wildcard entry.
func (n *Node) Match(intent string) (Transition, bool) {
	for _, t := range n.Transitions {
		if t.Intent == intent {
			return t, true
		}
	}
	for _, t := range n.Transitions {
		if t.Intent == WildcardIntent {
			return t, true
		}
	}
	return Transition{}, false
}

// action resolves the node's effective action, defaulting to a respond with
// the node's template.
func (n *Node) action() ActionSpec {
	if n.Action == nil {
		return ActionSpec{Kind: ActionRespond}
	}
	a := *n.Action
	if a.Kind == "" {
		a.Kind = ActionRespond
	}
	return a
}
