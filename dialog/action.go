package dialog

// ActionKind identifies what the conversation engine should do with a turn
// once the dialog manager has stepped the flow graph.
type ActionKind string

const (
	// ActionRespond renders a template directly.
	ActionRespond ActionKind = "respond"
	// ActionPrompt asks the user for a missing slot value.
	ActionPrompt ActionKind = "prompt"
	// ActionCallService invokes a named service method and renders its result.
	ActionCallService ActionKind = "call_service"
	// ActionTransferFlow hands the conversation to another flow. The manager
	// resolves transfers internally, so callers normally never see this kind.
	ActionTransferFlow ActionKind = "transfer_to_flow"
	// ActionEndConversation says goodbye and closes the exchange.
	ActionEndConversation ActionKind = "end_conversation"
)

// Action is the manager's instruction for one turn. Only the fields relevant
// to Kind are populated: TemplateID for respond, Slot plus TemplateID for
// prompt, Service/Method/Params for call_service, FlowID for transfers.
type Action struct {
	Kind        ActionKind
	TemplateID  string
	Slot        string
	Service     string
	Method      string
	FlowID      string
	Params      map[string]string
	Suggestions []string
}

// Respond builds a plain template action.
func Respond(templateID string) Action {
	return Action{Kind: ActionRespond, TemplateID: templateID}
}

// Prompt builds a slot-elicitation action.
func Prompt(slot, templateID string) Action {
	return Action{Kind: ActionPrompt, Slot: slot, TemplateID: templateID}
}
