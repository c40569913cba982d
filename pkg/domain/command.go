package domain

// Command is a client-to-executor request. The two variants marshal to
// the wire shapes {"action":"execute",...} and {"action":"stop",...}.
type Command interface {
	// CommandNodeID returns the node the command targets.
	CommandNodeID() string
	// Action returns the wire action discriminator.
	Action() string
}

// ExecuteCommand asks the executor to run one node.
type ExecuteCommand struct {
	ActionName string         `json:"action"`
	NodeID     string         `json:"nodeId"`
	NodeType   NodeKind       `json:"nodeType"`
	InputData  map[string]any `json:"inputData,omitempty"`
}

// NewExecuteCommand builds an execute request for a node, with a snapshot
// of its input data taken at dispatch time.
func NewExecuteCommand(nodeID string, kind NodeKind, input map[string]any) ExecuteCommand {
	return ExecuteCommand{
		ActionName: "execute",
		NodeID:     nodeID,
		NodeType:   kind,
		InputData:  input,
	}
}

func (c ExecuteCommand) CommandNodeID() string { return c.NodeID }
func (c ExecuteCommand) Action() string        { return "execute" }

// StopCommand asks the executor to stop a running node. Best effort: the
// local record is not touched until a remote event confirms the outcome.
type StopCommand struct {
	ActionName string `json:"action"`
	NodeID     string `json:"nodeId"`
}

// NewStopCommand builds a stop request for a node.
func NewStopCommand(nodeID string) StopCommand {
	return StopCommand{ActionName: "stop", NodeID: nodeID}
}

func (c StopCommand) CommandNodeID() string { return c.NodeID }
func (c StopCommand) Action() string        { return "stop" }
