// Package engine implements the Command/Event dispatch engine (C8): a
// transport-agnostic command table routing to Session and WorkflowRun
// operations, publishing events to an injected EventSink. The engine
// performs no framing, no networking, and no logging configuration of
// its own.
package engine

// CommandKind enumerates every command the engine accepts.
type CommandKind string

const (
	CmdPing   CommandKind = "PING"
	CmdShutdown CommandKind = "SHUTDOWN"

	CmdCreateSession CommandKind = "CREATE_SESSION"
	CmdDeleteSession CommandKind = "DELETE_SESSION"
	CmdListSessions  CommandKind = "LIST_SESSIONS"
	CmdGetSession    CommandKind = "GET_SESSION"

	CmdCreateNode CommandKind = "CREATE_NODE"
	CmdStopNode   CommandKind = "STOP_NODE"
	CmdListNodes  CommandKind = "LIST_NODES"
	CmdGetNode    CommandKind = "GET_NODE"

	CmdExecuteInput  CommandKind = "EXECUTE_INPUT"
	CmdRunCommand    CommandKind = "RUN_COMMAND"
	CmdWriteData     CommandKind = "WRITE_DATA"
	CmdSendInterrupt CommandKind = "SEND_INTERRUPT"
	CmdGetBuffer     CommandKind = "GET_BUFFER"
	CmdGetHistory    CommandKind = "GET_HISTORY"

	CmdCreateGraph CommandKind = "CREATE_GRAPH"
	CmdDeleteGraph CommandKind = "DELETE_GRAPH"
	CmdListGraphs  CommandKind = "LIST_GRAPHS"
	CmdRunGraph    CommandKind = "RUN_GRAPH"

	CmdExecuteWorkflow  CommandKind = "EXECUTE_WORKFLOW"
	CmdListWorkflows    CommandKind = "LIST_WORKFLOWS"
	CmdGetWorkflowRun   CommandKind = "GET_WORKFLOW_RUN"
	CmdListWorkflowRuns CommandKind = "LIST_WORKFLOW_RUNS"
	CmdAnswerGate       CommandKind = "ANSWER_GATE"
	CmdCancelWorkflow   CommandKind = "CANCEL_WORKFLOW"
)

// Command is one request into the engine: a kind, an optional
// session_id selecting the target session (absent means the default
// session; unknown is an error), and a permissive parameter bag.
type Command struct {
	Kind      CommandKind
	SessionID string
	Params    map[string]any
}

// Response is the engine's reply to a dispatched Command.
type Response struct {
	Success bool
	Data    any
	Error   string
}

func ok(data any) (Response, error) {
	return Response{Success: true, Data: data}, nil
}

func fail(err error) (Response, error) {
	return Response{Success: false, Error: err.Error()}, nil
}

// requireString extracts a required string parameter, failing with a
// descriptive error on absence so the caller can fail the command with
// ValueError-equivalent semantics rather than panicking on a missing
// key.
func requireString(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", missingParam(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", badParamType(key, "string")
	}
	return s, nil
}

func optionalString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

func optionalBool(params map[string]any, key string) *bool {
	v, ok := params[key]
	if !ok {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}
