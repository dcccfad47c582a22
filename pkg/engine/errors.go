package engine

import "fmt"

func missingParam(key string) error {
	return fmt.Errorf("missing required parameter %q", key)
}

func badParamType(key, want string) error {
	return fmt.Errorf("parameter %q must be a %s", key, want)
}

func unknownSession(id string) error {
	return fmt.Errorf("unknown session %q", id)
}

func unknownCommand(kind CommandKind) error {
	return fmt.Errorf("unknown command %q", kind)
}
