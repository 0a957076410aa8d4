package executor

import (
	"errors"
	"fmt"
)

var ErrNoTransport = errors.New("no transport configured")

type ErrOperatorNotFound struct {
	ExecutorName string
	OperatorName string
}

func (e ErrOperatorNotFound) Error() string {
	return fmt.Sprintf("invalid operator '%s' for executor '%s'", e.OperatorName, e.ExecutorName)
}

type ErrArgMissing struct {
	ArgName string
}

func (e ErrArgMissing) Error() string {
	return fmt.Sprintf("requested argument '%s' does not exist", e.ArgName)
}

type ErrInvalidArgumentType struct {
	Name     string
	Expected string
	Received string
}

func (e ErrInvalidArgumentType) Error() string {
	return fmt.Sprintf("argument '%s' must be of type '%s', but received '%s'",
		e.Name, e.Expected, e.Received)
}

// ErrNodeFailed wraps the error of the workflow node that stopped a run.
type ErrNodeFailed struct {
	Workflow string
	Node     string
	Operator string
	Err      error
}

func (e ErrNodeFailed) Error() string {
	return fmt.Sprintf("workflow '%s' failed at %s/%s: %v", e.Workflow, e.Node, e.Operator, e.Err)
}

func (e ErrNodeFailed) Unwrap() error {
	return e.Err
}
