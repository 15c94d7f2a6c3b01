package toxcall

import (
	"errors"
	"fmt"

	"github.com/opd-ai/toxcall/engine"
)

// ErrContractViolation is the sentinel matched by every contract violation.
var ErrContractViolation = errors.New("call coordinator contract violation")

// ContractViolationError describes misuse of the Coordinator. It is raised
// with panic in the goroutine that misused the API and is never returned.
type ContractViolationError struct {
	Op     string
	Reason string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrContractViolation, e.Op, e.Reason)
}

func (e *ContractViolationError) Unwrap() error { return ErrContractViolation }

func violation(op, reason string) *ContractViolationError {
	return &ContractViolationError{Op: op, Reason: reason}
}

// OperationError is returned when the engine rejects a call operation.
// Message is the text that was also emitted as an error event.
type OperationError struct {
	Op      engine.Op
	PeerID  uint32
	Message string
	Err     error
}

func (e *OperationError) Error() string { return e.Message }

func (e *OperationError) Unwrap() error { return e.Err }
