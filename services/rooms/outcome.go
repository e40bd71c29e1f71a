package rooms

import (
	"fmt"
	"log"

	"github.com/google/uuid"
)

// FailureCode is the closed set of user-facing failure classes. The HTTP
// layer is the only place these are translated into status codes.
type FailureCode string

const (
	CodeValidation        FailureCode = "ValidationError"
	CodeNotFound          FailureCode = "NotFound"
	CodeConflict          FailureCode = "Conflict"
	CodeForbidden         FailureCode = "Forbidden"
	CodeInvalidTransition FailureCode = "InvalidTransition"
	CodeInternal          FailureCode = "InternalError"
)

// Failure is the typed error every public lifecycle operation returns.
// Internal failures never expose storage detail: callers get a generic
// reason plus a correlation id that also appears in the server logs.
type Failure struct {
	Code          FailureCode
	Reason        string
	CorrelationID string
}

func (f *Failure) Error() string {
	if f.CorrelationID != "" {
		return fmt.Sprintf("%s: %s (correlation %s)", f.Code, f.Reason, f.CorrelationID)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Reason)
}

func validationFailure(reason string) *Failure {
	return &Failure{Code: CodeValidation, Reason: reason}
}

func notFoundFailure(reason string) *Failure {
	return &Failure{Code: CodeNotFound, Reason: reason}
}

func conflictFailure(reason string) *Failure {
	return &Failure{Code: CodeConflict, Reason: reason}
}

func forbiddenFailure(reason string) *Failure {
	return &Failure{Code: CodeForbidden, Reason: reason}
}

func invalidTransitionFailure(reason string) *Failure {
	return &Failure{Code: CodeInvalidTransition, Reason: reason}
}

// internalFailure logs the underlying error with a fresh correlation id
// and returns the opaque failure handed to the caller.
func internalFailure(op string, err error) *Failure {
	correlation := uuid.NewString()
	log.Printf("[ROOMS-INTERNAL] correlation=%s op=%s err=%v", correlation, op, err)
	return &Failure{
		Code:          CodeInternal,
		Reason:        "internal error",
		CorrelationID: correlation,
	}
}
