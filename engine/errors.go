package engine

import (
	"errors"
	"fmt"

	"github.com/brianmills2718/osint-deep-research/integration"
)

// Sentinel errors for comparison with errors.Is(). Concrete failures are
// wrapped in Error below, which carries the operation and entity context.
//
// ErrRateLimited/ErrTimeout/ErrAntiBotChallenge/ErrUpstreamMalformed alias
// the integration package's sentinels rather than redeclaring them, so a
// concrete integration and the engine that dispatches it agree on the
// same error identity without engine importing anything integrations
// don't already import themselves.
var (
	ErrConfigInvalid       = errors.New("configuration invalid")
	ErrPromptNotFound      = errors.New("prompt template not found")
	ErrPromptRenderError   = errors.New("prompt render error")
	ErrIntegrationInit     = errors.New("integration initialization failed")
	ErrLLMTransport        = errors.New("llm transport error")
	ErrLLMParse            = errors.New("llm structured output parse error")
	ErrLLMBudgetExceeded   = errors.New("llm budget exceeded")
	ErrQueryGenOptOut      = errors.New("integration opted out of query generation")
	ErrRateLimited         = integration.ErrRateLimited
	ErrTimeout             = integration.ErrTimeout
	ErrAntiBotChallenge    = integration.ErrAntiBotChallenge
	ErrUpstreamMalformed   = integration.ErrUpstreamMalformed
	ErrCorruptArchiveEntry = errors.New("corrupt archive entry")
	ErrCriticalSource      = errors.New("critical source failure")
)

// Error provides structured error context and supports errors.Is/As via Unwrap.
type Error struct {
	Op      string // operation that failed, e.g. "engine.Decompose"
	Kind    string // coarse category, e.g. "llm", "integration", "config"
	ID      string // optional entity id involved (run id, subtask id, source id)
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error wrapping err with operation/kind context.
func NewError(op, kind string, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithID attaches an entity id to an Error.
func (e *Error) WithID(id string) *Error {
	e.ID = id
	return e
}

// IsRetryable reports whether err represents a transient condition worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrLLMTransport)
}

// IsSourceFailure reports whether err represents a per-source dispatch failure
// (as opposed to a config/programming error).
func IsSourceFailure(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrAntiBotChallenge) ||
		errors.Is(err, ErrUpstreamMalformed)
}

// IsConfigurationError reports whether err is a configuration problem.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfigInvalid) ||
		errors.Is(err, ErrPromptNotFound) ||
		errors.Is(err, ErrPromptRenderError)
}
