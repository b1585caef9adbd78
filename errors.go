package research

import "github.com/brianmills2718/osint-deep-research/engine"

// Sentinel errors and the structured Error wrapper live in engine
// (engine.Error mirrors the teacher's FrameworkError convention); this
// package re-exports them so callers of the public Run/StreamProgress
// surface don't need a second import for errors.Is comparisons.
var (
	ErrConfigInvalid       = engine.ErrConfigInvalid
	ErrPromptNotFound      = engine.ErrPromptNotFound
	ErrPromptRenderError   = engine.ErrPromptRenderError
	ErrIntegrationInit     = engine.ErrIntegrationInit
	ErrLLMTransport        = engine.ErrLLMTransport
	ErrLLMParse            = engine.ErrLLMParse
	ErrLLMBudgetExceeded   = engine.ErrLLMBudgetExceeded
	ErrQueryGenOptOut      = engine.ErrQueryGenOptOut
	ErrRateLimited         = engine.ErrRateLimited
	ErrTimeout             = engine.ErrTimeout
	ErrAntiBotChallenge    = engine.ErrAntiBotChallenge
	ErrUpstreamMalformed   = engine.ErrUpstreamMalformed
	ErrCorruptArchiveEntry = engine.ErrCorruptArchiveEntry
	ErrCriticalSource      = engine.ErrCriticalSource
)

type Error = engine.Error

var (
	NewError            = engine.NewError
	IsRetryable         = engine.IsRetryable
	IsSourceFailure     = engine.IsSourceFailure
	IsConfigurationError = engine.IsConfigurationError
)
