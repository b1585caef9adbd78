package integration

import "errors"

// Sentinel errors every concrete integration wraps its transport failures
// in, so engine.dispatch can classify an outcome by errors.Is instead of
// matching provider-specific message text. Kept here, rather than in
// engine, so integrations (which engine imports, never the reverse) can
// reference them directly.
var (
	ErrRateLimited      = errors.New("integration: rate limited")
	ErrTimeout          = errors.New("integration: timed out")
	ErrAntiBotChallenge = errors.New("integration: anti-bot challenge encountered")
	ErrUpstreamMalformed = errors.New("integration: upstream response malformed")
)
