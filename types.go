// Package research implements an investigative-journalism research engine
// that turns a natural-language question into a structured, cited report.
//
// The domain types and the DeepResearchEngine implementation live in the
// engine subpackage; this package is the thin public facade SPEC_FULL.md
// §6 describes (Run, StreamProgress, ListSources), re-exporting the types
// callers need without forcing them to import engine directly.
package research

import "github.com/brianmills2718/osint-deep-research/engine"

type (
	Sensitivity           = engine.Sensitivity
	Question              = engine.Question
	RunRecord              = engine.RunRecord
	SubtaskRecord          = engine.SubtaskRecord
	CostBreakdown          = engine.CostBreakdown
	CriticalSourceFailure = engine.CriticalSourceFailure
	Report                 = engine.Report
	SubtaskFinding         = engine.SubtaskFinding
	EntityType             = engine.EntityType
	EntityRelationship     = engine.EntityRelationship
	Entity                 = engine.Entity
)

const (
	SensitivityPublic    = engine.SensitivityPublic
	SensitivitySensitive = engine.SensitivitySensitive
)

const (
	EntityPerson       = engine.EntityPerson
	EntityOrganization = engine.EntityOrganization
	EntityProgram      = engine.EntityProgram
	EntityLocation     = engine.EntityLocation
	EntityEvent        = engine.EntityEvent
	EntityConcept      = engine.EntityConcept
)

// WithRunID lets a caller (cmd/researchd's POST /runs handler, in
// particular) choose the run id Run will use, so it can be handed back to
// the client before the run completes and used immediately with
// StreamProgress.
var WithRunID = engine.WithRunID
