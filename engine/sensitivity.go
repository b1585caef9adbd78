package engine

import "strings"

// sensitivityMarkers are checked case-insensitively against the question
// text. Any match classifies the question sensitive, which lowers the
// relevance acceptance threshold (spec.md §4.6.2): classified topics
// surface only indirect evidence — budget-line mentions, oblique press
// coverage — that a public-question threshold would reject outright.
var sensitivityMarkers = []string{
	"classified",
	"covert",
	"black budget",
	"black site",
	"compartmented",
	"top secret",
	"special access program",
	"sap program",
	"sigint",
	"humint",
	"osint tasking",
	"clandestine",
	"rendition",
	"surveillance program",
	"nsa program",
	"cia program",
	"intelligence community",
}

// detectSensitivity is a deterministic keyword gate, not an LLM call — the
// classification must be cheap and reproducible since it sets the
// relevance threshold for every downstream scoring decision in the run.
func detectSensitivity(questionText string) Sensitivity {
	lower := strings.ToLower(questionText)
	for _, marker := range sensitivityMarkers {
		if strings.Contains(lower, marker) {
			return SensitivitySensitive
		}
	}
	return SensitivityPublic
}
