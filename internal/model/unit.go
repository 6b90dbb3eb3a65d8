// Package model defines the core reconciliation data types.
package model

// Outcome is the terminal result recorded for a processed unit.
type Outcome string

const (
	OutcomeDeleted      Outcome = "deleted"
	OutcomeUploaded     Outcome = "uploaded"
	OutcomeRelocated    Outcome = "relocated"
	OutcomeSkippedEmpty Outcome = "skipped-empty"
)

// ValidOutcomes are the outcomes accepted by the journal and state store.
var ValidOutcomes = map[Outcome]bool{
	OutcomeDeleted:      true,
	OutcomeUploaded:     true,
	OutcomeRelocated:    true,
	OutcomeSkippedEmpty: true,
}

// Unit is one directory's worth of candidate files. Units are built fresh on
// every scan and never mutated afterwards.
type Unit struct {
	Path               string   `json:"path"`
	DisplayName        string   `json:"display_name"`
	Files              []string `json:"files"`
	HasPrimaryDocument bool     `json:"has_primary_document"`
	PrimaryFiles       []string `json:"primary_files,omitempty"`
	SecondaryFiles     []string `json:"secondary_files,omitempty"`
	SizeBytes          int64    `json:"size_bytes"`
}

// Method names the strategy that produced a remote verdict.
type Method string

const (
	MethodNone             Method = "none"
	MethodTitleSearch      Method = "title-search"
	MethodIdentifierProbe  Method = "identifier-probe"
	MethodIdentifierPrefix Method = "identifier-prefix"
)

// MatchResult is the outcome of a remote existence check.
type MatchResult struct {
	Found             bool   `json:"found"`
	MatchedIdentifier string `json:"matched_identifier,omitempty"`
	MatchedTitle      string `json:"matched_title,omitempty"`
	Method            Method `json:"method"`
	// Inconclusive is set when a strategy gave up without a verdict and
	// no other strategy found a match. Found is always false then.
	Inconclusive bool `json:"inconclusive,omitempty"`
}
