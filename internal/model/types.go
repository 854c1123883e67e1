// Package model defines the record types shared by the store, the extractor,
// and the graph: specifications with acceptance criteria, tests, code units,
// captured knowledge (patterns and failures), and typed links.
package model

import (
	"time"

	"tkb/internal/errors"
)

// SpecStatus is the lifecycle status of a specification
type SpecStatus string

const (
	StatusDraft      SpecStatus = "Draft"
	StatusReady      SpecStatus = "Ready"
	StatusInProgress SpecStatus = "InProgress"
	StatusDone       SpecStatus = "Done"
)

// IsValidStatus checks if a status string is valid
func IsValidStatus(status string) bool {
	switch SpecStatus(status) {
	case StatusDraft, StatusReady, StatusInProgress, StatusDone:
		return true
	default:
		return false
	}
}

// AcceptanceCriterion is one testable condition within a specification,
// identified by (spec id, ac id).
type AcceptanceCriterion struct {
	ID   string `json:"id"` // "AC-1" style
	Text string `json:"text"`
}

// Specification is a versioned requirement document with a stable id.
// Specifications are never physically deleted, only archived.
type Specification struct {
	ID       string                `json:"id"` // "FEAT-001" style
	Status   SpecStatus            `json:"status"`
	Title    string                `json:"title,omitempty"`
	ACs      []AcceptanceCriterion `json:"acs,omitempty"`
	Body     string                `json:"body,omitempty"`
	FilePath string                `json:"filePath,omitempty"`
	Archived bool                  `json:"archived,omitempty"`
}

// Test is a test symbol claiming to verify (spec, ac) pairs.
// Identity is (file path, symbol name).
type Test struct {
	FilePath string   `json:"filePath"`
	Symbol   string   `json:"symbol"`
	Verifies []string `json:"verifies,omitempty"` // "FEAT-001/AC-2" node ids
}

// CodeUnit is a code symbol claiming to implement specifications.
// Identity is (file path, symbol name).
type CodeUnit struct {
	FilePath   string   `json:"filePath"`
	Symbol     string   `json:"symbol"`
	Implements []string `json:"implements,omitempty"` // spec ids
}

// Pattern is a captured, reusable approach with a tracked success rate.
// Identity is (domain, title). SuccessRate is always recomputed from the
// counter pair, never stored.
type Pattern struct {
	Domain    string    `json:"domain"`
	Title     string    `json:"title"`
	UID       string    `json:"uid,omitempty"` // collision-resistant, identity + content hash
	Prompt    string    `json:"prompt,omitempty"`
	Context   string    `json:"context,omitempty"`
	Gotcha    string    `json:"gotcha,omitempty"`
	Successes int       `json:"successes"`
	Attempts  int       `json:"attempts"`
	LastUsed  time.Time `json:"lastUsed"`
}

// SuccessRate returns successes/attempts, 0 when attempts is 0.
func (p *Pattern) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}

// Failure is a captured dead end worth not repeating.
// Identity is (domain, title).
type Failure struct {
	Domain         string    `json:"domain"`
	Title          string    `json:"title"`
	UID            string    `json:"uid,omitempty"`
	Problem        string    `json:"problem,omitempty"`
	TimeWasted     string    `json:"timeWasted,omitempty"`
	BetterApproach string    `json:"betterApproach,omitempty"`
	Date           time.Time `json:"date"`
}

// LinkType is the type of a directed edge between artifacts
type LinkType string

const (
	LinkImplements     LinkType = "implements"
	LinkTests          LinkType = "tests"
	LinkBlocks         LinkType = "blocks"
	LinkParent         LinkType = "parent"
	LinkDiscoveredFrom LinkType = "discovered_from"
	LinkRelated        LinkType = "related"
)

// IsValidLinkType checks if a link type string is valid
func IsValidLinkType(t string) bool {
	switch LinkType(t) {
	case LinkImplements, LinkTests, LinkBlocks, LinkParent, LinkDiscoveredFrom, LinkRelated:
		return true
	default:
		return false
	}
}

// Link is a typed directed edge between two artifacts.
type Link struct {
	UID  string   `json:"uid,omitempty"`
	From string   `json:"from"`
	To   string   `json:"to"`
	Type LinkType `json:"type"`
}

// Reference is a typed reference extracted from artifact text, carrying its
// source position for error reporting.
type Reference struct {
	From string          `json:"from"` // source node id
	To   string          `json:"to"`   // target node id
	Type LinkType        `json:"type"`
	Pos  errors.Position `json:"pos"`
}

// Waiver is a documented exemption from the coverage gate for one AC.
type Waiver struct {
	SpecID string `json:"specId"`
	ACID   string `json:"acId"`
	Owner  string `json:"owner"`
	Reason string `json:"reason"`
}

// TestOutcome is an externally supplied test result
type TestOutcome string

const (
	OutcomePass TestOutcome = "pass"
	OutcomeFail TestOutcome = "fail"
)

// TestResults maps test node ids to their most recent outcome.
// Supplied by the surrounding test runner; tkb never executes tests.
type TestResults map[string]TestOutcome
