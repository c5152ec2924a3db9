// Package txn coordinates framework validation transactions: it decides
// per artifact whether the registered version, the local file, or a
// freshly minted version is the one to use, aggregates the outcomes into
// a single verdict, and can undo provisional registrations.
package txn

import (
	"time"
)

// Result is the terminal state of one artifact's validation.
type Result string

const (
	// ResultValid: the registered version is usable as-is.
	ResultValid Result = "VALID"
	// ResultVersionMismatch: the requested version exists under a
	// different spelling than any the authority tolerates.
	ResultVersionMismatch Result = "VERSION_MISMATCH"
	// ResultContentChanged: the local file drifted from the registered
	// content; a new version was minted and committed.
	ResultContentChanged Result = "CONTENT_CHANGED"
	// ResultNotFound: absent from both the authority and the filesystem.
	ResultNotFound Result = "NOT_FOUND"
	// ResultValidationError: the content was rejected or an unexpected
	// failure occurred while validating.
	ResultValidationError Result = "VALIDATION_ERROR"
	// ResultTransactionFailure: a write to the authority or asset store
	// failed mid-commit.
	ResultTransactionFailure Result = "TRANSACTION_FAILURE"
)

// acceptable reports whether a result leaves the transaction valid.
func (r Result) acceptable() bool {
	return r == ResultValid || r == ResultContentChanged
}

// State is the per-artifact audit record of one transaction. It is
// created when validation starts, finalized when validation ends, and
// immutable thereafter.
type State struct {
	ArtifactName      string   `json:"artifact_name"`
	RequestedVersion  string   `json:"requested_version,omitempty"`
	ResolvedVersion   string   `json:"resolved_version,omitempty"`
	ContentHash       string   `json:"content_hash,omitempty"`
	Result            Result   `json:"result"`
	NewVersionCreated bool     `json:"new_version_created"`
	Errors            []string `json:"errors,omitempty"`
}

// Transaction is one bounded validate/allocate/commit cycle over a set
// of artifacts.
type Transaction struct {
	ID        string    `json:"transaction_id"`
	States    []State   `json:"states"`
	StartTime time.Time `json:"start_time"`
}
