package normalize

import (
	"errors"
	"fmt"
)

// ContractError reports a programming-contract violation: the graph or a
// plan reached a state the caller promised impossible. These are genuine
// errors, unlike solver conflicts and blocked obligations, which are
// recorded as values.
type ContractError struct {
	Code    ContractErrorCode
	Message string

	// ObligationID identifies the plan's obligation, when relevant.
	ObligationID string
}

// ContractErrorCode categorizes contract violations.
type ContractErrorCode string

const (
	// ErrCodePlanPartiallyApplied indicates an elaboration plan was found
	// half-present in the graph, meaning a corrupted caller.
	ErrCodePlanPartiallyApplied ContractErrorCode = "PLAN_PARTIALLY_APPLIED"

	// ErrCodeDuplicateID indicates the upstream graph carries duplicate
	// block or edge ids.
	ErrCodeDuplicateID ContractErrorCode = "DUPLICATE_ID"

	// ErrCodeUnknownObligation indicates a status update for an obligation
	// absent from the ledger.
	ErrCodeUnknownObligation ContractErrorCode = "UNKNOWN_OBLIGATION"
)

// Error implements the error interface.
func (e *ContractError) Error() string {
	if e.ObligationID != "" {
		return fmt.Sprintf("%s: %s (obligation=%s)", e.Code, e.Message, e.ObligationID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsPartialApply reports whether err is a partially-applied-plan violation.
// Uses errors.As to handle wrapped errors.
func IsPartialApply(err error) bool {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code == ErrCodePlanPartiallyApplied
	}
	return false
}
