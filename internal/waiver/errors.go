package waiver

import (
	"errors"
	"fmt"

	"waiver-wire/internal/domain"
)

// ValidationCode identifies why a submission was rejected.
type ValidationCode string

const (
	CodeWaiversNotConfigured ValidationCode = "WAIVERS_NOT_CONFIGURED"
	CodeTeamNotFound         ValidationCode = "TEAM_NOT_FOUND"
	CodeInvalidKind          ValidationCode = "INVALID_KIND"
	CodeMissingPlayerRef     ValidationCode = "MISSING_PLAYER_REF"
	CodePlayerNotFreeAgent   ValidationCode = "PLAYER_NOT_FREE_AGENT"
	CodePlayerNotOnRoster    ValidationCode = "PLAYER_NOT_ON_ROSTER"
	CodeBidBelowMinimum      ValidationCode = "BID_BELOW_MINIMUM"
	CodeBidExceedsBudget     ValidationCode = "BID_EXCEEDS_BUDGET"
	CodeDuplicatePending     ValidationCode = "DUPLICATE_PENDING_CLAIM"
)

// ValidationError is returned by SubmitClaim when a request is rejected.
// No claim is persisted.
type ValidationError struct {
	Code    ValidationCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalid(code ValidationCode, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsValidationCode reports whether err is a ValidationError with the given code.
func IsValidationCode(err error, code ValidationCode) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Code == code
}

// ExecutionError is a claim-level failure raised by the Executor.
// The reason is recorded on the claim; the run continues.
type ExecutionError struct {
	Reason domain.FailureReason
	Detail string
}

func (e *ExecutionError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func failed(reason domain.FailureReason, format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Cancellation and run errors.
var (
	ErrClaimNotFound  = errors.New("claim not found")
	ErrNotPending     = errors.New("claim is not pending")
	ErrNotOwner       = errors.New("claim belongs to another team")
	ErrRunInProgress  = errors.New("waiver run in progress for league")
	ErrLeagueNotFound = errors.New("league not found")
	ErrNoWaiverRules  = errors.New("league has no waiver rules")
)
