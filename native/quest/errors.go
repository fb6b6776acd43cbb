package quest

import (
	"errors"

	"questvault/native/access"
	"questvault/native/custody"
)

var (
	ErrQuestExists           = errors.New("quest: quest already exists")
	ErrEmptyRewards          = errors.New("quest: rewards shouldn't be empty")
	ErrInvalidAssetKind      = errors.New("quest: contract does not support asset kind")
	ErrQuestNotFound         = errors.New("quest: quest does not exist")
	ErrQuestNotClaimable     = errors.New("quest: quest is not claimable")
	ErrWinnerNotDefined      = errors.New("quest: winner is not defined")
	ErrInsufficientReward    = errors.New("quest: insufficient reward")
	ErrTransferFailed        = errors.New("quest: transfer failed")
	ErrLengthMismatch        = errors.New("quest: batch length mismatch")
	ErrAssetNotEligible      = errors.New("quest: asset not eligible for quest")
	ErrDuplicateUniqueReward = errors.New("quest: unique reward already assigned")
	ErrInvalidAmount         = errors.New("quest: invalid amount")
	ErrInvalidParticipant    = errors.New("quest: invalid participant")
	ErrConservation          = errors.New("quest: pool accounting out of balance")

	// ErrUnauthorized is returned when the caller lacks the role an operation
	// requires.
	ErrUnauthorized = access.ErrUnauthorized

	errNilState = errors.New("quest: state not configured")
)

// Class groups errors by how a caller can resolve them.
type Class uint8

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassState
	ClassResource
	ClassAuthorization
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassState:
		return "state"
	case ClassResource:
		return "resource"
	case ClassAuthorization:
		return "authorization"
	default:
		return "unknown"
	}
}

var (
	validationErrors = []error{
		ErrQuestExists, ErrEmptyRewards, ErrInvalidAssetKind, ErrLengthMismatch,
		ErrAssetNotEligible, ErrDuplicateUniqueReward, ErrInvalidAmount, ErrInvalidParticipant,
	}
	stateErrors    = []error{ErrQuestNotFound, ErrQuestNotClaimable, ErrWinnerNotDefined}
	resourceErrors = []error{ErrTransferFailed, ErrInsufficientReward, custody.ErrInsufficientCustody}
	authErrors     = []error{access.ErrUnauthorized, custody.ErrUnauthorized, custody.ErrNotApproved}
)

// Classify returns the class of err. Transfer failures are classified as
// resource errors even when the custodian reported an approval problem.
func Classify(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	for _, group := range []struct {
		class  Class
		errors []error
	}{
		{ClassResource, resourceErrors},
		{ClassAuthorization, authErrors},
		{ClassValidation, validationErrors},
		{ClassState, stateErrors},
	} {
		for _, target := range group.errors {
			if errors.Is(err, target) {
				return group.class
			}
		}
	}
	return ClassUnknown
}
