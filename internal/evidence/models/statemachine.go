package models

// validTransitions maps each state to the states it may move to. Draft may
// go straight to Under Review because a submit on a never-pended draft is
// allowed. Archived is terminal.
var validTransitions = map[VerificationStatus][]VerificationStatus{
	StatusDraft:       {StatusPending, StatusUnderReview},
	StatusPending:     {StatusUnderReview},
	StatusUnderReview: {StatusVerified, StatusRejected},
	StatusVerified:    {StatusArchived},
	StatusRejected:    {StatusPending},
	StatusArchived:    {},
}

// CanTransition reports whether evidence may move from one state to another.
// A same-state transition is always permitted.
func CanTransition(from, to VerificationStatus) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the states reachable from the given state,
// excluding the state itself. The result is a copy.
func ValidTransitions(from VerificationStatus) []VerificationStatus {
	next := validTransitions[from]
	out := make([]VerificationStatus, len(next))
	copy(out, next)
	return out
}
