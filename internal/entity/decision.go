package entity

// Decision is the verdict for a document. Values are totally ordered:
// OK < NEEDS_REVIEW < REPROVADO.
type Decision string

const (
	DecisionOK          Decision = "OK"
	DecisionNeedsReview Decision = "NEEDS_REVIEW"
	DecisionRejected    Decision = "REPROVADO"
)

func (d Decision) rank() int {
	switch d {
	case DecisionNeedsReview:
		return 1
	case DecisionRejected:
		return 2
	default:
		return 0
	}
}

// Join returns the more severe of d and other.
func (d Decision) Join(other Decision) Decision {
	if other.rank() > d.rank() {
		return other
	}
	if d == "" {
		return DecisionOK
	}
	return d
}

// AtLeast reports whether d is as severe as other.
func (d Decision) AtLeast(other Decision) bool {
	return d.rank() >= other.rank()
}
