package ecoguard

// Method names the evidence that produced a duplicate verdict.
type Method string

const (
	MethodNone      Method = "none"
	MethodHash      Method = "hash"
	MethodMultiHash Method = "multi-hash"
	MethodCombined  Method = "combined"
)

// Decision is the product action a verdict maps to.
type Decision string

const (
	DecisionAccept    Decision = "accept"
	DecisionReview    Decision = "review"    // keep the submission, defer to a moderator
	DecisionReject    Decision = "reject"    // confident duplicate
	DecisionThrottled Decision = "throttled" // cooldown or hourly limit, image not evaluated
)

// Signal is a single evidence point considered for a verdict.
type Signal struct {
	Source string  // "primary_hash", "secondary_hash", "frequency_hash", "histogram_veto", "histogram_boost", "quality"
	Detail string  // human-readable detail
	Value  float64 // distance, correlation or factor, depending on Source
}

// Verdict is the outcome of a duplicate check.
type Verdict struct {
	IsDuplicate         bool     `json:"isDuplicate"`
	Confidence          float64  `json:"confidence"`
	Reason              string   `json:"reason,omitempty"`
	MatchedSubmissionID string   `json:"matchedSubmissionId,omitempty"`
	Method              Method   `json:"method"`
	RequiresReview      bool     `json:"requiresReview"`
	Distance            int      `json:"distance"` // primary-hash distance to the match, MaxDistance without one
	Signals             []Signal `json:"signals,omitempty"`
}

// Decision maps the verdict to a product action. A verdict that requires
// review never rejects outright.
func (v Verdict) Decision() Decision {
	switch {
	case v.RequiresReview:
		return DecisionReview
	case v.IsDuplicate:
		return DecisionReject
	default:
		return DecisionAccept
	}
}

// UserMessage is a non-technical explanation suitable for the submitter.
// It is empty for accepted submissions.
func (v Verdict) UserMessage() string {
	switch v.Decision() {
	case DecisionReject:
		return "This photo looks like one that was already submitted. Please take a new photo of your action."
	case DecisionReview:
		if v.IsDuplicate {
			return "This photo looks similar to an earlier submission and will be checked by a moderator."
		}
		return "This photo will be checked by a moderator before points are awarded."
	default:
		return ""
	}
}

func notDuplicate() Verdict {
	return Verdict{Method: MethodNone, Distance: MaxDistance}
}
