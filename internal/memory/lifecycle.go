package memory

import "time"

// Lifecycle graph. Superseded and retracted have no outgoing edges.
var transitions = map[Status]map[Status]bool{
	StatusStaged:    {StatusConfirmed: true, StatusRetracted: true},
	StatusConfirmed: {StatusSuperseded: true, StatusRetracted: true},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Transition returns a copy of f moved to the given status. ValidUntil is set
// to now when the target is terminal and cleared otherwise.
func Transition(f Fact, to Status, now time.Time) (Fact, error) {
	if !CanTransition(f.Status, to) {
		return f, &TransitionError{FactID: f.ID, From: f.Status, To: to}
	}
	f.Status = to
	if to.Terminal() {
		t := now
		f.ValidUntil = &t
	} else {
		f.ValidUntil = nil
	}
	return f, nil
}

// ShouldPromote: staged and accessed at least PromotionThreshold times.
func ShouldPromote(f Fact, p Policy) bool {
	return f.Status == StatusStaged && f.AccessCount >= p.PromotionThreshold
}

// Promote moves a staged fact to confirmed. Any other status is an error.
func Promote(f Fact, now time.Time) (Fact, error) {
	if f.Status != StatusStaged {
		return f, &TransitionError{FactID: f.ID, From: f.Status, To: StatusConfirmed}
	}
	return Transition(f, StatusConfirmed, now)
}

// IsProtected: confirmed facts that have been used often enough never decay out.
func IsProtected(f Fact, p Policy) bool {
	return f.Status == StatusConfirmed && f.AccessCount >= p.MinAccessProtection
}

// ShouldCleanup reports whether f has decayed below the cleanup threshold.
func ShouldCleanup(f Fact, now time.Time, p Policy) bool {
	if !f.Status.Live() || IsProtected(f, p) {
		return false
	}
	return Score(f, now, p) < p.CleanupThreshold
}

// Cleanup retracts a decayed fact.
func Cleanup(f Fact, now time.Time) (Fact, error) {
	return Transition(f, StatusRetracted, now)
}

// Retract is explicit deletion. It shares the edge set with Cleanup.
func Retract(f Fact, now time.Time) (Fact, error) {
	return Transition(f, StatusRetracted, now)
}

// Touch records one access.
func Touch(f Fact, now time.Time) Fact {
	f.AccessCount++
	t := now
	f.LastAccessed = &t
	return f
}

// Action is a maintenance recommendation for one fact.
type Action string

const (
	ActionNone    Action = "none"
	ActionPromote Action = "promote"
	ActionCleanup Action = "cleanup"
)

// Target returns the status the action moves a fact to.
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionPromote:
		return StatusConfirmed, true
	case ActionCleanup:
		return StatusRetracted, true
	default:
		return "", false
	}
}

// Evaluate picks the action for a single fact. Promotion wins when a fact
// qualifies for both: reaching the access threshold outweighs stale recency.
func Evaluate(f Fact, now time.Time, p Policy) Action {
	if ShouldPromote(f, p) {
		return ActionPromote
	}
	if ShouldCleanup(f, now, p) {
		return ActionCleanup
	}
	return ActionNone
}

// EvaluateBatch maps fact IDs to recommended actions. Facts that need nothing
// are left out of the map.
func EvaluateBatch(facts []Fact, now time.Time, p Policy) map[string]Action {
	out := make(map[string]Action)
	for _, f := range facts {
		if a := Evaluate(f, now, p); a != ActionNone {
			out[f.ID] = a
		}
	}
	return out
}

// ConflictResolution is the outcome of ResolveConflicts.
type ConflictResolution struct {
	// Superseded holds the new values of the facts the winner replaces.
	Superseded []Fact
	// Skipped lists contradicting facts whose status has no edge to superseded.
	Skipped []string
}

// Changed reports whether any fact was superseded.
func (r ConflictResolution) Changed() bool { return len(r.Superseded) > 0 }

// ResolveConflicts supersedes existing facts that contradict a high-confidence
// newcomer on the same subject and predicate. The newcomer is not touched: it
// stays staged and must still earn promotion through access.
func ResolveConflicts(newFact Fact, existing []Fact, now time.Time, p Policy) ConflictResolution {
	var res ConflictResolution
	if newFact.Confidence <= p.ConflictConfidence {
		return res
	}
	for _, e := range existing {
		if e.ID == newFact.ID || e.SubjectID != newFact.SubjectID || e.Predicate != newFact.Predicate {
			continue
		}
		if e.Object.Equal(newFact.Object) {
			continue
		}
		superseded, err := Transition(e, StatusSuperseded, now)
		if err != nil {
			if !e.Status.Terminal() {
				res.Skipped = append(res.Skipped, e.ID)
			}
			continue
		}
		res.Superseded = append(res.Superseded, superseded)
	}
	return res
}
