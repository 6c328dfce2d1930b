package monitoring

import (
	"fmt"
	"strings"
	"time"
)

// Policy decides how strictly status changes follow the alert lifecycle
type Policy string

const (
	// PolicyStrict only allows forward moves, skips included, and the false-alarm branch
	PolicyStrict Policy = "strict"
	// PolicyPermissive allows any known status from any status
	PolicyPermissive Policy = "permissive"
)

// Valid reports whether p is a known policy
func (p Policy) Valid() bool {
	return p == PolicyStrict || p == PolicyPermissive
}

// lifecycleRank orders the forward path. False alarm is a side branch.
var lifecycleRank = map[AlertStatus]int{
	StatusNew:          0,
	StatusAcknowledged: 1,
	StatusInProgress:   2,
	StatusResolved:     3,
}

// CanTransition reports whether the lifecycle allows from -> to: any
// forward move along new, acknowledged, in_progress, resolved, or a move
// to false_alarm from an open status. Resolved and false_alarm are
// terminal. Staying in the same status is always allowed.
func CanTransition(from, to AlertStatus) bool {
	if from == to {
		return true
	}
	if !from.IsActive() {
		return false
	}
	if to == StatusFalseAlarm {
		return true
	}
	next, ok := lifecycleRank[to]
	return ok && next > lifecycleRank[from]
}

// TransitionRequest carries a status update. Nil or blank HandledBy and
// Notes keep the record's current values.
type TransitionRequest struct {
	Status    AlertStatus
	HandledBy *string
	Notes     *string
}

// TransitionResult is the updated record and the counts delta to merge
// into the running AlertStatusCounts
type TransitionResult struct {
	Record AlertRecord `json:"alert"`
	Delta  CountsDelta `json:"counts_delta"`
}

// Transition applies req to record at instant now. record is passed by
// value and is never modified; on error the zero result is returned.
func Transition(record AlertRecord, req TransitionRequest, policy Policy, now time.Time) (TransitionResult, error) {
	if !req.Status.Valid() {
		return TransitionResult{}, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}

	from := record.Status
	if policy != PolicyPermissive && !CanTransition(from, req.Status) {
		return TransitionResult{}, fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, req.Status)
	}

	updated := record
	updated.Status = req.Status
	updated.UpdatedAt = now

	if present(req.HandledBy) {
		v := *req.HandledBy
		updated.HandledBy = &v
	}
	if present(req.Notes) {
		v := *req.Notes
		updated.HandlerNotes = &v
	}

	if req.Status == StatusResolved && updated.ResolvedAt == nil {
		resolvedAt := now
		updated.ResolvedAt = &resolvedAt
	}

	delta := CountsDelta{}
	if from != req.Status {
		delta[from]--
		delta[req.Status]++
	}

	return TransitionResult{Record: updated, Delta: delta}, nil
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
