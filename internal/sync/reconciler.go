package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beekhof/ics-tasks-sync/internal/auth"
	"github.com/beekhof/ics-tasks-sync/internal/ics"
	"github.com/beekhof/ics-tasks-sync/internal/tasks"
)

// Status is the overall outcome of one user's sync.
type Status int

const (
	// StatusFailed: the batch did not run, was aborted, or no attempted insert succeeded.
	StatusFailed Status = iota
	// StatusSuccess: the batch completed without insert failures.
	StatusSuccess
	// StatusPartial: the batch completed with some insert failures and some insertions.
	StatusPartial
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	default:
		return "failed"
	}
}

// Result summarises one reconciliation.
//
// Inserted + Skipped + Failed equals the number of events that survived the
// time filter; Excluded counts those that did not.
type Result struct {
	Status   Status
	Inserted int
	Skipped  int
	Failed   int
	Excluded int
	ListID   string
	// Credential is the credential as it stands after the sync, to be persisted.
	Credential auth.Credential
}

// Reconciler inserts the calendar events missing from a task list.
// It never updates or deletes tasks.
type Reconciler struct {
	limiter Limiter
	label   string
	verbose bool
}

// NewReconciler creates a Reconciler. label prefixes its log lines.
func NewReconciler(limiter Limiter, label string, verbose bool) *Reconciler {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &Reconciler{
		limiter: limiter,
		label:   label,
		verbose: verbose,
	}
}

// Reconcile inserts every event in events whose identity key is not yet in
// existing. When includePast is false, events due before referenceDate are
// excluded first.
//
// existing is not modified. A rejected insert is counted and the loop moves
// on; only an authorization rejection or a cancelled context aborts the batch.
func (r *Reconciler) Reconcile(ctx context.Context, svc tasks.Service, listID string, existing map[string]struct{}, events []ics.Event, referenceDate time.Time, includePast bool) (Result, error) {
	result := Result{ListID: listID}

	seen := make(map[string]struct{}, len(existing)+len(events))
	for key := range existing {
		seen[key] = struct{}{}
	}

	for _, event := range events {
		task := Normalize(event)

		if !includePast && IsPast(task, referenceDate) {
			result.Excluded++
			if r.verbose {
				log.Printf("[%s] DEBUG: excluding past event %q (due %s)", r.label, task.Title, task.Due)
			}
			continue
		}

		if _, ok := seen[task.IdentityKey]; ok {
			result.Skipped++
			if r.verbose {
				log.Printf("[%s] DEBUG: skipping existing task %q", r.label, task.Title)
			}
			continue
		}

		if err := r.limiter.Wait(ctx); err != nil {
			result.Status = StatusFailed
			return result, err
		}

		if _, err := svc.InsertTask(ctx, listID, task.payload()); err != nil {
			if auth.IsAuthError(err) || ctx.Err() != nil {
				result.Status = StatusFailed
				return result, fmt.Errorf("%w: %q: %w", ErrTaskInsertFailed, task.Title, err)
			}
			result.Failed++
			log.Printf("[%s] Warning: failed to insert task %q (due %s): %v", r.label, task.Title, task.Due, err)
			continue
		}

		seen[task.IdentityKey] = struct{}{}
		result.Inserted++
		if r.verbose {
			log.Printf("[%s] DEBUG: inserted task %q (due %s)", r.label, task.Title, task.Due)
		}
	}

	result.Status = batchStatus(result.Inserted, result.Failed)
	return result, nil
}

func batchStatus(inserted, failed int) Status {
	switch {
	case failed == 0:
		return StatusSuccess
	case inserted > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
