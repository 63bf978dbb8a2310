package sync

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/beekhof/ics-tasks-sync/internal/auth"
	"github.com/beekhof/ics-tasks-sync/internal/ics"
	"github.com/beekhof/ics-tasks-sync/internal/tasks"
)

// DefaultTaskListTitle is the list calendar events are synced into.
const DefaultTaskListTitle = "dot_tasklist"

// EventSource produces the calendar events behind a URL.
type EventSource interface {
	Fetch(ctx context.Context, url string) ([]ics.Event, error)
}

// SessionGuard runs an operation with a valid credential. *auth.Guardian
// implements it.
type SessionGuard interface {
	WithValidSession(ctx context.Context, cred auth.Credential, op auth.Operation) (auth.Credential, error)
}

// ServiceFactory builds a task-list service on top of an authorized HTTP client.
type ServiceFactory func(ctx context.Context, client *http.Client) (tasks.Service, error)

// GoogleTasks is the ServiceFactory for the Google Tasks API.
func GoogleTasks(ctx context.Context, client *http.Client) (tasks.Service, error) {
	c, err := tasks.NewClient(ctx, client)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Options tunes a Syncer.
type Options struct {
	ListTitle   string
	IncludePast bool
	Limiter     Limiter
	Verbose     bool
	// Now supplies the reference instant for the time filter; defaults to time.Now.
	Now func() time.Time
}

// Request describes one user's sync.
type Request struct {
	User        string
	CalendarURL string
	Credential  auth.Credential
}

// Syncer handles the synchronization of one calendar into one task list.
type Syncer struct {
	source     EventSource
	guard      SessionGuard
	newService ServiceFactory
	opts       Options
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(source EventSource, guard SessionGuard, newService ServiceFactory, opts Options) *Syncer {
	if opts.ListTitle == "" {
		opts.ListTitle = DefaultTaskListTitle
	}
	if opts.Limiter == nil {
		opts.Limiter = NewLimiter(0, 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if newService == nil {
		newService = GoogleTasks
	}
	return &Syncer{
		source:     source,
		guard:      guard,
		newService: newService,
		opts:       opts,
	}
}

// Sync performs the main synchronization logic for one user: fetch the
// calendar, then, under a valid session, load the existing tasks and insert
// what is missing.
//
// The returned Result always carries the credential to persist, including
// when an error is returned.
func (s *Syncer) Sync(ctx context.Context, req Request) (Result, error) {
	log.Printf("[%s] Starting sync with calendar %s", req.User, ics.RedactURL(req.CalendarURL))
	start := time.Now()

	events, err := s.source.Fetch(ctx, req.CalendarURL)
	if err != nil {
		return Result{Status: StatusFailed, Credential: req.Credential}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	log.Printf("[%s] Retrieved %d calendar events", req.User, len(events))

	reference := s.opts.Now().UTC()
	reconciler := NewReconciler(s.opts.Limiter, req.User, s.opts.Verbose)

	var result Result
	cred, err := s.guard.WithValidSession(ctx, req.Credential, func(ctx context.Context, client *http.Client) error {
		svc, err := s.newService(ctx, client)
		if err != nil {
			return err
		}

		listID, existing, err := LoadExisting(ctx, svc, s.opts.Limiter, s.opts.ListTitle)
		if err != nil {
			return err
		}
		if s.opts.Verbose {
			log.Printf("[%s] DEBUG: list %q (%s) already holds %d distinct tasks", req.User, s.opts.ListTitle, listID, len(existing))
		}

		result, err = reconciler.Reconcile(ctx, svc, listID, existing, events, reference, s.opts.IncludePast)
		return err
	})
	result.Credential = cred
	if err != nil {
		result.Status = StatusFailed
		return result, err
	}

	log.Printf("[%s] Sync %s in %s: inserted=%d skipped=%d failed=%d excluded=%d",
		req.User, result.Status, time.Since(start).Round(time.Millisecond),
		result.Inserted, result.Skipped, result.Failed, result.Excluded)
	return result, nil
}
