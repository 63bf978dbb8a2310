package runner

import (
	"context"
	"log"
	"strings"
	stdsync "sync"
	"time"

	"github.com/beekhof/ics-tasks-sync/internal/auth"
	"github.com/beekhof/ics-tasks-sync/internal/ics"
	"github.com/beekhof/ics-tasks-sync/internal/metrics"
	"github.com/beekhof/ics-tasks-sync/internal/store"
	"github.com/beekhof/ics-tasks-sync/internal/sync"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// UserStore is the persistence the runner needs. *store.FileStore implements it.
type UserStore interface {
	Users() ([]store.User, error)
	SaveCredential(email string, cred auth.Credential) error
	MarkSynced(email string, at time.Time) error
}

// UserSyncer syncs one user. *sync.Syncer implements it.
type UserSyncer interface {
	Sync(ctx context.Context, req sync.Request) (sync.Result, error)
}

// Options tunes a Runner.
type Options struct {
	// Concurrency bounds how many users sync at once. Values below 1 mean 1.
	Concurrency int
	Observer    metrics.Observer
	// ClientID and ClientSecret are used for credentials stored without an
	// OAuth client of their own.
	ClientID     string
	ClientSecret string
	Verbose      bool
	Now          func() time.Time
}

// Summary tallies one pass over the users.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Partial   int
	Failed    int
	Skipped   int
}

// OK reports whether no user failed.
func (s Summary) OK() bool {
	return s.Failed == 0
}

// Runner drives a sync for every linked user in the store.
type Runner struct {
	store  UserStore
	syncer UserSyncer
	opts   Options
}

// New creates a Runner.
func New(userStore UserStore, syncer UserSyncer, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Observer == nil {
		opts.Observer = metrics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		store:  userStore,
		syncer: syncer,
		opts:   opts,
	}
}

// Run syncs every user, or only the one whose email matches only when it is
// non-empty. A user's failure never stops the others; the only error returned
// is a failure to read the store.
func (r *Runner) Run(ctx context.Context, only string) (Summary, error) {
	runID := uuid.NewString()
	summary := Summary{RunID: runID}
	start := time.Now()

	users, err := r.store.Users()
	if err != nil {
		log.Printf("[run %s] Error: failed to load users: %v", summary.RunID, err)
		return summary, err
	}

	var (
		mu stdsync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.opts.Concurrency)

	for _, user := range users {
		if only != "" && !sameEmail(user.Email, only) {
			continue
		}
		summary.Total++

		user := user
		g.Go(func() error {
			outcome := r.syncUser(ctx, runID, user)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeSkipped:
				summary.Skipped++
			case outcomePartial:
				summary.Partial++
			case outcomeSucceeded:
				summary.Succeeded++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	g.Wait()

	r.opts.Observer.RecordRun(time.Since(start))
	log.Printf("[run %s] synced %d/%d users (partial=%d failed=%d skipped=%d) in %s",
		summary.RunID, summary.Succeeded+summary.Partial, summary.Total,
		summary.Partial, summary.Failed, summary.Skipped, time.Since(start).Round(time.Millisecond))
	return summary, nil
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeSucceeded
	outcomePartial
	outcomeSkipped
)

func (r *Runner) syncUser(ctx context.Context, runID string, user store.User) outcome {
	start := time.Now()

	if !user.Linked {
		if r.opts.Verbose {
			log.Printf("[%s] DEBUG: no calendar link, skipping", user.Email)
		}
		r.opts.Observer.RecordSync("skipped", 0, 0, 0, 0)
		return outcomeSkipped
	}
	if user.CalendarURL == "" {
		log.Printf("[%s] Warning: calendar link has no URL", user.Email)
		r.opts.Observer.RecordSync(sync.StatusFailed.String(), 0, 0, 0, time.Since(start))
		return outcomeFailed
	}

	cred := user.Credential.WithClient(r.opts.ClientID, r.opts.ClientSecret)
	result, err := r.syncer.Sync(ctx, sync.Request{
		User:        user.Email,
		CalendarURL: user.CalendarURL,
		Credential:  cred,
	})

	if result.Credential.AccessToken != "" && !result.Credential.SameToken(user.Credential) {
		if err := r.store.SaveCredential(user.Email, result.Credential); err != nil {
			log.Printf("[%s] Warning: failed to persist refreshed credential: %v", user.Email, err)
		} else if r.opts.Verbose {
			log.Printf("[%s] DEBUG: persisted refreshed credential", user.Email)
		}
	}

	r.opts.Observer.RecordSync(result.Status.String(), result.Inserted, result.Skipped, result.Failed, time.Since(start))

	if err != nil {
		log.Printf("[%s] Error: sync failed (run %s, calendar %s): %v", user.Email, runID, ics.RedactURL(user.CalendarURL), err)
		return outcomeFailed
	}
	if result.Status == sync.StatusFailed {
		log.Printf("[%s] Error: no task could be inserted (run %s, %d failures)", user.Email, runID, result.Failed)
		return outcomeFailed
	}

	if err := r.store.MarkSynced(user.Email, r.opts.Now()); err != nil {
		log.Printf("[%s] Warning: failed to record last sync: %v", user.Email, err)
	}
	if result.Status == sync.StatusPartial {
		return outcomePartial
	}
	return outcomeSucceeded
}

func sameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
