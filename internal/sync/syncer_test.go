package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/beekhof/ics-tasks-sync/internal/auth"
	"github.com/beekhof/ics-tasks-sync/internal/ics"
	"github.com/beekhof/ics-tasks-sync/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type fakeSource struct {
	events  []ics.Event
	err     error
	fetched []string
}

func (f *fakeSource) Fetch(ctx context.Context, url string) ([]ics.Event, error) {
	f.fetched = append(f.fetched, url)
	return f.events, f.err
}

// fakeGuard mimics the refresh-once contract without a token endpoint: an
// auth error from the first attempt swaps in refreshedToken and retries.
type fakeGuard struct {
	refreshedToken string
	attempts       int
}

func (g *fakeGuard) WithValidSession(ctx context.Context, cred auth.Credential, op auth.Operation) (auth.Credential, error) {
	g.attempts++
	err := op(ctx, http.DefaultClient)
	if err == nil || !auth.IsAuthError(err) || g.refreshedToken == "" {
		return cred, err
	}
	cred.AccessToken = g.refreshedToken
	g.attempts++
	return cred, op(ctx, http.DefaultClient)
}

func staticService(svc tasks.Service) ServiceFactory {
	return func(ctx context.Context, client *http.Client) (tasks.Service, error) {
		return svc, nil
	}
}

func fixedNow() time.Time {
	return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
}

func TestSync_InsertsIntoDefaultList(t *testing.T) {
	source := &fakeSource{events: []ics.Event{
		event("Essay Due", "2025-03-03"),
		event("Old quiz", "2025-02-01"),
	}}
	svc := newMockTasksService()
	s := NewSyncer(source, &fakeGuard{}, staticService(svc), Options{Now: fixedNow})

	cred := auth.Credential{AccessToken: "at", RefreshToken: "rt"}
	result, err := s.Sync(context.Background(), Request{User: "a@example.com", CalendarURL: "https://cal.example.com/feed.ics", Credential: cred})

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Excluded)
	assert.Equal(t, cred, result.Credential)
	assert.Equal(t, []string{"https://cal.example.com/feed.ics"}, source.fetched)
	require.Len(t, svc.lists, 1)
	assert.Equal(t, DefaultTaskListTitle, svc.lists[0].Title)
	assert.Equal(t, svc.lists[0].Id, result.ListID)
}

func TestSync_SourceUnavailable(t *testing.T) {
	source := &fakeSource{err: ics.ErrUnexpectedStatus}
	guard := &fakeGuard{}
	cred := auth.Credential{AccessToken: "at"}
	s := NewSyncer(source, guard, staticService(newMockTasksService()), Options{})

	result, err := s.Sync(context.Background(), Request{User: "a", CalendarURL: "https://x", Credential: cred})

	assert.ErrorIs(t, err, ErrSourceUnavailable)
	assert.ErrorIs(t, err, ics.ErrUnexpectedStatus)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, cred, result.Credential)
	assert.Equal(t, 0, guard.attempts)
}

func TestSync_RetriesAfterRefresh(t *testing.T) {
	source := &fakeSource{events: []ics.Event{event("one", ""), event("two", ""), event("three", "")}}
	svc := newMockTasksService()
	svc.insertErrs[2] = &googleapi.Error{Code: http.StatusUnauthorized}
	guard := &fakeGuard{refreshedToken: "fresh"}
	s := NewSyncer(source, guard, staticService(svc), Options{ListTitle: "School", Now: fixedNow})

	result, err := s.Sync(context.Background(), Request{User: "a", Credential: auth.Credential{AccessToken: "stale", RefreshToken: "rt"}})

	require.NoError(t, err)
	assert.Equal(t, 2, guard.attempts)
	assert.Equal(t, "fresh", result.Credential.AccessToken)
	// The retry re-reads the list, so the task inserted before the rejection is skipped.
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, svc.inserted, 3)
	assert.Equal(t, "School", svc.lists[0].Title)
}

func TestSync_ListResolutionFailure(t *testing.T) {
	svc := newMockTasksService()
	svc.listListsErr = errors.New("backend unavailable")
	s := NewSyncer(&fakeSource{events: []ics.Event{event("one", "")}}, &fakeGuard{}, staticService(svc), Options{})

	result, err := s.Sync(context.Background(), Request{User: "a"})

	assert.ErrorIs(t, err, ErrListResolutionFailed)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 0, svc.insertCalls)
}

func TestSync_ServiceFactoryError(t *testing.T) {
	boom := errors.New("no service")
	factory := func(ctx context.Context, client *http.Client) (tasks.Service, error) {
		return nil, boom
	}
	s := NewSyncer(&fakeSource{}, &fakeGuard{}, factory, Options{})

	result, err := s.Sync(context.Background(), Request{User: "a"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, result.Status)
}
