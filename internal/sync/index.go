package sync

import (
	"context"
	"fmt"

	"github.com/beekhof/ics-tasks-sync/internal/tasks"
)

// LoadExisting resolves the list titled listTitle and returns its ID together
// with the identity keys of every task already in it.
//
// The list is matched by exact title; if none exists it is created and the
// key set is empty. Every page of tasks is read, completed and hidden ones
// included. Any error aborts the sync attempt.
func LoadExisting(ctx context.Context, svc tasks.Service, limiter Limiter, listTitle string) (string, map[string]struct{}, error) {
	listID, found, err := findTaskList(ctx, svc, limiter, listTitle)
	if err != nil {
		return "", nil, err
	}

	if !found {
		if err := limiter.Wait(ctx); err != nil {
			return "", nil, err
		}
		created, err := svc.InsertTaskList(ctx, listTitle)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrListResolutionFailed, err)
		}
		return created.Id, make(map[string]struct{}), nil
	}

	existing := make(map[string]struct{})
	pageToken := ""
	for {
		if err := limiter.Wait(ctx); err != nil {
			return "", nil, err
		}
		page, err := svc.ListTasks(ctx, listID, pageToken)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %w", ErrIndexLoadFailed, err)
		}

		for _, task := range page.Items {
			if key := IdentityKey(task.Title); key != "" {
				existing[key] = struct{}{}
			}
		}

		if page.NextPageToken == "" {
			break
		}
		if page.NextPageToken == pageToken {
			return "", nil, fmt.Errorf("%w: page token %q repeated", ErrIndexLoadFailed, pageToken)
		}
		pageToken = page.NextPageToken
	}

	return listID, existing, nil
}

// findTaskList walks every page of task lists looking for an exact title match.
func findTaskList(ctx context.Context, svc tasks.Service, limiter Limiter, title string) (string, bool, error) {
	pageToken := ""
	for {
		if err := limiter.Wait(ctx); err != nil {
			return "", false, err
		}
		page, err := svc.ListTaskLists(ctx, pageToken)
		if err != nil {
			return "", false, fmt.Errorf("%w: %w", ErrListResolutionFailed, err)
		}

		for _, list := range page.Items {
			if list.Title == title {
				return list.Id, true, nil
			}
		}

		if page.NextPageToken == "" {
			return "", false, nil
		}
		if page.NextPageToken == pageToken {
			return "", false, fmt.Errorf("%w: page token %q repeated", ErrListResolutionFailed, pageToken)
		}
		pageToken = page.NextPageToken
	}
}
