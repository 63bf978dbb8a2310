package tasks

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
	tasksapi "google.golang.org/api/tasks/v1"
)

// PageSize is the largest page the Tasks API hands out.
const PageSize = 100

// Service is the subset of a task-list backend the sync uses. Google Tasks is
// the production implementation; tests provide in-memory ones.
type Service interface {
	// ListTaskLists returns one page of the account's task lists.
	ListTaskLists(ctx context.Context, pageToken string) (*tasksapi.TaskLists, error)
	// InsertTaskList creates a task list with the given title.
	InsertTaskList(ctx context.Context, title string) (*tasksapi.TaskList, error)
	// ListTasks returns one page of tasks, including completed and hidden ones.
	ListTasks(ctx context.Context, listID, pageToken string) (*tasksapi.Tasks, error)
	// InsertTask creates a task in the given list.
	InsertTask(ctx context.Context, listID string, task *tasksapi.Task) (*tasksapi.Task, error)
}

// Client is a wrapper around the Google Tasks API service.
type Client struct {
	service *tasksapi.Service
}

// NewClient creates a Google Tasks client using the provided HTTP client.
// Extra options (for example option.WithEndpoint in tests) are passed through.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := tasksapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks service: %w", err)
	}

	return &Client{service: service}, nil
}

// ListTaskLists retrieves one page of task lists.
func (c *Client) ListTaskLists(ctx context.Context, pageToken string) (*tasksapi.TaskLists, error) {
	call := c.service.Tasklists.List().MaxResults(PageSize)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	lists, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list task lists: %w", err)
	}
	return lists, nil
}

// InsertTaskList creates a new task list.
func (c *Client) InsertTaskList(ctx context.Context, title string) (*tasksapi.TaskList, error) {
	created, err := c.service.Tasklists.Insert(&tasksapi.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create task list: %w", err)
	}
	return created, nil
}

// ListTasks retrieves one page of tasks from a list.
// Important: completed and hidden tasks are included, otherwise tasks the
// service hid after completion would look missing and be created again.
func (c *Client) ListTasks(ctx context.Context, listID, pageToken string) (*tasksapi.Tasks, error) {
	call := c.service.Tasks.List(listID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowHidden(true)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	result, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return result, nil
}

// InsertTask inserts a new task into a list.
func (c *Client) InsertTask(ctx context.Context, listID string, task *tasksapi.Task) (*tasksapi.Task, error) {
	created, err := c.service.Tasks.Insert(listID, task).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return created, nil
}
