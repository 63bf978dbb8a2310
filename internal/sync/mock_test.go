package sync

import (
	"context"
	"fmt"
	"strconv"

	"github.com/beekhof/ics-tasks-sync/internal/ics"
	tasksapi "google.golang.org/api/tasks/v1"
)

// mockTasksService is an in-memory tasks.Service. Lists and tasks are served
// pageSize items at a time so pagination is exercised.
type mockTasksService struct {
	lists    []*tasksapi.TaskList
	tasks    map[string][]*tasksapi.Task
	pageSize int

	// insertErrs fails the n-th InsertTask call (1-based).
	insertErrs     map[int]error
	listListsErr   error
	listTasksErr   error
	insertListErr  error
	insertCalls    int
	inserted       []*tasksapi.Task
	listTasksCalls int
}

func newMockTasksService() *mockTasksService {
	return &mockTasksService{
		tasks:      make(map[string][]*tasksapi.Task),
		pageSize:   2,
		insertErrs: make(map[int]error),
	}
}

func (m *mockTasksService) addList(id, title string, titles ...string) {
	m.lists = append(m.lists, &tasksapi.TaskList{Id: id, Title: title})
	for _, t := range titles {
		m.tasks[id] = append(m.tasks[id], &tasksapi.Task{Title: t})
	}
}

func (m *mockTasksService) page(token string, total int) (int, int, string) {
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := start + m.pageSize
	if end >= total {
		return start, total, ""
	}
	return start, end, strconv.Itoa(end)
}

func (m *mockTasksService) ListTaskLists(ctx context.Context, pageToken string) (*tasksapi.TaskLists, error) {
	if m.listListsErr != nil {
		return nil, m.listListsErr
	}
	start, end, next := m.page(pageToken, len(m.lists))
	return &tasksapi.TaskLists{Items: m.lists[start:end], NextPageToken: next}, nil
}

func (m *mockTasksService) InsertTaskList(ctx context.Context, title string) (*tasksapi.TaskList, error) {
	if m.insertListErr != nil {
		return nil, m.insertListErr
	}
	list := &tasksapi.TaskList{Id: fmt.Sprintf("list-%d", len(m.lists)+1), Title: title}
	m.lists = append(m.lists, list)
	return list, nil
}

func (m *mockTasksService) ListTasks(ctx context.Context, listID, pageToken string) (*tasksapi.Tasks, error) {
	m.listTasksCalls++
	if m.listTasksErr != nil {
		return nil, m.listTasksErr
	}
	items := m.tasks[listID]
	start, end, next := m.page(pageToken, len(items))
	return &tasksapi.Tasks{Items: items[start:end], NextPageToken: next}, nil
}

func (m *mockTasksService) InsertTask(ctx context.Context, listID string, task *tasksapi.Task) (*tasksapi.Task, error) {
	m.insertCalls++
	if err, ok := m.insertErrs[m.insertCalls]; ok {
		return nil, err
	}
	m.inserted = append(m.inserted, task)
	m.tasks[listID] = append(m.tasks[listID], task)
	return task, nil
}

// countingLimiter records how many calls it let through.
type countingLimiter struct {
	waits int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.waits++
	return ctx.Err()
}

func event(summary string, end string) ics.Event {
	e := ics.Event{Summary: summary}
	if end != "" {
		e.End = moment(end)
	}
	return e
}

func moment(raw string) *ics.Moment {
	m := &ics.Moment{Raw: raw}
	if t, ok := parseDueText(raw); ok {
		m.Time = t
		m.DateOnly = len(raw) == len("2006-01-02") || len(raw) == len("20060102")
	}
	return m
}
