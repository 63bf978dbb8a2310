package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasksapi "google.golang.org/api/tasks/v1"
)

// fakeTasksAPI serves the handful of Google Tasks REST endpoints the client
// calls and records the query parameters it saw.
type fakeTasksAPI struct {
	t        *testing.T
	queries  []string
	inserted []*tasksapi.Task
	unauth   bool
}

func (f *fakeTasksAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.queries = append(f.queries, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	w.Header().Set("Content-Type", "application/json")

	if f.unauth {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 401, "message": "Invalid Credentials"},
		})
		return
	}

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/users/@me/lists"):
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(tasksapi.TaskLists{
				Items:         []*tasksapi.TaskList{{Id: "l1", Title: "Groceries"}},
				NextPageToken: "p2",
			})
			return
		}
		json.NewEncoder(w).Encode(tasksapi.TaskLists{
			Items: []*tasksapi.TaskList{{Id: "l2", Title: "dot_tasklist"}},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/users/@me/lists"):
		var body tasksapi.TaskList
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(tasksapi.TaskList{Id: "new-list", Title: body.Title})
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/lists/l2/tasks"):
		json.NewEncoder(w).Encode(tasksapi.Tasks{
			Items: []*tasksapi.Task{{Id: "t1", Title: "Essay Due", Status: "completed", Hidden: true}},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/lists/l2/tasks"):
		var body tasksapi.Task
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.inserted = append(f.inserted, &body)
		body.Id = "created"
		json.NewEncoder(w).Encode(body)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, api *fakeTasksAPI) *Client {
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), server.Client(), option.WithEndpoint(server.URL+"/"))
	require.NoError(t, err)
	return client
}

func TestClient_ListTaskListsPaginates(t *testing.T) {
	api := &fakeTasksAPI{t: t}
	client := newTestClient(t, api)
	ctx := context.Background()

	first, err := client.ListTaskLists(ctx, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "p2", first.NextPageToken)

	second, err := client.ListTaskLists(ctx, first.NextPageToken)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "dot_tasklist", second.Items[0].Title)
	assert.Empty(t, second.NextPageToken)
}

func TestClient_ListTasksIncludesCompletedAndHidden(t *testing.T) {
	api := &fakeTasksAPI{t: t}
	client := newTestClient(t, api)

	result, err := client.ListTasks(context.Background(), "l2", "")
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.True(t, result.Items[0].Hidden)

	require.NotEmpty(t, api.queries)
	last := api.queries[len(api.queries)-1]
	assert.Contains(t, last, "showCompleted=true")
	assert.Contains(t, last, "showHidden=true")
	assert.Contains(t, last, "maxResults=100")
}

func TestClient_InsertTaskListAndTask(t *testing.T) {
	api := &fakeTasksAPI{t: t}
	client := newTestClient(t, api)
	ctx := context.Background()

	list, err := client.InsertTaskList(ctx, "dot_tasklist")
	require.NoError(t, err)
	assert.Equal(t, "new-list", list.Id)
	assert.Equal(t, "dot_tasklist", list.Title)

	created, err := client.InsertTask(ctx, "l2", &tasksapi.Task{
		Title:  "Essay Due",
		Notes:  "Upload it",
		Due:    "2025-03-01T00:00:00Z",
		Status: "needsAction",
	})
	require.NoError(t, err)
	assert.Equal(t, "created", created.Id)
	require.Len(t, api.inserted, 1)
	assert.Equal(t, "2025-03-01T00:00:00Z", api.inserted[0].Due)
	assert.Equal(t, "needsAction", api.inserted[0].Status)
}

func TestClient_UnauthorizedSurfacesGoogleAPIError(t *testing.T) {
	api := &fakeTasksAPI{t: t, unauth: true}
	client := newTestClient(t, api)

	_, err := client.ListTaskLists(context.Background(), "")
	require.Error(t, err)

	var apiErr *googleapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Code)
}
