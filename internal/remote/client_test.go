package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/remote"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
	"fieldsync/internal/testsupport"
)

type recorded struct {
	method  string
	path    string
	headers http.Header
	body    []byte
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recorded
	status   int
	response string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{method: r.Method, path: r.URL.Path, headers: r.Header.Clone(), body: body})
	status, response := f.status, f.response
	f.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, response)
}

func (f *fakeAPI) setStatus(status int) {
	f.mu.Lock()
	f.status = status
	f.mu.Unlock()
}

func (f *fakeAPI) setResponse(response string) {
	f.mu.Lock()
	f.response = response
	f.mu.Unlock()
}

func (f *fakeAPI) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests)
	return f.requests[len(f.requests)-1]
}

func newClient(t *testing.T, api http.Handler) *remote.Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t, testsupport.WithRemote(server.URL, "secret-token"))
	client, err := remote.NewClient(cfg)
	require.NoError(t, err)
	return client
}

func formItem() *store.Item {
	return &store.Item{
		ID:         12,
		Kind:       store.KindForm,
		Payload:    json.RawMessage(`{"task":"T-1","status":"completed"}`),
		Status:     store.StatusSending,
		RetryCount: 2,
		CreatedAt:  time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestSendFormPostsJSONWithIdempotencyKey(t *testing.T) {
	api := &fakeAPI{status: http.StatusCreated}
	client := newClient(t, api)
	item := formItem()

	require.NoError(t, client.Send(context.Background(), item))

	req := api.last(t)
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/forms", req.path)
	assert.Equal(t, "Bearer secret-token", req.headers.Get("Authorization"))
	assert.Equal(t, "application/json", req.headers.Get("Content-Type"))
	assert.Equal(t, "3", req.headers.Get("X-Fieldsync-Attempt"))
	assert.JSONEq(t, string(item.Payload), string(req.body))

	key := req.headers.Get("Idempotency-Key")
	assert.Equal(t, remote.IdempotencyKey(item), key)
	require.NoError(t, client.Send(context.Background(), item))
	assert.Equal(t, key, api.last(t).headers.Get("Idempotency-Key"), "retries reuse the key")
}

func TestIdempotencyKeyDiffersPerItem(t *testing.T) {
	a := formItem()
	b := formItem()
	b.ID = 13
	c := formItem()
	c.Kind = store.KindImage
	assert.NotEqual(t, remote.IdempotencyKey(a), remote.IdempotencyKey(b))
	assert.NotEqual(t, remote.IdempotencyKey(a), remote.IdempotencyKey(c))
}

func TestSendImageUsesMultipart(t *testing.T) {
	var gotMeta string
	var gotFile []byte
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/images" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotMeta = r.FormValue("metadata")
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFile, _ = io.ReadAll(file)
		w.WriteHeader(http.StatusAccepted)
	}))

	item := &store.Item{ID: 4, Kind: store.KindImage, Blob: []byte{0xff, 0xd8, 0xff}, Metadata: json.RawMessage(`{"task":"T-2"}`)}
	require.NoError(t, client.Send(context.Background(), item))
	assert.Equal(t, `{"task":"T-2"}`, gotMeta)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, gotFile)
}

func TestSendClassifiesFailures(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusServiceUnavailable, services.ErrTransient},
		{http.StatusTooManyRequests, services.ErrTransient},
		{http.StatusRequestTimeout, services.ErrTransient},
		{http.StatusUnprocessableEntity, services.ErrRejected},
		{http.StatusUnauthorized, services.ErrRejected},
		{http.StatusNotFound, services.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newClient(t, &fakeAPI{status: tt.status, response: `{"error":"nope"}`})
			err := client.Send(context.Background(), formItem())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestSendNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := remote.NewHTTPClient(url, "", "", nil)
	err := client.Send(context.Background(), formItem())
	assert.ErrorIs(t, err, services.ErrTransient)
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := remote.NewHTTPClient(server.URL, "", "", &http.Client{Timeout: 50 * time.Millisecond})
	err := client.Send(context.Background(), formItem())
	assert.ErrorIs(t, err, services.ErrTimeout)
}

func TestHealth(t *testing.T) {
	api := &fakeAPI{}
	client := newClient(t, api)
	require.NoError(t, client.Health(context.Background()))
	assert.Equal(t, "/health", api.last(t).path)

	api.setStatus(http.StatusBadGateway)
	assert.ErrorIs(t, client.Health(context.Background()), services.ErrTransient)
}

func TestFetchDecodesNumbersExactly(t *testing.T) {
	api := &fakeAPI{response: `{"id":"T-1","updatedAt":1767225600123,"updatedBy":"ops"}`}
	client := newClient(t, api)

	entity, err := client.Fetch(context.Background(), store.CollectionTasks, "T-1")
	require.NoError(t, err)
	assert.Equal(t, "/api/tasks/T-1", api.last(t).path)
	assert.Equal(t, json.Number("1767225600123"), entity["updatedAt"])
}

func TestListAndPush(t *testing.T) {
	api := &fakeAPI{response: `[{"id":"N-1"},{"id":"N-2"}]`}
	client := newClient(t, api)

	entities, err := client.List(context.Background(), store.CollectionNotifications)
	require.NoError(t, err)
	assert.Len(t, entities, 2)

	api.setResponse(`{"id":"T-3","status":"on-site","updatedAt":"2026-01-01T00:00:00Z"}`)
	server, err := client.Push(context.Background(), store.CollectionTasks, "T-3", map[string]any{"status": "on-site"})
	require.NoError(t, err)
	req := api.last(t)
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/api/tasks/T-3", req.path)
	assert.Equal(t, "on-site", server["status"])
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := remote.NewClient(testsupport.NewConfig(t))
	assert.True(t, errors.Is(err, services.ErrConfiguration))
}
