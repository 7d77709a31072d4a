package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"fieldsync/internal/config"
	"fieldsync/internal/services"
	"fieldsync/internal/store"
)

const maxErrorBody = 512

// HTTPDoer describes the HTTP client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://fieldsync.invalid/idempotency"))

// IdempotencyKey returns the stable key sent with every delivery of item.
func IdempotencyKey(item *store.Item) string {
	name := fmt.Sprintf("%s/%d/%d", item.Kind, item.ID, item.CreatedAt.UnixMilli())
	return uuid.NewSHA1(idempotencyNamespace, []byte(name)).String()
}

// Client is the dispatch API adapter.
type Client struct {
	baseURL    string
	token      string
	healthPath string
	client     HTTPDoer
}

// NewClient builds a client from the [remote] section. It fails with
// services.ErrConfiguration when no base URL is set.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil || strings.TrimSpace(cfg.Remote.BaseURL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "remote", "new client", "remote.base_url is not set", nil)
	}
	return NewHTTPClient(cfg.Remote.BaseURL, cfg.Remote.APIToken, cfg.Remote.HealthPath, &http.Client{Timeout: cfg.RemoteTimeout()}), nil
}

// NewHTTPClient builds a client around an explicit HTTP doer.
func NewHTTPClient(baseURL, token, healthPath string, doer HTTPDoer) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	healthPath = strings.TrimSpace(healthPath)
	if healthPath == "" {
		healthPath = "/health"
	}
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		healthPath: healthPath,
		client:     doer,
	}
}

// Send delivers item. It returns nil only when the server answered 2xx.
func (c *Client) Send(ctx context.Context, item *store.Item) error {
	if item == nil {
		return services.Wrap(services.ErrValidation, "remote", "send", "nil item", nil)
	}
	collection := item.Kind.Collection()
	if collection == "" {
		return services.Wrap(services.ErrValidation, "remote", "send", fmt.Sprintf("unknown kind %q", item.Kind), nil)
	}

	body, contentType, err := encodeItem(item)
	if err != nil {
		return services.Wrap(services.ErrValidation, "remote", "send", "encode item", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/"+collection, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Idempotency-Key", IdempotencyKey(item))
	req.Header.Set("X-Fieldsync-Attempt", strconv.Itoa(item.RetryCount+1))

	resp, err := c.do(req, "send")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func encodeItem(item *store.Item) (io.Reader, string, error) {
	if item.Kind == store.KindForm {
		if !json.Valid(item.Payload) {
			return nil, "", errors.New("form payload is not valid JSON")
		}
		return bytes.NewReader(item.Payload), "application/json", nil
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if len(item.Metadata) > 0 {
		if err := writer.WriteField("metadata", string(item.Metadata)); err != nil {
			return nil, "", err
		}
	}
	part, err := writer.CreateFormFile("file", fmt.Sprintf("%s-%d.bin", item.Kind, item.ID))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(item.Blob); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// Health checks that the API answers on its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, "health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Fetch returns the server copy of one cached entity.
func (c *Client) Fetch(ctx context.Context, collection store.CacheCollection, id string) (map[string]any, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/"+string(collection)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "fetch")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entity map[string]any
	if err := decodeJSON(resp.Body, &entity); err != nil {
		return nil, services.Wrap(services.ErrTransient, "remote", "fetch", "decode entity", err)
	}
	return entity, nil
}

// List returns every server entity of collection visible to the caller.
func (c *Client) List(ctx context.Context, collection store.CacheCollection) ([]map[string]any, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/"+string(collection), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req, "list")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entities []map[string]any
	if err := decodeJSON(resp.Body, &entities); err != nil {
		return nil, services.Wrap(services.ErrTransient, "remote", "list", "decode entities", err)
	}
	return entities, nil
}

// Push sends a locally edited entity and returns the server's copy after
// the write.
func (c *Client) Push(ctx context.Context, collection store.CacheCollection, id string, entity map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "remote", "push", "encode entity", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/api/"+string(collection)+"/"+url.PathEscape(id), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req, "push")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var server map[string]any
	if err := decodeJSON(resp.Body, &server); err != nil {
		return nil, services.Wrap(services.ErrTransient, "remote", "push", "decode entity", err)
	}
	return server, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "remote", "build request", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do executes req and maps failures onto the error taxonomy. The caller
// owns the body of a successful response.
func (c *Client) do(req *http.Request, operation string) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, services.Wrap(services.ErrTimeout, "remote", operation, req.URL.Path, err)
		}
		return nil, services.Wrap(services.ErrTransient, "remote", operation, req.URL.Path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := fmt.Sprintf("%s returned %d", req.URL.Path, resp.StatusCode)
	if text := strings.TrimSpace(string(snippet)); text != "" {
		message += ": " + text
	}
	return nil, services.Wrap(classify(resp.StatusCode), "remote", operation, message, nil)
}

func classify(status int) error {
	switch {
	case status == http.StatusNotFound:
		return services.ErrNotFound
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return services.ErrTransient
	default:
		return services.ErrRejected
	}
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}

func decodeJSON(r io.Reader, dest any) error {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()
	return decoder.Decode(dest)
}
