package devicesync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lightkeepers/fieldsync/internal/model"
)

// Remote applies a replayed mutation against the server.
type Remote interface {
	Apply(ctx context.Context, m model.Mutation) error
}

// HTTPRemote replays mutations against the coordination API. Each call makes
// a few paced attempts; anything beyond that is the manager's retry cycle.
type HTTPRemote struct {
	baseURL  string
	client   *http.Client
	token    func() string // bearer credential source, may return ""
	maxTries int
}

func NewHTTPRemote(baseURL string, timeout time.Duration, token func() string) *HTTPRemote {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPRemote{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: timeout},
		token:    token,
		maxTries: 3,
	}
}

func (r *HTTPRemote) Apply(ctx context.Context, m model.Mutation) error {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = 5 * time.Second

	var last error
	for try := 0; try < r.maxTries; try++ {
		if err := r.tryOnce(ctx, m); err != nil {
			last = err
			sleep := backoffCfg.NextBackOff()
			if sleep == backoff.Stop {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
				continue
			}
		}
		return nil
	}
	return last
}

func (r *HTTPRemote) tryOnce(ctx context.Context, m model.Mutation) error {
	method, url := r.route(m)

	var body io.Reader
	if m.Op != model.OpDelete {
		body = bytes.NewReader(m.Payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := r.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%s %s: status %d", method, url, resp.StatusCode)
}

func (r *HTTPRemote) route(m model.Mutation) (method, url string) {
	base := r.baseURL + "/v1/" + m.Entity
	switch m.Op {
	case model.OpCreate:
		return http.MethodPost, base
	case model.OpDelete:
		return http.MethodDelete, base + "/" + m.EntityID
	default:
		return http.MethodPut, base + "/" + m.EntityID
	}
}
