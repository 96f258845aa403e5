// Package remote provides the HTTP implementation of the per-entity service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adorsys-gis/dgat-sync/internal/errors"
	"github.com/adorsys-gis/dgat-sync/internal/models"
)

// wireRecord is the JSON envelope the remote service speaks.
type wireRecord struct {
	ID        string          `json:"id"`
	UpdatedAt int64           `json:"updated_at"`
	Version   int64           `json:"version,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func (w *wireRecord) toRecord(t models.EntityType) *models.Record {
	return &models.Record{
		ID:      w.ID,
		Type:    t,
		Payload: w.Data,
		Meta: models.Meta{
			UpdatedAt: w.UpdatedAt,
			SyncState: models.SyncStateSynced,
		},
	}
}

// HTTPService implements Service over a JSON REST endpoint. One instance
// serves one entity type.
type HTTPService struct {
	baseURL string
	path    string
	entity  models.EntityType
	client  *http.Client
	timeout time.Duration
}

// NewHTTPService creates a service for one entity collection, e.g.
// NewHTTPService(base, "assessments", models.EntityAssessment, 15*time.Second).
func NewHTTPService(baseURL, path string, entity models.EntityType, timeout time.Duration) *HTTPService {
	return &HTTPService{
		baseURL: baseURL,
		path:    path,
		entity:  entity,
		client:  &http.Client{},
		timeout: timeout,
	}
}

// do issues a request with the per-attempt timeout and classifies failures.
func (s *HTTPService) do(ctx context.Context, method, target string, body []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalid, "failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// Connection failures and timeouts are transient by definition.
		return nil, errors.Wrap(errors.ErrTransientNetwork, "remote attempt failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrTransientNetwork, "failed to read response", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusConflict:
		var wire wireRecord
		ce := &ConflictError{}
		if err := json.Unmarshal(data, &wire); err == nil && wire.ID != "" {
			ce.Server = wire.toRecord(s.entity)
			ce.ServerVersion = wire.Version
		}
		return nil, ce
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, errors.New(errors.ErrValidation,
			fmt.Sprintf("remote rejected payload (%d): %s", resp.StatusCode, truncate(data)))
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.New(errors.ErrNotFound,
			fmt.Sprintf("remote entity not found (%s)", target))
	default:
		// 5xx and everything unexpected retries through the queue.
		return nil, errors.New(errors.ErrTransientNetwork,
			fmt.Sprintf("remote returned status %d", resp.StatusCode))
	}
}

// Fetch implements Service.
func (s *HTTPService) Fetch(ctx context.Context, f Filter) ([]*models.Record, error) {
	target := fmt.Sprintf("%s/%s", s.baseURL, s.path)
	if len(f) > 0 {
		q := url.Values{}
		for k, v := range f {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	data, err := s.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	var wires []wireRecord
	if err := json.Unmarshal(data, &wires); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to decode fetch response", err)
	}
	records := make([]*models.Record, 0, len(wires))
	for i := range wires {
		records = append(records, wires[i].toRecord(s.entity))
	}
	return records, nil
}

// Create implements Service.
func (s *HTTPService) Create(ctx context.Context, payload []byte) (*models.Record, error) {
	target := fmt.Sprintf("%s/%s", s.baseURL, s.path)
	data, err := s.do(ctx, http.MethodPost, target, payload)
	if err != nil {
		return nil, err
	}
	return s.decodeOne(data)
}

// Update implements Service.
func (s *HTTPService) Update(ctx context.Context, id string, payload []byte) (*models.Record, error) {
	target := fmt.Sprintf("%s/%s/%s", s.baseURL, s.path, url.PathEscape(id))
	data, err := s.do(ctx, http.MethodPut, target, payload)
	if err != nil {
		return nil, err
	}
	return s.decodeOne(data)
}

// Delete implements Service.
func (s *HTTPService) Delete(ctx context.Context, id string) error {
	target := fmt.Sprintf("%s/%s/%s", s.baseURL, s.path, url.PathEscape(id))
	_, err := s.do(ctx, http.MethodDelete, target, nil)
	return err
}

func (s *HTTPService) decodeOne(data []byte) (*models.Record, error) {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to decode record", err)
	}
	return wire.toRecord(s.entity), nil
}

func truncate(data []byte) string {
	const max = 200
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
