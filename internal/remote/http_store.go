package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bookingsync/internal/domain"
	"bookingsync/internal/models"
)

var _ domain.RemoteStore = (*HTTPStore)(nil)

// ErrConflict is returned when the backend rejects a batch because a key
// already exists.
var ErrConflict = errors.New("remote: key already exists")

// HTTPStore talks to the booking backend's JSON API.
type HTTPStore struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
}

type existsRequest struct {
	Keys []string `json:"keys"`
}

type existsResponse struct {
	Existing []string `json:"existing"`
}

type batchRequest struct {
	Items []batchItem `json:"items"`
}

type batchItem struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// NewHTTPStore constructs a client with baseURL, API key and extra header.
func NewHTTPStore(baseURL, apiKey, apiExtra string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = time.Duration(models.DefaultRemoteTimeoutMS) * time.Millisecond
	}
	return &HTTPStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) collection(kind models.Kind) string {
	return fmt.Sprintf("%s/api/v1/%ss", s.baseURL, kind)
}

// ExistingKeys posts the keys to /api/v1/<kind>s/exists.
func (s *HTTPStore) ExistingKeys(ctx context.Context, kind models.Kind, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	var resp existsResponse
	if err := s.doPost(ctx, s.collection(kind)+"/exists", existsRequest{Keys: keys}, &resp); err != nil {
		return nil, fmt.Errorf("existing %s keys: %w", kind, err)
	}
	return resp.Existing, nil
}

// CommitBatch posts all ops to /api/v1/<kind>s/batch; the backend applies
// them in one transaction.
func (s *HTTPStore) CommitBatch(ctx context.Context, kind models.Kind, ops []models.Operation) error {
	if len(ops) == 0 {
		return nil
	}
	body := batchRequest{Items: make([]batchItem, 0, len(ops))}
	for _, op := range ops {
		body.Items = append(body.Items, batchItem{Key: op.NaturalKey, Payload: op.Payload})
	}
	if err := s.doPost(ctx, s.collection(kind)+"/batch", body, nil); err != nil {
		return fmt.Errorf("commit %s batch: %w", kind, err)
	}
	return nil
}

func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	s.addHeaders(req)
	return s.do(req, nil)
}

func (s *HTTPStore) doPost(ctx context.Context, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.addHeaders(req)
	return s.do(req, out)
}

func (s *HTTPStore) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrConflict
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *HTTPStore) addHeaders(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("x-api-key", s.apiKey)
	}
	if s.apiExtra != "" {
		req.Header.Set("x-api-extra", s.apiExtra)
	}
}
