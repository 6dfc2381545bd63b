package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// HTTPStore implements Store against a remote record service. Reads are
// cached with a TTL; session liveness rarely changes within it.
type HTTPStore struct {
	baseURL    string
	httpClient *http.Client
	cache      map[string]*cachedRecord
	cacheTTL   time.Duration
	mu         sync.RWMutex
}

type cachedRecord struct {
	record    *Record
	expiresAt time.Time
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewHTTPStore creates a remote record store client.
func NewHTTPStore(baseURL string, cacheTTL time.Duration) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:    make(map[string]*cachedRecord),
		cacheTTL: cacheTTL,
	}
}

// CreateRecord creates a record through the remote service.
func (c *HTTPStore) CreateRecord(ctx context.Context, ownerID, title, mode string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"owner_id": ownerID,
		"title":    title,
		"mode":     mode,
	})
	if err != nil {
		return "", err
	}

	var rec Record
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", body, &rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// IncrementViewers bumps the remote viewer counter.
func (c *HTTPStore) IncrementViewers(ctx context.Context, recordID string) error {
	path := fmt.Sprintf("/api/v1/sessions/%s/viewers/increment", recordID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// DecrementViewers decrements the remote viewer counter.
func (c *HTTPStore) DecrementViewers(ctx context.Context, recordID string) error {
	path := fmt.Sprintf("/api/v1/sessions/%s/viewers/decrement", recordID)
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// MarkEnded flips the remote record offline.
func (c *HTTPStore) MarkEnded(ctx context.Context, recordID string) error {
	path := fmt.Sprintf("/api/v1/sessions/%s/end", recordID)
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return err
	}
	c.invalidate(recordID)
	return nil
}

// GetRecord retrieves a record, consulting the cache first.
func (c *HTTPStore) GetRecord(ctx context.Context, recordID string) (*Record, error) {
	if rec := c.fromCache(recordID); rec != nil {
		return rec, nil
	}

	var rec Record
	path := fmt.Sprintf("/api/v1/sessions/%s", recordID)
	if err := c.do(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[recordID] = &cachedRecord{record: &rec, expiresAt: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()

	return &rec, nil
}

// ListLive fetches currently live records. Lists are not cached; they churn
// too fast for the TTL to help.
func (c *HTTPStore) ListLive(ctx context.Context, limit int) ([]Record, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var records []Record
	path := fmt.Sprintf("/api/v1/sessions?live=true&limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *HTTPStore) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("record service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRecordNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("record service returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}

	var wrapper apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !wrapper.Success {
		msg := "unknown error"
		if wrapper.Error != nil {
			msg = wrapper.Error.Message
		}
		return fmt.Errorf("record service error: %s", msg)
	}

	return json.Unmarshal(wrapper.Data, out)
}

func (c *HTTPStore) fromCache(recordID string) *Record {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cached, ok := c.cache[recordID]; ok {
		if time.Now().Before(cached.expiresAt) {
			return cached.record
		}
	}
	return nil
}

func (c *HTTPStore) invalidate(recordID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, recordID)
}
