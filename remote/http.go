package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dayline/domain"
	"dayline/storage"
)

const identityHeader = "X-Identity-Key"

// HTTPStore talks to a dayline-compatible sync backend over plain HTTP:
// PUT and GET of the envelope payloads at /api/remote/{collection}, with
// the identity key carried in a header. A 404 on GET means no document yet.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStore returns an HTTPStore for the given base URL.
func NewHTTPStore(baseURL string) (*HTTPStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid remote base url scheme %q", u.Scheme)
	}
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *HTTPStore) SaveTasks(ctx context.Context, identity string, tasks []domain.Task) error {
	payload, err := storage.EncodeTasks(tasks)
	if err != nil {
		return err
	}
	return s.put(ctx, identity, CollectionTasks, payload)
}

func (s *HTTPStore) SaveProgress(ctx context.Context, identity string, progress []domain.DailyProgress) error {
	payload, err := storage.EncodeProgress(progress)
	if err != nil {
		return err
	}
	return s.put(ctx, identity, CollectionProgress, payload)
}

func (s *HTTPStore) LoadTasks(ctx context.Context, identity string) ([]domain.Task, error) {
	payload, found, err := s.get(ctx, identity, CollectionTasks)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.Task{}, nil
	}
	return storage.DecodeTasks(payload)
}

func (s *HTTPStore) LoadProgress(ctx context.Context, identity string) ([]domain.DailyProgress, error) {
	payload, found, err := s.get(ctx, identity, CollectionProgress)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.DailyProgress{}, nil
	}
	return storage.DecodeProgress(payload)
}

func (s *HTTPStore) put(ctx context.Context, identity, collection, payload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.collectionURL(collection), strings.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identityHeader, identity)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote save %s: status %d", collection, resp.StatusCode)
	}
	return nil
}

func (s *HTTPStore) get(ctx context.Context, identity, collection string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.collectionURL(collection), nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set(identityHeader, identity)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", false, fmt.Errorf("remote load %s: status %d", collection, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", false, err
	}
	return string(body), true, nil
}

func (s *HTTPStore) collectionURL(collection string) string {
	return s.baseURL + "/api/remote/" + collection
}
