package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"dayline/domain"
	"dayline/storage"
)

// TablesStore keeps one document per (identity, collection) in an Azure
// table: PartitionKey is the identity key, RowKey the collection name, and
// the Payload property holds the same JSON envelope the local KV persists.
type TablesStore struct {
	table *aztables.Client
}

// NewTablesStore creates a TablesStore from the given connection string.
func NewTablesStore(connStr, tableName string) (*TablesStore, error) {
	options := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &options)
	if err != nil {
		return nil, err
	}
	return &TablesStore{table: svc.NewClient(tableName)}, nil
}

type syncEntity struct {
	aztables.Entity
	Payload string `json:"Payload"`
}

func (s *TablesStore) SaveTasks(ctx context.Context, identity string, tasks []domain.Task) error {
	payload, err := storage.EncodeTasks(tasks)
	if err != nil {
		return err
	}
	return s.upsert(ctx, identity, CollectionTasks, payload)
}

func (s *TablesStore) SaveProgress(ctx context.Context, identity string, progress []domain.DailyProgress) error {
	payload, err := storage.EncodeProgress(progress)
	if err != nil {
		return err
	}
	return s.upsert(ctx, identity, CollectionProgress, payload)
}

func (s *TablesStore) LoadTasks(ctx context.Context, identity string) ([]domain.Task, error) {
	payload, found, err := s.fetch(ctx, identity, CollectionTasks)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.Task{}, nil
	}
	return storage.DecodeTasks(payload)
}

func (s *TablesStore) LoadProgress(ctx context.Context, identity string) ([]domain.DailyProgress, error) {
	payload, found, err := s.fetch(ctx, identity, CollectionProgress)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.DailyProgress{}, nil
	}
	return storage.DecodeProgress(payload)
}

func (s *TablesStore) upsert(ctx context.Context, identity, collection, payload string) error {
	ent := syncEntity{
		Entity:  aztables.Entity{PartitionKey: identity, RowKey: collection},
		Payload: payload,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.table.UpsertEntity(ctx, data, nil)
	return err
}

// fetch returns the payload for one collection document; a 404 is a miss,
// not an error.
func (s *TablesStore) fetch(ctx context.Context, identity, collection string) (string, bool, error) {
	resp, err := s.table.GetEntity(ctx, identity, collection, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	var ent syncEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return "", false, err
	}
	return ent.Payload, true, nil
}
