package repository

import (
	"context"
	"encoding/json"

	"github.com/skara-labs/crowdgate/internal/model"
	"github.com/skara-labs/crowdgate/internal/service"
)

// RedisEventRepo keeps the most recent events in a capped Redis list,
// newest at the head.
type RedisEventRepo struct {
	client  *RedisClient
	listKey string
	listMax int
}

func NewRedisEventRepo(client *RedisClient, listKey string, listMax int) *RedisEventRepo {
	if listKey == "" {
		listKey = "sale_events"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisEventRepo{
		client:  client,
		listKey: client.Key(listKey),
		listMax: listMax,
	}
}

func (r *RedisEventRepo) Insert(ctx context.Context, event *model.SaleEvent) error {
	if event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pipe := r.client.Client.TxPipeline()
	pipe.LPush(ctx, r.listKey, payload)
	pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisEventRepo) List(ctx context.Context, filter model.EventFilter) ([]*model.SaleEvent, error) {
	limit := normalizeLimit(filter.Limit)
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > r.listMax {
		fetch = r.listMax
	}
	items, err := r.client.Client.LRange(ctx, r.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.SaleEvent, 0, limit)
	for _, raw := range items {
		var event model.SaleEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		if !filter.Match(&event) {
			continue
		}
		results = append(results, &event)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}

var _ service.EventRepo = (*RedisEventRepo)(nil)
