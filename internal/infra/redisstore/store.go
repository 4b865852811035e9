package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"browserq/internal/domain"
	"browserq/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ ports.JobStore = (*Client)(nil)

func (c *Client) Get(ctx context.Context, id string) (domain.Job, error) {
	b, err := c.Rdb.Get(ctx, c.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Job{}, domain.ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("redis get: %w", err)
	}
	var j domain.Job
	if err := json.Unmarshal(b, &j); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return j, nil
}

// Put stores the snapshot and indexes the ID in one transaction.
func (c *Client) Put(ctx context.Context, job domain.Job) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	_, err = c.Rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, c.jobKey(job.ID), b, 0)
		p.SAdd(ctx, c.indexKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (c *Client) List(ctx context.Context) ([]domain.Job, error) {
	ids, err := c.Rdb.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	out := make([]domain.Job, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.jobKey(id)
	}
	vals, err := c.Rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// index entry without a record
			continue
		}
		var j domain.Job
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("job_id", ids[i]).Msg("skipping unreadable job record")
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := c.Rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, c.jobKey(id))
		p.SRem(ctx, c.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	if del.Val() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
