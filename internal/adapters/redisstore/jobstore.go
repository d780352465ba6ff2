// Package redisstore provides the Redis-backed durable job store.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Silverviles/nexar-hal/internal/domain/model"
	apperrors "github.com/Silverviles/nexar-hal/internal/errors"
)

// Key layout: one hash with every submission, one sorted set scoring
// scheduled jobs by fire time (unix seconds, float), and a mirror hash of the
// submissions currently scheduled so LoadAll and due-scans stay cheap.
const (
	defaultPrefix    = "hal:"
	jobsKeySuffix    = "jobs"
	schedZSetSuffix  = "scheduled_by_time"
	schedMirrSuffix  = "scheduled"
)

// JobStore persists submissions in Redis. Put is atomic per job id via a
// pipeline keyed on the submission id.
type JobStore struct {
	client redis.UniversalClient
	prefix string
}

// NewJobStore creates a Redis job store with the default key prefix.
func NewJobStore(client redis.UniversalClient) *JobStore {
	return NewJobStoreWithPrefix(client, defaultPrefix)
}

// NewJobStoreWithPrefix creates a Redis job store with a custom key prefix.
func NewJobStoreWithPrefix(client redis.UniversalClient, prefix string) *JobStore {
	return &JobStore{client: client, prefix: prefix}
}

// Durable reports that the store survives restart.
func (s *JobStore) Durable() bool { return true }

func (s *JobStore) jobsKey() string      { return s.prefix + jobsKeySuffix }
func (s *JobStore) schedZSetKey() string { return s.prefix + schedZSetSuffix }
func (s *JobStore) schedMirrKey() string { return s.prefix + schedMirrSuffix }

// Put upserts the submission and maintains the scheduled index from its
// status: SCHEDULED submissions enter the sorted set and mirror, all others
// leave it.
func (s *JobStore) Put(ctx context.Context, sub *model.JobSubmission) error {
	if sub == nil || sub.ID == "" {
		return errors.New("submission id cannot be empty")
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return apperrors.InternalWrap("marshal submission", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.jobsKey(), sub.ID, data)
	if sub.Status == model.JobStatusScheduled && sub.ScheduledTime != nil {
		score := float64(sub.ScheduledTime.UnixNano()) / float64(time.Second)
		pipe.ZAdd(ctx, s.schedZSetKey(), redis.Z{Score: score, Member: sub.ID})
		pipe.HSet(ctx, s.schedMirrKey(), sub.ID, data)
	} else {
		pipe.ZRem(ctx, s.schedZSetKey(), sub.ID)
		pipe.HDel(ctx, s.schedMirrKey(), sub.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.TransientWrap("persist submission", err)
	}
	return nil
}

// Get returns the submission for jobID, or a not-found error.
func (s *JobStore) Get(ctx context.Context, jobID string) (*model.JobSubmission, error) {
	if jobID == "" {
		return nil, apperrors.NotFound("job not found")
	}
	data, err := s.client.HGet(ctx, s.jobsKey(), jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFoundf("job %s not found", jobID)
		}
		return nil, apperrors.TransientWrap("read submission", err)
	}
	var sub model.JobSubmission
	if err := json.Unmarshal([]byte(data), &sub); err != nil {
		return nil, apperrors.InternalWrap("unmarshal submission", err)
	}
	return &sub, nil
}

// AllScheduledDue returns every scheduled submission whose fire time is at or
// before now. The sorted set makes the scan logarithmic over the number of
// scheduled jobs and linear over the due ones.
func (s *JobStore) AllScheduledDue(ctx context.Context, now time.Time) ([]*model.JobSubmission, error) {
	maxScore := fmt.Sprintf("%f", float64(now.UnixNano())/float64(time.Second))
	ids, err := s.client.ZRangeByScore(ctx, s.schedZSetKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: maxScore,
	}).Result()
	if err != nil {
		return nil, apperrors.TransientWrap("scan scheduled index", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	raw, err := s.client.HMGet(ctx, s.jobsKey(), ids...).Result()
	if err != nil {
		return nil, apperrors.TransientWrap("read due submissions", err)
	}
	subs := make([]*model.JobSubmission, 0, len(raw))
	for i, item := range raw {
		str, ok := item.(string)
		if !ok {
			// Index entry without a backing record; drop it so the
			// scan does not report it forever.
			_ = s.client.ZRem(ctx, s.schedZSetKey(), ids[i]).Err()
			continue
		}
		var sub model.JobSubmission
		if err := json.Unmarshal([]byte(str), &sub); err != nil {
			return nil, apperrors.InternalWrap(fmt.Sprintf("unmarshal submission %s", ids[i]), err)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

// RemoveScheduled drops jobID from the scheduled index and mirror.
func (s *JobStore) RemoveScheduled(ctx context.Context, jobID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.schedZSetKey(), jobID)
	pipe.HDel(ctx, s.schedMirrKey(), jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.TransientWrap("remove scheduled entry", err)
	}
	return nil
}

// LoadAll returns every stored submission. It is invoked once at startup to
// rebuild the in-memory queues and indices.
func (s *JobStore) LoadAll(ctx context.Context) ([]*model.JobSubmission, error) {
	raw, err := s.client.HGetAll(ctx, s.jobsKey()).Result()
	if err != nil {
		return nil, apperrors.TransientWrap("load submissions", err)
	}
	subs := make([]*model.JobSubmission, 0, len(raw))
	for id, data := range raw {
		var sub model.JobSubmission
		if err := json.Unmarshal([]byte(data), &sub); err != nil {
			return nil, apperrors.InternalWrap(fmt.Sprintf("unmarshal submission %s", id), err)
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}
