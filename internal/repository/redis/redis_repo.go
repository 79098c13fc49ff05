package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JimBoHa/Infrastructure-Dashboard-sub003/internal/domain/entity"
)

type RedisRepo struct {
	Client *redis.Client
}

func NewRedisRepo(client *redis.Client) *RedisRepo {
	return &RedisRepo{Client: client}
}

func (r *RedisRepo) SetStatus(ctx context.Context, jobID string, status entity.JobStatus) error {
	return r.Client.Set(ctx, "job_status:"+jobID, string(status), time.Hour).Err()
}

// SetJobKey records a recently completed job key so resubmissions within the
// TTL coalesce onto the finished job.
func (r *RedisRepo) SetJobKey(ctx context.Context, key, jobID string, ttl time.Duration) error {
	return r.Client.Set(ctx, "job_key:"+key, jobID, ttl).Err()
}

// JobIDForKey returns "" without error when the key is unknown or expired.
func (r *RedisRepo) JobIDForKey(ctx context.Context, key string) (string, error) {
	id, err := r.Client.Get(ctx, "job_key:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}
