package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/invoicekits/invoicekits/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyBatchUpload = "batch:upload:company:%s"

// UploadLimiter throttles batch uploads per company. It is disabled when
// Redis is absent or the configured rate is zero.
type UploadLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewUploadLimiter(client *redis.Client, cfg config.Config) *UploadLimiter {
	perMinute := cfg.Batch.UploadsPerMinute
	if client == nil || perMinute <= 0 {
		return &UploadLimiter{}
	}
	return &UploadLimiter{
		bucket: NewTokenBucket(client),
		rate:   float64(perMinute) / 60,
		burst:  perMinute,
	}
}

func (l *UploadLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *UploadLimiter) Allow(ctx context.Context, companyID snowflake.ID) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyBatchUpload, companyID.String()), l.rate, l.burst)
}
