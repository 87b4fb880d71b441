package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/videograph-backend/internal/platform/envutil"
	"github.com/yungbote/videograph-backend/internal/platform/logger"
)

// JudgeCache memoizes judge verdicts so re-ingesting videos with the same
// entity or relationship population skips repeat model calls. It is purely
// an optimization: every method is safe on a nil receiver, and cache errors
// degrade to a miss.
type JudgeCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewJudgeCacheFromEnv returns (nil, nil) when REDIS_ADDR is unset; the
// resolvers then call the judge directly.
func NewJudgeCacheFromEnv(log *logger.Logger) (*JudgeCache, error) {
	if log == nil {
		return nil, fmt.Errorf("redis: logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	ttl := time.Duration(envutil.Int("KG_JUDGE_CACHE_TTL_SECONDS", 6*3600)) * time.Second

	return &JudgeCache{
		log: log.With("client", "JudgeCache"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

// Key derives a stable cache key from the prompt name and its payload parts.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return "kg:judge:" + hex.EncodeToString(h.Sum(nil))
}

func (c *JudgeCache) Get(ctx context.Context, key string) (map[string]any, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		c.log.Warn("judge cache entry corrupt, dropping", "key", key, "error", err)
		_ = c.rdb.Del(ctx, key).Err()
		return nil, false
	}
	return obj, true
}

func (c *JudgeCache) Put(ctx context.Context, key string, obj map[string]any) {
	if c == nil || c.rdb == nil || obj == nil {
		return
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("judge cache write failed (continuing)", "key", key, "error", err)
	}
}

func (c *JudgeCache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
