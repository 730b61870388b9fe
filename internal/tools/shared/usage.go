package shared

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	redisadapter "github.com/kiiskristo/marketpulse-backend/internal/adapters/redis"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const usageCounterTTL = 48 * time.Hour

// UsageLog appends one CSV line per paid API call to <dir>/<api>_usage.log
// and, when Redis is configured, bumps a per-day counter.
type UsageLog struct {
	dir   string
	redis *redisadapter.Client
	now   func() time.Time
	mu    sync.Mutex
}

// NewUsageLog creates a usage log writing under dir. redis may be nil.
func NewUsageLog(dir string, redis *redisadapter.Client) *UsageLog {
	return &UsageLog{dir: dir, redis: redis, now: time.Now}
}

// Path returns the log file of an API.
func (u *UsageLog) Path(api string) string {
	return filepath.Join(u.dir, api+"_usage.log")
}

// Record writes "<RFC3339 time>,<kind>,<subject>".
func (u *UsageLog) Record(ctx context.Context, api, kind, subject string) error {
	if u == nil {
		return nil
	}
	now := u.now()

	if err := u.append(api, fmt.Sprintf("%s,%s,%s\n", now.Format(time.RFC3339Nano), kind, subject)); err != nil {
		return err
	}

	if u.redis != nil {
		key := fmt.Sprintf("marketpulse:usage:%s:%s", api, now.Format("2006-01-02"))
		if _, err := u.redis.IncrementWithExpiry(ctx, key, usageCounterTTL); err != nil {
			return errors.Wrap(err, "usage counter")
		}
	}
	return nil
}

func (u *UsageLog) append(api, line string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return errors.Wrap(err, "create usage log dir")
	}
	f, err := os.OpenFile(u.Path(api), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open usage log")
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "write usage log")
	}
	return nil
}
