package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iho/jibledger/internal/domain"
)

// setIfNewer stores "version:status" unless the key already holds a higher
// version. KEYS[1] = key, ARGV = version, status, ttl in milliseconds.
var setIfNewer = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current then
	local v = tonumber(string.match(current, '^(%d+):'))
	if v and v > tonumber(ARGV[1]) then
		return 0
	end
end
redis.call('SET', KEYS[1], ARGV[1] .. ':' .. ARGV[2], 'PX', ARGV[3])
return 1
`)

// StatusCache implements usecase.StatusCache using Redis. Each entry is
// tagged with the ledger version it was derived from.
type StatusCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const defaultStatusTTL = 10 * time.Minute

// NewStatusCache creates a new StatusCache. A non-positive ttl uses the default.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusCache{
		client: client,
		prefix: "ledger-status:",
		ttl:    ttl,
	}
}

// Get returns the cached status. ok is false on a miss or an unreadable entry.
func (c *StatusCache) Get(ctx context.Context, ledgerID string) (domain.LedgerStatus, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+ledgerID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get status for %s: %w", ledgerID, err)
	}
	_, status, ok := parseEntry(val)
	if !ok {
		return "", false, nil
	}
	return status, true, nil
}

// Set stores the status derived at version. A write older than the stored
// entry is ignored.
func (c *StatusCache) Set(ctx context.Context, ledgerID string, version int64, status domain.LedgerStatus) error {
	err := setIfNewer.Run(ctx, c.client, []string{c.prefix + ledgerID},
		version, string(status), c.ttl.Milliseconds()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("set status for %s: %w", ledgerID, err)
	}
	return nil
}

// Delete removes a cached status.
func (c *StatusCache) Delete(ctx context.Context, ledgerID string) error {
	return c.client.Del(ctx, c.prefix+ledgerID).Err()
}

func parseEntry(val string) (int64, domain.LedgerStatus, bool) {
	rawVersion, status, found := strings.Cut(val, ":")
	if !found || status == "" {
		return 0, "", false
	}
	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return version, domain.LedgerStatus(status), true
}
