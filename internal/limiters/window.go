package limiters

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments a counter and starts its window on the first
// hit, in one round trip so a crash between the two cannot leave an
// immortal key.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

func hitWindow(ctx context.Context, client redis.UniversalClient, key string, window time.Duration) (int64, error) {
	return fixedWindowScript.Run(ctx, client, []string{key}, window.Milliseconds()).Int64()
}
