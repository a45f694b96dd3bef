package utils

import (
	"context"
	"strconv"
	"time"
)

// Online-presence markers are strictly advisory: losing them has no impact on
// correctness, so every operation here fails silently.

const presenceTTL = 5 * time.Minute

func presenceKey(userID uint) string {
	return "online:user:" + strconv.Itoa(int(userID))
}

// MarkOnline refreshes the presence marker for a user.
func MarkOnline(userID uint) {
	rc := GetRedis()
	if rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_ = rc.Set(ctx, presenceKey(userID), "1", presenceTTL).Err()
}

// OnlineCount returns the number of users with a live presence marker.
func OnlineCount() int {
	rc := GetRedis()
	if rc == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var cursor uint64
	total := 0
	for i := 0; i < 10; i++ {
		keys, cur, err := rc.Scan(ctx, cursor, "online:user:*", 1000).Result()
		if err != nil {
			break
		}
		total += len(keys)
		cursor = cur
		if cursor == 0 {
			break
		}
	}
	return total
}
