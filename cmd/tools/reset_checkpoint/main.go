// Command reset_checkpoint sets the ingester's last_processed_block marker
// to 0 so the next run restarts from its configured start height.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"pixelboard/internal/kv"
)

func main() {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	ctx := context.Background()
	store, err := kv.NewRedisStore(ctx, redisURL)
	if err != nil {
		log.Fatalf("unable to connect to redis: %v", err)
	}
	defer store.Close()

	const key = "last_processed_block"
	_, err = store.Get(ctx, key)
	if err == kv.ErrNotFound {
		fmt.Println("no checkpoint found, nothing to reset")
		return
	}
	if err != nil {
		log.Fatalf("read checkpoint: %v", err)
	}

	if err := store.Set(ctx, key, "0"); err != nil {
		log.Fatalf("reset checkpoint: %v", err)
	}
	fmt.Println("checkpoint reset; ingester will restart from its configured start height")
}
