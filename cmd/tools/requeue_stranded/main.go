// Command requeue_stranded moves any events left in processing_queue back
// onto draw_queue. Normally Consumer.RecoverInFlight does this once at
// startup; this tool lets an operator run the same recovery against a live
// deployment without restarting the consumer process.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"pixelboard/internal/board"
	"pixelboard/internal/consumer"
	"pixelboard/internal/eventbus"
	"pixelboard/internal/kv"
)

func main() {
	redisURL := flag.String("redis-url", os.Getenv("REDIS_URL"), "redis connection URL")
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("-redis-url or REDIS_URL is required")
	}

	ctx := context.Background()
	store, err := kv.NewRedisStore(ctx, *redisURL)
	if err != nil {
		log.Fatalf("unable to connect to redis: %v", err)
	}
	defer store.Close()

	b := board.NewBoard(store)
	bus := eventbus.New()
	c := consumer.New(store, b, bus)

	n, err := c.RecoverInFlight(ctx)
	if err != nil {
		log.Fatalf("recover in-flight: %v", err)
	}
	log.Printf("[requeue_stranded] moved %d stranded event(s) back onto draw_queue", n)
}
