// Command pixelboard wires the full draw-event pipeline: a chain block
// source feeds the Ingestor, the Ingestor pushes onto the durable queue the
// Consumer drains, the Consumer mutates the shared Board and fans results
// out over the in-process bus, and the Read API/WebSocket server serves
// both that board and that bus to clients.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"pixelboard/internal/api"
	"pixelboard/internal/board"
	"pixelboard/internal/chain"
	"pixelboard/internal/config"
	"pixelboard/internal/consumer"
	"pixelboard/internal/eventbus"
	"pixelboard/internal/ingester"
	"pixelboard/internal/kv"
	"pixelboard/internal/notify"
	"pixelboard/internal/snapshot"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

func main() {
	configPath := flag.String("config", "", "optional YAML config file (overridden by env vars)")
	flag.Parse()

	log.Printf("[pixelboard] starting, build=%s", BuildCommit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[pixelboard] load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := kv.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("[pixelboard] connect redis: %v", err)
	}
	defer store.Close()

	b := board.NewBoard(store)
	bus := eventbus.New()
	defer bus.Close()

	// Resume after the last checkpointed block when it is past the
	// configured start height.
	if cp, err := store.Get(ctx, "last_processed_block"); err == nil {
		if h, perr := strconv.ParseUint(cp, 10, 64); perr == nil && h > cfg.StartHeight {
			cfg.StartHeight = h
		}
	} else if err != kv.ErrNotFound {
		log.Fatalf("[pixelboard] read checkpoint: %v", err)
	}

	blockSource, err := newBlockSource(cfg)
	if err != nil {
		log.Fatalf("[pixelboard] init chain source: %v", err)
	}
	defer blockSource.Close()

	in := ingester.New(blockSource, store)
	cons := consumer.New(store, b, bus)

	if n, err := cons.RecoverInFlight(ctx); err != nil {
		log.Fatalf("[pixelboard] recover in-flight: %v", err)
	} else if n > 0 {
		log.Printf("[pixelboard] recovered %d stranded event(s)", n)
	}

	var opts []api.Option
	if cfg.AdminJWTSecret != "" {
		opts = append(opts, api.WithAdminSecret(cfg.AdminJWTSecret))
	}

	var notifier notify.WebhookDelivery = notify.NoopDelivery{}
	hasNotifier := false
	if cfg.SvixAuthToken != "" {
		svixClient, err := notify.NewSvixClient(ctx, cfg.SvixAuthToken, cfg.SvixServerURL, cfg.SvixAppID)
		if err != nil {
			log.Fatalf("[pixelboard] init svix client: %v", err)
		}
		notifier = svixClient
		hasNotifier = true
		opts = append(opts, api.WithNotifier(notifier))
	}

	server := api.NewServer(cfg.ListenAddr, b, store, bus, in, opts...)

	var snap *snapshot.Store
	if cfg.SnapshotDBURL != "" {
		snap, err = snapshot.NewStore(ctx, cfg.SnapshotDBURL)
		if err != nil {
			log.Fatalf("[pixelboard] init snapshot store: %v", err)
		}
		defer snap.Close()
	}

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		if err := in.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[pixelboard] ingester stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := cons.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[pixelboard] consumer stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("[pixelboard] api server stopped: %v", err)
		}
	}()

	if hasNotifier {
		go runRegionsOpenedBridge(ctx, bus, notifier)
	}
	if snap != nil {
		go snap.RunPeriodic(ctx, "pixelboard", 30*time.Second, func(ctx context.Context) (uint64, uint64, uint64, error) {
			return boardCounters(ctx, store, in)
		})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("[pixelboard] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[pixelboard] server shutdown: %v", err)
	}

	cancel()
	wg.Wait()
	log.Printf("[pixelboard] stopped")
}

func newBlockSource(cfg *config.Config) (chain.BlockSource, error) {
	return chain.NewGRPCBlockSource(chain.GRPCBlockSourceConfig{
		Nodes:        cfg.FlowAccessNodes,
		ContractID:   cfg.ContractID,
		FunctionTag:  cfg.FunctionTag,
		StartHeight:  cfg.StartHeight,
		RPSPerNode:   5,
		PollInterval: 2 * time.Second,
	})
}

// runRegionsOpenedBridge forwards bus "regions_opened" events to notifier,
// decoupling the Consumer (which has no notifier dependency) from outbound
// webhook delivery.
func runRegionsOpenedBridge(ctx context.Context, bus *eventbus.Bus, notifier notify.WebhookDelivery) {
	ch, unsub := bus.NewSubscriber("regions_opened")
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			payload, ok := evt.Data.(consumer.RegionsOpenedEnvelope)
			if !ok {
				continue
			}
			notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := notifier.RegionsOpened(notifyCtx, payload.Regions); err != nil {
				log.Printf("[pixelboard] regions_opened webhook: %v", err)
			}
			cancel()
		}
	}
}

func boardCounters(ctx context.Context, store kv.Store, in *ingester.Ingestor) (lastHeight, drawnPixels, openRegions uint64, err error) {
	lastHeight, err = in.LastProcessedHeight(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	regions, err := store.SMembers(ctx, "open_regions")
	if err != nil {
		return 0, 0, 0, err
	}
	openRegions = uint64(len(regions))

	counts, err := store.HGetAll(ctx, "region_pixel_count")
	if err != nil {
		return 0, 0, 0, err
	}
	for _, v := range counts {
		n, _ := strconv.ParseUint(v, 10, 64)
		drawnPixels += n
	}
	return lastHeight, drawnPixels, openRegions, nil
}
