package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TradeScope/internal/config"
	"TradeScope/internal/event"
	"TradeScope/internal/ingestion"
	"TradeScope/internal/ledger"
	"TradeScope/internal/market"
	"TradeScope/internal/observability"
	"TradeScope/internal/pattern"
	"TradeScope/internal/persistence"
	"TradeScope/internal/query"
	"TradeScope/internal/server"
	"TradeScope/internal/snapshot"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: TradeScope starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("FATAL: postgres open: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("FATAL: postgres ping: %v", err)
	}
	log.Println("INFO: Postgres connected")

	// --- Run SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatalf("FATAL: run migrations: %v", err)
	}
	log.Println("INFO: migrations applied")

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- In-memory state ---
	store := ledger.NewStore(cfg.LedgerShards)
	markets := market.NewStore()
	patternEngine := pattern.NewEngine(pattern.Thresholds{
		EarlyWindowSeconds:  cfg.EarlyWindowSeconds,
		LateWindowSeconds:   cfg.LateWindowSeconds,
		HedgeArbitrageMin:   cfg.HedgeArbitrageMin,
		MMMakerMin:          cfg.MMMakerMin,
		MMHedgeMin:          cfg.MMHedgeMin,
		DirectionalHedgeMax: cfg.DirectionalHedgeMax,
	})

	// --- Recovery: reload positions, warm the dedup window ---
	recovered, err := persistence.LoadPositions(ctx, db)
	if err != nil {
		log.Fatalf("FATAL: load positions: %v", err)
	}
	for _, pos := range recovered {
		store.Restore(pos)
	}
	log.Printf("INFO: recovered %d positions from Postgres", len(recovered))

	dedup := persistence.NewPostgresDedup(db)
	recentIDs, err := dedup.LoadRecentIDs(ctx, cfg.DedupWindow)
	if err != nil {
		// The ledger watermarks still reject replays for recovered
		// positions, so a cold window only costs extra DB lookups.
		log.Printf("WARN: warm dedup window: %v", err)
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure outbound stream: %v", err)
	}

	// --- Snapshot pipeline ---
	publisher := snapshot.NewPublisher()
	builder := snapshot.NewBuilder(store, markets, patternEngine, publisher,
		cfg.SnapshotInterval, metrics, observability.NewLogger("snapshot"))

	// --- Channels ---
	rawEventChan := make(chan ingestion.RawEvent, 4096)
	persistChan := make(chan persistence.Applied, 4096)
	publishChan := make(chan ingestion.PositionDelta, 4096)

	// --- Ledger writers ---
	pool := ledger.NewPool(store, 1024, metrics, observability.NewLogger("ledger"))
	pool.OnApplied = func(pos *ledger.Position, t *event.TradeEvent) {
		// Blocking send: persistence must never lose an applied trade.
		persistChan <- persistence.Applied{Trade: t, Position: pos}
		builder.MarkDirty()

		mctx, ok := markets.Get(pos.MarketSlug)
		delta := ingestion.PositionDelta{
			TradeID:   t.ID,
			Position:  pos,
			Pattern:   patternEngine.Derive(pos, mctx, ok),
			AppliedAt: time.Now(),
		}
		select {
		case publishChan <- delta:
		default:
			// Outbound stream is best-effort; the snapshot API carries
			// the authoritative state.
		}
	}
	pool.Start(ctx)

	// --- Normalizer + feed consumer ---
	normalizer := ingestion.NewNormalizer(cfg.DedupWindow, cfg.Wallets, dedup,
		metrics, observability.NewLogger("normalizer"))
	normalizer.WarmWindow(recentIDs)
	log.Printf("INFO: dedup window warmed with %d trade ids", len(recentIDs))

	consumer := ingestion.NewConsumer(rawEventChan, normalizer, pool, markets,
		metrics, observability.NewLogger("consumer"))

	// --- NATS subscriber ---
	// The feed side gets its own context so shutdown can stop it before
	// the shard writers close.
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()

	natsSubscriber := ingestion.NewNATSSubscriber(js, rawEventChan)
	if err := natsSubscriber.Subscribe(feedCtx, ingestion.DefaultSubjects()); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}

	// --- Services ---
	queryService := query.NewService(db)
	httpServer := server.New(cfg.HTTPAddr, publisher, queryService,
		healthChecker, metrics, observability.NewLogger("server"))

	// --- Start goroutines ---
	errChan := make(chan error, 8)

	// 1. Feed consumer
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Run(feedCtx); err != nil && err != context.Canceled {
			errChan <- err
		}
	}()

	// 2. Optional REST trade poller
	if cfg.PollURL != "" {
		poller := ingestion.NewTradesPoller(cfg.PollURL, cfg.PollInterval,
			cfg.PollLookback, rawEventChan, metrics, observability.NewLogger("poller"))
		go poller.Start(feedCtx)
	}

	// 3. Snapshot builder
	go builder.Run(ctx)
	builder.BuildNow()

	// 4. Persistence worker
	persistWorker := persistence.NewPersistenceWorker(db, persistChan,
		cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		if err := persistWorker.Run(ctx); err != nil && err != context.Canceled {
			errChan <- err
		}
	}()

	// 5. Outbound position publisher
	outboundPublisher := ingestion.NewOutboundPublisher(js, publishChan)
	go func() {
		errChan <- outboundPublisher.Run(ctx)
	}()

	// 6. HTTP API + WebSocket stream
	go func() {
		errChan <- httpServer.Start()
	}()

	// 7. Prometheus metrics server
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	log.Printf("INFO: TradeScope ready (positions=%d, http=%s, metrics=%s, shards=%d)",
		store.Len(), cfg.HTTPAddr, cfg.MetricsAddr, cfg.LedgerShards)

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	// --- Graceful shutdown ---
	// Stop the feed first so no new trades enter, drain the shard
	// writers, then let the persistence worker flush what is queued.
	natsSubscriber.Stop()
	stopFeed()
	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		log.Println("WARN: feed consumer did not stop in time")
	}

	pool.Close()
	close(persistChan)
	select {
	case <-persistDone:
		log.Println("INFO: persistence worker drained")
	case <-time.After(30 * time.Second):
		log.Println("WARN: persistence worker did not drain in time")
	}
	close(publishChan)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: http shutdown: %v", err)
	}

	log.Println("INFO: TradeScope shutdown complete")
}
