package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go-psyche/internal/api"
	"go-psyche/internal/belief"
	"go-psyche/internal/config"
	"go-psyche/internal/db"
	"go-psyche/internal/heartbeat"
	"go-psyche/internal/maintenance"
	"go-psyche/internal/memory"
	redisdb "go-psyche/internal/redis"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := db.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	rdb := redisdb.NewClient(cfg)
	ctx := context.Background()

	// Vector index and embedding boundary
	index, err := memory.NewQdrantIndex(
		cfg.Psyche.Qdrant.URL,
		cfg.Psyche.Qdrant.Collection,
		cfg.Psyche.Qdrant.APIKey,
		cfg.Psyche.EmbeddingModel.Dimensions,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Qdrant init error: %v\n", err)
		os.Exit(1)
	}
	httpEmbedder := memory.NewHTTPEmbedder(
		cfg.Psyche.EmbeddingModel.URL,
		cfg.Psyche.EmbeddingModel.Name,
		cfg.Psyche.EmbeddingModel.Dimensions,
	)
	embedder := memory.NewCachedEmbedder(httpEmbedder, rdb)

	// Memory store and recall
	settings := config.NewSettings(db.DB)
	segmenter := memory.NewSegmenter(db.DB, 30*time.Minute)
	neighborhoods, err := memory.NewNeighborhoodCache(db.DB, index, 8)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Neighborhood cache init error: %v\n", err)
		os.Exit(1)
	}
	store := memory.NewStore(index, embedder, segmenter, neighborhoods)
	recall := memory.NewRecallEngine(index, embedder, neighborhoods, segmenter, memory.DefaultFusionWeights(), 5)

	// Belief gate and trust
	gate := belief.NewGate(db.DB, store, nil)
	graph := memory.NewGraph(db.DB)
	trust := memory.NewTrustEngine(index, graph, gate, memory.TrustParams{})

	// Heartbeat scheduler
	if _, err := heartbeat.LoadState(ctx, db.DB, cfg.Psyche.Heartbeat.MaxEnergy); err != nil {
		fmt.Fprintf(os.Stderr, "Heartbeat state error: %v\n", err)
		os.Exit(1)
	}
	drives := heartbeat.NewDriveEngine(db.DB)
	if err := drives.SeedDefaults(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Drive seed error: %v\n", err)
		os.Exit(1)
	}
	outbox := heartbeat.NewOutbox(db.DB, rdb)
	decisions := heartbeat.NewDecisions(db.DB, outbox, 30*time.Minute)
	executor := heartbeat.NewExecutor(db.DB, settings, heartbeat.NewScreener(settings))
	engine := heartbeat.NewEngine(db.DB, executor, drives, decisions, recall, cfg.Psyche.Heartbeat.RegenPerCycle)
	heartbeat.RegisterDefaultHandlers(engine, store, gate)
	terminator := heartbeat.NewTerminator(db.DB, store, cfg.Psyche.AllowTermination)

	heartbeatWorker := heartbeat.NewWorker(engine, cfg.Psyche.Heartbeat.IntervalSeconds)
	heartbeatWorker.Start()
	defer heartbeatWorker.Stop()

	// Maintenance pass
	runner := maintenance.NewRunner(
		store,
		embedder,
		settings,
		cfg.Psyche.Maintenance.NeighborBatchSize,
		time.Duration(cfg.Psyche.Maintenance.EmbedCacheMaxDays)*24*time.Hour,
	)
	maintenanceWorker := maintenance.NewWorker(runner, time.Duration(cfg.Psyche.Maintenance.IntervalMinutes)*time.Minute)
	maintenanceWorker.Start()
	defer maintenanceWorker.Stop()

	deps := &api.Deps{
		DB:         db.DB,
		Store:      store,
		Recall:     recall,
		Gate:       gate,
		Graph:      graph,
		Trust:      trust,
		Decisions:  decisions,
		Drives:     drives,
		Terminator: terminator,
		Settings:   settings,
		Embedder:   embedder,
		Segmenter:  segmenter,
	}
	r := api.SetupRouter(deps)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Starting server on %s\n", addr)
	if err := r.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
