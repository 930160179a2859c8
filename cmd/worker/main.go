/**
 * Figure Processing Worker - Main Entry Point
 *
 * Queue-driven worker for scientific paper figure understanding.
 *
 * Architecture:
 * - Asynq consumer for the Redis-backed job queue
 * - pdffigures2 subprocess for figure/caption localization
 * - GROBID service for fulltext paragraph and metadata extraction
 * - Model server (KServe-style) for figure classification and
 *   plot-to-table generation
 * - Tesseract word detection feeding a layout-preserving OCR grid
 * - PostgreSQL persistence for papers, figures and annotation entities
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/figstudio/figprocess-worker/internal/clients"
	"github.com/figstudio/figprocess-worker/internal/config"
	"github.com/figstudio/figprocess-worker/internal/pipeline"
	"github.com/figstudio/figprocess-worker/internal/queue"
	"github.com/figstudio/figprocess-worker/internal/storage"
)

func main() {
	if err := godotenv.Load(".env.figprocess"); err != nil {
		log.Printf("Warning: .env.figprocess not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Figure Processing Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, GROBID=%s, ModelServer=%s, Workers=%d",
		cfg.RedisURL, cfg.GrobidURL, cfg.ModelServerURL, cfg.WorkerConcurrency)

	// Storage
	log.Printf("Connecting to PostgreSQL...")
	store, err := storage.NewStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(context.Background()); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}
	log.Printf("Database ready")

	// External service clients
	grobid := clients.NewGrobidClient(cfg.GrobidURL, cfg.GrobidTimeout)
	modelServer := clients.NewModelServerClient(cfg.ModelServerURL)

	healthCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := grobid.HealthCheck(healthCtx); err != nil {
		log.Printf("Warning: GROBID health check failed: %v", err)
	}
	if err := modelServer.HealthCheck(healthCtx); err != nil {
		log.Printf("Warning: model server health check failed: %v", err)
	}
	cancel()

	// Pipeline stages
	figureExtractor, err := pipeline.NewFigureExtractor(&pipeline.FigureExtractorConfig{
		JarPath:    cfg.PDFFiguresJarPath,
		Resolution: cfg.FigureResolution,
		Timeout:    cfg.PDFFiguresTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize figure extractor: %v", err)
	}

	tableExtractor, err := pipeline.NewTableExtractor(cfg.Plot2TableModel, modelServer)
	if err != nil {
		log.Fatalf("Failed to initialize table extractor: %v", err)
	}

	paperPipeline := pipeline.NewPaperPipeline(&pipeline.PipelineConfig{
		Figures:    figureExtractor,
		Paragraphs: grobid,
		Classifier: pipeline.NewClassifier(modelServer, "docfigure"),
		Detector:   pipeline.NewTesseractDetector(strings.Split(cfg.TesseractLanguages, "+")),
		Tables:     tableExtractor,
		WorkDir:    cfg.WorkDir,
		GridMaxDim: cfg.OCRGridMaxDim,
	})
	log.Printf("Pipeline initialized (plot2table=%s, resolution=%d DPI)", cfg.Plot2TableModel, cfg.FigureResolution)

	// Job status mirror in Redis
	status, err := queue.NewStatusTracker(cfg.RedisURL, "figprocess:jobs")
	if err != nil {
		log.Fatalf("Failed to initialize status tracker: %v", err)
	}
	defer status.Close()

	// Queue consumer
	log.Printf("Connecting to Redis queue...")
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         "figprocess",
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         paperPipeline,
		Store:             store,
		Status:            status,
		ProcessingTimeout: cfg.ProcessingTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := consumer.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("Figure Processing Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: figprocess")
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Processing timeout: %v", cfg.ProcessingTimeout)
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	log.Printf("Shutdown complete")
}
