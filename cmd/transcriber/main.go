package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sylverboss/telegram-audio-transcriber/internal/cleanup"
	"github.com/sylverboss/telegram-audio-transcriber/internal/config"
	"github.com/sylverboss/telegram-audio-transcriber/internal/docs"
	"github.com/sylverboss/telegram-audio-transcriber/internal/logger"
	"github.com/sylverboss/telegram-audio-transcriber/internal/pipeline"
	"github.com/sylverboss/telegram-audio-transcriber/internal/storage"
	"github.com/sylverboss/telegram-audio-transcriber/internal/telegram"
	"github.com/sylverboss/telegram-audio-transcriber/internal/transcription"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	store := storage.NewLocalStorage(cfg.Storage.DownloadDir, cfg.Storage.TranscriptionDir)
	if err := store.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create storage directories: %v", err)
	}

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		log.Fatalf("Failed to open metadata database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher, err := docs.NewPublisher(ctx, cfg.Google.CredentialsFile, log)
	if err != nil {
		log.Fatalf("Failed to set up Google services: %v", err)
	}

	transcriber := transcription.NewClient(cfg.AssemblyAI.APIKey, transcription.Options{
		BaseURL:      cfg.AssemblyAI.BaseURL,
		LanguageCode: cfg.AssemblyAI.LanguageCode,
		PollInterval: cfg.PollInterval(),
		PollTimeout:  cfg.PollTimeout(),
	}, log)

	cleaner := cleanup.NewScheduler(cfg.Storage.DownloadDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		log)
	cleaner.Start()
	defer cleaner.Stop()

	source := telegram.NewClient(
		cfg.Telegram.APIID,
		cfg.Telegram.APIHash,
		cfg.Telegram.Phone,
		cfg.Telegram.Password,
		cfg.Telegram.Channel,
		cfg.Telegram.SessionFile,
		log,
	)

	controller := pipeline.NewController(source, transcriber, publisher, db, store, cfg.ItemDelay(), log)

	// source.Run releases the Telegram connection on every exit path
	if err := source.Run(ctx, controller.Run); err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	log.Info("Processing completed successfully")
}
