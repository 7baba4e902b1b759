package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/HadassahLevi/tiktax/internal/application/port"
	"github.com/HadassahLevi/tiktax/internal/application/service"
	"github.com/HadassahLevi/tiktax/internal/config"
	"github.com/HadassahLevi/tiktax/internal/dedup"
	"github.com/HadassahLevi/tiktax/internal/domain/entity"
	"github.com/HadassahLevi/tiktax/internal/infrastructure/external/openai"
	"github.com/HadassahLevi/tiktax/internal/infrastructure/persistence/repository"
	"github.com/HadassahLevi/tiktax/internal/infrastructure/storage"
	httpadapter "github.com/HadassahLevi/tiktax/internal/interfaces/http"
	"github.com/HadassahLevi/tiktax/internal/render"
	"github.com/HadassahLevi/tiktax/pkg/database"
	"github.com/HadassahLevi/tiktax/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// .env is optional; environment variables win over the file.
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting tiktax server",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	registry := entity.NewCategoryRegistry(cfg.Categories)

	detector, err := dedup.NewDetector(cfg.Dedup.Weights, cfg.Dedup.Threshold)
	if err != nil {
		logger.Fatal("Invalid duplicate detector tuning", zap.Error(err))
	}

	images := storage.NewLocalImageStore(cfg.Storage.ImageDir, logger)

	var archiver port.Archiver
	if cfg.Storage.ArchiveDir != "" {
		archiver = storage.NewFileArchiver(cfg.Storage.ArchiveDir, logger)
	}

	recognizer := openai.NewRecognizer(
		cfg.Recognition.APIKey,
		cfg.Recognition.Model,
		cfg.Recognition.Temperature,
		cfg.Recognition.MaxTokens,
		cfg.Recognition.Timeout,
		images,
		registry,
		logger,
	)

	repo := repository.NewReceiptRepository(db.DB, logger)

	receipts := service.NewReceiptService(
		repo,
		recognizer,
		detector,
		registry,
		archiver,
		service.ValidationConfig{
			VATRate:   cfg.Tax.VATRate,
			Tolerance: cfg.Tax.Tolerance,
		},
		logger,
	)

	renderer := render.NewExcelRenderer(logger)

	server := httpadapter.NewServer(
		httpadapter.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		receipts,
		images,
		renderer,
		registry,
		cfg.Stats.RecentLimit,
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
