package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"mood-tracker/internal/auth"
	"mood-tracker/internal/backup"
	"mood-tracker/internal/config"
	apphttp "mood-tracker/internal/http"
	"mood-tracker/internal/moodstore"
	"mood-tracker/internal/repository"
	"mood-tracker/internal/repository/flatfile"
	"mood-tracker/internal/repository/sqlite"
	"mood-tracker/internal/service"
	"mood-tracker/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}

	moodRepo, err := buildMoodRepository(cfg, db)
	if err != nil {
		logger.Fatalf("setup mood repository: %v", err)
	}
	if err := moodRepo.Init(ctx); err != nil {
		logger.Fatalf("init mood repository: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("streak timezone: %v", err)
	}
	store := moodstore.New(moodRepo, moodstore.Options{
		FlushTimeout: cfg.Persistence.FlushTimeout,
		Location:     loc,
		Logger:       logger.WithField("component", "moodstore"),
	})

	userIDs, err := userRepo.ListIDs(ctx)
	if err != nil {
		logger.Fatalf("list users: %v", err)
	}
	if err := store.LoadFrom(ctx, userIDs); err != nil {
		logger.Fatalf("load moods: %v", err)
	}

	userService := service.NewUserService(userRepo, store, bcrypt.DefaultCost, logger.WithField("component", "users"))

	var tokens *auth.Issuer
	if strings.TrimSpace(cfg.Auth.JWTSecret) != "" {
		tokens = auth.NewIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	} else {
		logger.Info("auth jwt secret not set, bearer tokens disabled")
	}

	var backups backup.Manager
	if cfg.Backup.Bucket != "" {
		storageSvc, err := buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		backups = backup.NewManager(backup.Config{
			Bucket:    cfg.Backup.Bucket,
			KeyPrefix: cfg.Backup.KeyPrefix,
			Interval:  cfg.Backup.Interval,
			Retain:    cfg.Backup.Retain,
			Logger:    logger.WithField("component", "backup"),
		}, store, storageSvc)
		if err := backups.Start(ctx); err != nil {
			logger.Fatalf("start backups: %v", err)
		}
	} else {
		logger.Info("backup bucket not set, snapshots disabled")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(store, userService, tokens, backups, logger.WithField("component", "http"))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if backups != nil {
		backups.Shutdown()
		// one last snapshot so the bucket reflects the final state
		if _, err := backups.RunOnce(shutdownCtx); err != nil {
			logger.Warnf("final snapshot: %v", err)
		}
	}

	logger.Info("bye")
}

func buildMoodRepository(cfg config.Config, db *sql.DB) (repository.MoodRepository, error) {
	switch cfg.Persistence.Driver {
	case config.DriverSQLite:
		return sqlite.NewMoodRepository(db), nil
	case config.DriverFile:
		format, err := flatfile.ParseFormat(cfg.Persistence.Format)
		if err != nil {
			return nil, err
		}
		return flatfile.NewMoodRepository(cfg.Persistence.Path, format), nil
	default:
		return nil, fmt.Errorf("unknown persistence driver %q", cfg.Persistence.Driver)
	}
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Backup.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Backup.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Backup.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Backup.Bucket, cfg.Backup.Region)
	return storage.NewS3Service(client), nil
}
