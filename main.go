package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"exam-portal/config"
	"exam-portal/db"
	"exam-portal/exam"
	"exam-portal/handlers"
	"exam-portal/ingestion"
	"exam-portal/logger"
	"exam-portal/middleware"
	"exam-portal/session"
)

const usage = `Usage:
  exam-portal                      start the web server
  exam-portal provision [-f file]  create roles and initial accounts
`

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Error loading configuration")
	}
	logger.Configure(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "provision":
			if err := provision(cfg, os.Args[2:]); err != nil {
				logger.Fatal().Err(err).Msg("Provisioning failed")
			}
			return
		default:
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
	}

	if err := serve(cfg); err != nil {
		logger.Fatal().Err(err).Msg("Server error")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*db.Store, func(), error) {
	pool, err := db.InitDB(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := db.CreateSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("error creating database schema: %w", err)
	}
	return db.NewStore(pool), pool.Close, nil
}

func provision(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	file := fs.String("f", "", "YAML file with roles and accounts (default: Teacher and Student roles only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	f := ingestion.DefaultProvision()
	if *file != "" {
		var err error
		if f, err = ingestion.LoadProvisionFile(*file); err != nil {
			return err
		}
	}

	ctx := context.Background()
	store, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := ingestion.Provision(ctx, store, f)
	if err != nil {
		return err
	}
	logger.Info().Int("accounts", n).Msg("Provisioning complete")
	return nil
}

func serve(cfg *config.Config) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := middleware.RegisterValidators(); err != nil {
		return err
	}

	store, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var sessionStore session.Store
	if cfg.Redis.Addr != "" {
		rdb, err := session.InitRedis(cfg.Redis)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sessionStore = session.NewRedisStore(rdb)
	} else {
		mem := session.NewMemoryStore()
		go mem.RunSweeper(ctx, 10*time.Minute)
		sessionStore = mem
		logger.Warn().Msg("REDIS.ADDR not set, keeping sessions in memory")
	}

	metrics := middleware.NewMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	app := &handlers.App{
		Store: store,
		Exams: exam.NewService(store,
			exam.WithTimeGrace(cfg.Exam.TimeGrace),
			exam.WithObserver(metrics)),
		Sessions: session.NewManager(sessionStore, cfg.Session),
		Checker:  middleware.NewChecker(nil),
	}

	loginLimiter := middleware.NewRateLimiter(cfg.LoginRate.Requests, cfg.LoginRate.Window)
	go loginLimiter.Cleanup(ctx)

	gin.SetMode(cfg.GinMode)
	router := handlers.Router(app, handlers.NewRenderer(cfg.TemplatesDir), metrics, loginLimiter)

	srv := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}
	servers := []*http.Server{srv}

	if cfg.MetricsAddr != "" {
		metricsSrv := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: handlers.MetricsRouter(metrics),
		}
		servers = append(servers, metricsSrv)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("Metrics listener starting")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info().Msg("Shutting down server...")
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Str("addr", s.Addr).Msg("Server forced to shutdown")
			}
		}
	}()

	logger.Info().Str("addr", cfg.ServerPort).Msg("Exam portal starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server startup error: %w", err)
	}
	logger.Info().Msg("Server exited gracefully.")
	return nil
}
