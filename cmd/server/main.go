package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/health"

	"github.com/quentinrf/tank-monitor/internal/adapters/filestore"
	"github.com/quentinrf/tank-monitor/internal/adapters/gitpub"
	grpcAdapter "github.com/quentinrf/tank-monitor/internal/adapters/grpc"
	"github.com/quentinrf/tank-monitor/internal/adapters/httpapi"
	"github.com/quentinrf/tank-monitor/internal/adapters/kafka"
	"github.com/quentinrf/tank-monitor/internal/adapters/memory"
	"github.com/quentinrf/tank-monitor/internal/adapters/mock"
	"github.com/quentinrf/tank-monitor/internal/adapters/mqtt"
	"github.com/quentinrf/tank-monitor/internal/adapters/sqlsource"
	"github.com/quentinrf/tank-monitor/internal/adapters/websocket"
	"github.com/quentinrf/tank-monitor/internal/config"
	"github.com/quentinrf/tank-monitor/internal/domain"
	"github.com/quentinrf/tank-monitor/internal/engine"
	"github.com/quentinrf/tank-monitor/internal/observability"
	"github.com/quentinrf/tank-monitor/internal/ports"
	"github.com/quentinrf/tank-monitor/pkg/tlsconfig"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg.Log)

	log.Info().Msg("starting tank monitor")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engCfg, err := cfg.EngineConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine configuration")
	}
	eng, err := engine.NewEngine(engCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create metrics engine")
	}
	log.Info().
		Str("site", engCfg.Site).
		Str("strategy", string(engCfg.Strategy)).
		Str("volume_model", eng.Model().Name()).
		Str("timezone", engCfg.Location.String()).
		Msg("initialized metrics engine")

	// Initialize series source
	source := openSource(ctx, cfg, engCfg.Location)
	defer source.Close()

	// Initialize report store
	var mirror *filestore.S3Mirror
	if cfg.Store.S3Bucket != "" {
		mirror, err = filestore.NewS3Mirror(cfg.Store.S3Region, cfg.Store.S3Bucket, cfg.Store.S3Prefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create S3 mirror")
		}
		log.Info().Str("bucket", cfg.Store.S3Bucket).Msg("S3 mirror enabled")
	}
	store := filestore.NewStore(filestore.Config{
		SeriesPath: cfg.Store.SeriesPath,
		ReportPath: cfg.Store.ReportPath,
		StagingDir: cfg.Store.StagingDir,
	}, mirror)

	publisher := gitpub.NewPublisher(gitpub.Config{
		Enabled:     cfg.Publish.Enabled,
		RepoPath:    cfg.Publish.RepoPath,
		Remote:      cfg.Publish.Remote,
		AuthorName:  cfg.Publish.AuthorName,
		AuthorEmail: cfg.Publish.AuthorEmail,
		Username:    cfg.Publish.Username,
		Token:       cfg.Publish.Token,
		Location:    engCfg.Location,
	})

	// Initialize live channel sinks
	var (
		live    ports.FanOut
		closers []io.Closer
		hub     *websocket.Hub
	)
	if cfg.Live.Websocket {
		hub = websocket.NewHub(cfg.Server.CORSOrigins...)
		go hub.Run(ctx)
		live = append(live, hub)
	}
	if len(cfg.Live.KafkaBrokers) > 0 {
		sink, err := kafka.NewSink(kafka.Config{
			Brokers: cfg.Live.KafkaBrokers,
			Topic:   cfg.Live.KafkaTopic,
			Key:     engCfg.Site,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka sink")
		}
		live = append(live, sink)
		closers = append(closers, sink)
		log.Info().Str("topic", cfg.Live.KafkaTopic).Msg("kafka live sink enabled")
	}
	if cfg.Live.MQTTBroker != "" {
		sink, err := mqtt.NewSink(mqtt.Config{
			Broker:   cfg.Live.MQTTBroker,
			ClientID: cfg.Live.MQTTClientID,
			Topic:    cfg.Live.MQTTTopic,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create mqtt sink")
		}
		live = append(live, sink)
		closers = append(closers, sink)
	}

	metrics := observability.NewMetrics()
	hs := health.NewServer()
	healthObserver := grpcAdapter.NewHealthObserver(hs)

	pipeline := ports.NewPipeline(source, eng, store, publisher, live, cfg.Source.Window, cfg.Live.Event)
	scheduler := ports.NewScheduler(pipeline, cfg.Schedule.Interval, cfg.Schedule.RunOnStart, metrics, healthObserver)

	// Configure TLS if certificates are provided
	var tlsCfg *tls.Config
	if cfg.Server.TLSCert != "" {
		tlsCfg, err = tlsconfig.LoadServerTLS(cfg.Server.TLSCert, cfg.Server.TLSKey, cfg.Server.TLSCA)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load TLS config")
		}
		log.Info().Bool("mtls", cfg.Server.TLSCA != "").Msg("TLS enabled")
	} else {
		log.Warn().Msg("server.tls_cert not set, serving without TLS")
	}

	// HTTP read surface
	handler, err := httpapi.NewHandler(store, engCfg.Site, cfg.Live.Event)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse dashboard templates")
	}
	routerOpts := httpapi.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     metrics.Handler(),
		Middleware:  []func(http.Handler) http.Handler{metrics.Middleware},
	}
	if hub != nil {
		routerOpts.Live = hub
	}
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           httpapi.NewRouter(handler, routerOpts),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("HTTP server listening")
		var err error
		if tlsCfg != nil {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to serve HTTP")
		}
	}()

	// gRPC read surface
	grpcServer := grpcAdapter.NewServer(grpcAdapter.NewTankServiceHandler(store), hs, tlsCfg)
	if cfg.Server.GRPCAddr != "" {
		listener, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to listen")
		}
		log.Info().Str("addr", cfg.Server.GRPCAddr).Msg("gRPC server listening")

		go func() {
			if err := grpcServer.Serve(listener); err != nil {
				log.Fatal().Err(err).Msg("failed to serve gRPC")
			}
		}()
	}

	// Start background pipeline
	go scheduler.Start(ctx)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	cancel() // Stop scheduler and hub
	hs.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down HTTP server")
	}
	grpcServer.GracefulStop()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close live sink")
		}
	}

	log.Info().Msg("server stopped")
}

// setupLogger applies the configured level and output format
func setupLogger(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// openSource builds the series source selected by source.driver
func openSource(ctx context.Context, cfg config.Config, loc *time.Location) domain.SeriesSource {
	switch cfg.Source.Driver {
	case config.DriverMySQL, config.DriverSQLite:
		log.Info().Str("driver", cfg.Source.Driver).Str("table", cfg.Source.Table).Msg("connecting to series database")
		src, err := sqlsource.Open(sqlsource.Config{
			Driver:      cfg.Source.Driver,
			DSN:         cfg.Source.DSN,
			Table:       cfg.Source.Table,
			LevelColumn: cfg.Source.LevelColumn,
			TimeColumn:  cfg.Source.TimeColumn,
			Location:    loc,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open series database")
		}
		if cfg.Source.Driver == config.DriverSQLite {
			if err := src.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("failed to prepare SQLite schema")
			}
		}
		return src
	case config.DriverMemory:
		log.Warn().Msg("using empty in-memory series source, every cycle will be skipped")
		return memory.NewSeriesSource()
	default:
		log.Info().Msg("using simulated tank series")
		return mock.NewTankSimulator(1.8, 0.01, 5*time.Minute, loc)
	}
}
