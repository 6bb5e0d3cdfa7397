package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/no-abramov/todoapi/pkg/api"
	"github.com/no-abramov/todoapi/pkg/auth"
	"github.com/no-abramov/todoapi/pkg/config"
	"github.com/no-abramov/todoapi/pkg/logship"
)

func main() {
	var (
		configPath string
		flags      config.Flags
	)

	flag.StringVar(&configPath, "config", "cmd/server/config.toml", "Path to TOML config file, empty for defaults.")
	flag.StringVar(&flags.HTTPAddr, "http", "", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&flags.MetricsAddr, "metrics", "", "Metrics server address in the form 'host:port'.")
	flag.StringVar(&flags.LogLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&flags.StorageDriver, "storage", "", "Storage driver: memory, postgres, sqlite.")
	flag.BoolVar(&flags.Dev, "dev", false, "Run the server in development mode with in-memory DB.")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[server] %v", err)
	}
	cfg.Override(flags)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[server] %v", err)
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.Debugf("[server] config: %s", cfg)

	tokens, err := auth.NewTokenService(cfg.Auth.Token)
	if err != nil {
		log.Fatalf("[server] failed to create token service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := openStores(ctx, &cfg)
	cancel()
	if err != nil {
		log.Fatalf("[server] %v", err)
	}

	var publisher *logship.Publisher
	if cfg.Kafka.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := logship.CreateTopic(ctx, cfg.Kafka.Brokers[0], cfg.Kafka.Topic); err != nil {
			log.Warnf("[server] failed to create Kafka topic: %v", err)
		}
		cancel()
		w := logship.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.BatchSize)
		publisher = logship.NewPublisher(cfg.ServiceName, w, 0)
	} else {
		log.Warnf("[server] kafka was not configured, logs will not be sent to Kafka")
	}

	opts := api.Options{
		ServiceName: cfg.ServiceName,
		Todos:       st.todos,
		Logs:        st.logs,
		Tokens:      tokens,
		Verifier: auth.StaticVerifier{
			Username: cfg.Auth.Username,
			Password: cfg.Auth.Password,
		},
		ExcludePrefixes:    cfg.RequestLog.ExcludePrefixes,
		ProtectRequestLogs: cfg.Auth.ProtectRequestLogs,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
	}
	if publisher != nil {
		opts.Publisher = publisher
	}

	todoAPI, err := api.New(opts)
	if err != nil {
		log.Fatalf("[server] failed to create API: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           todoAPI.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("[server] starting on port %v", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[server] failed to start: %v", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", todoAPI.MetricsHandler())
		metricsSrv = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Infof("[server] serving metrics on %v", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("[server] metrics server failed: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[server] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[server] HTTP server shut down gracefully")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("[server] metrics server shutdown error: %v", err)
		}
	}

	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Errorf("[server] failed to close Kafka writer: %v", err)
		}
	}

	st.close(shutdownCtx)
	log.Info("[server] disconnected from DB")
}
