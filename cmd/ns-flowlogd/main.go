package main

import (
	"NetFlowLog/internal/api"
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/factory"
	"NetFlowLog/internal/logger"
	"NetFlowLog/internal/probe"
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.Probe.Enabled && !cfg.API.Enabled {
		log.Fatalf("Neither probe nor api ingestion is enabled in %s", *configPath)
	}

	logr, err := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logr.Info("starting ns-flowlogd", "config", *configPath)

	// 2. Build the persistence chain
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	chain, err := factory.Create(cfg, reg, logr)
	if err != nil {
		log.Fatalf("Failed to create flow log writer: %v", err)
	}

	// 3. Start ingestion
	var sub *probe.Subscriber
	if cfg.Probe.Enabled {
		sub, err = probe.NewSubscriber(cfg.Probe, chain.Writer, logr)
		if err != nil {
			log.Fatalf("Failed to create subscriber: %v", err)
		}
		if err := sub.Start(); err != nil {
			log.Fatalf("Subscriber failed to start: %v", err)
		}
	}

	var server *http.Server
	if cfg.API.Enabled {
		router := api.NewRouter(chain.Writer, logr, api.Options{
			RateLimit: cfg.API.RateLimit,
			Burst:     cfg.API.Burst,
			Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		})
		server = &http.Server{
			Addr:              cfg.API.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logr.Info("API server starting", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Could not listen on %s: %v", server.Addr, err)
			}
		}()
	}

	// 4. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logr.Info("shutdown signal received")

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(ctx); err != nil {
			logr.Error("API server forced to shutdown", "error", err)
		}
		cancel()
	}
	if sub != nil {
		sub.Close()
		received, failed := sub.Stats()
		logr.Info("subscriber stopped", "received", received, "failed", failed)
	}
	if err := chain.Close(); err != nil {
		logr.Warn("closing mirrors failed", "error", err)
	}
	logr.Info("shutdown complete")
}
