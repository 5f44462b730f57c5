package main

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/engine/meter"
	"NetFlowLog/internal/engine/protocol"
	"NetFlowLog/internal/logger"
	"NetFlowLog/internal/probe"
	"NetFlowLog/internal/probe/persistent"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const (
	snapshotLen int32 = 1600
	promiscuous       = true
	timeout           = pcap.BlockForever
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Interface to capture packets from.")
	bpf := flag.String("filter", "", "Optional BPF filter applied to the capture.")
	flag.Parse()

	if *iface == "" {
		log.Println("Error: -iface flag is required.")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logr, err := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logr.Info("starting ns-probe", "iface", *iface, "subject", cfg.Probe.Subject, "encoding", cfg.Probe.Encoding)

	// Initialize NATS Publisher
	pub, err := probe.NewPublisher(cfg.Probe, logr)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}

	// Open device for live capture
	handle, err := pcap.OpenLive(*iface, snapshotLen, promiscuous, timeout)
	if err != nil {
		log.Fatalf("Error opening device %s: %v", *iface, err)
	}
	if *bpf != "" {
		if err := handle.SetBPFFilter(*bpf); err != nil {
			log.Fatalf("Invalid BPF filter %q: %v", *bpf, err)
		}
	}

	var recorder *persistent.Worker
	if cfg.Probe.CaptureDir != "" {
		recorder, err = persistent.NewWorker(cfg.Probe.CaptureDir, handle.LinkType(), cfg.Probe.CaptureBuffer, logr)
		if err != nil {
			log.Fatalf("Failed to start raw capture: %v", err)
		}
	}

	idle, active := cfg.Meter.Timeouts()
	m := meter.New(meter.Config{
		IdleTimeout:   idle,
		ActiveTimeout: active,
		Detailed:      cfg.Meter.Detailed,
		MaxDetail:     cfg.Meter.MaxDetail,
	}, pub, logr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		packets := packetSource.Packets()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case packet, ok := <-packets:
				if !ok {
					return
				}
				if recorder != nil {
					recorder.Enqueue(packet)
				}
				info, err := protocol.ParsePacket(packet)
				if err != nil {
					continue
				}
				if err := m.Process(info); err != nil {
					logr.Error("failed to publish flow", "error", err)
				}
			case now := <-ticker.C:
				if err := m.Expire(now); err != nil {
					logr.Error("failed to publish expired flows", "error", err)
				}
			}
		}
	}()

	// Wait for a shutdown signal
	select {
	case <-sigChan:
		logr.Info("shutdown signal received")
	case <-done:
		logr.Info("capture ended")
	}

	handle.Close()
	<-done
	if err := m.Flush(); err != nil {
		logr.Error("failed to publish flows on shutdown", "error", err)
	}
	pub.Close()
	if recorder != nil {
		if err := recorder.Stop(); err != nil {
			logr.Warn("closing raw capture failed", "error", err)
		}
	}
	logr.Info("shutdown complete")
}
