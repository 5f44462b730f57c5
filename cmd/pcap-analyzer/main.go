package main

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/engine/meter"
	"NetFlowLog/internal/flowlog"
	"NetFlowLog/internal/logger"
	"NetFlowLog/internal/model"
	"NetFlowLog/pkg/pcap"
	"flag"
	"fmt"
	"log"
	"os"
)

func main() {
	configPath := flag.String("config", "", "Path to the configuration file. Built-in defaults are used when empty.")
	output := flag.String("o", "", "Flow log path, overriding flowlog.path. Use '-' for stdout.")
	detailed := flag.Bool("detailed", false, "Record packet sizes and inter-arrival times.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <path_to_pcap_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *detailed {
		cfg.Meter.Detailed = true
	}

	logr, err := logger.New(os.Stderr, cfg.Logging.Level, "text")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// 3. Initialize modules
	var out model.Writer
	if *output == "-" {
		out = flowlog.NewSinkWriter(os.Stdout, "stdout")
	} else {
		path := cfg.FlowLog.Path
		if *output != "" {
			path = *output
		}
		mode, err := cfg.FlowLog.Mode()
		if err != nil {
			log.Fatalf("Invalid flow log file mode: %v", err)
		}
		out = flowlog.NewWriter(path, flowlog.WithFileMode(mode), flowlog.WithLogger(logr))
	}

	idle, active := cfg.Meter.Timeouts()
	m := meter.New(meter.Config{
		IdleTimeout:   idle,
		ActiveTimeout: active,
		Detailed:      cfg.Meter.Detailed,
		MaxDetail:     cfg.Meter.MaxDetail,
	}, out, logr)

	reader, err := pcap.Open(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	logr.Info("reading packets", "file", pcapFilePath)

	// 4. Feed every packet to the meter
	packets, failures := 0, 0
	err = reader.ReadPackets(func(info *model.PacketInfo) error {
		packets++
		if err := m.Process(info); err != nil {
			failures++
			logr.Error("failed to persist flow", "error", err)
		}
		return nil
	})
	if err != nil {
		logr.Error("pcap read stopped early", "error", err)
		failures++
	}

	// 5. Emit every flow still open at the end of the capture
	if err := m.Flush(); err != nil {
		failures++
		logr.Error("failed to persist flows on flush", "error", err)
	}

	logr.Info("finished", "packets", packets, "skipped", reader.Skipped(), "failures", failures)
	if failures > 0 {
		os.Exit(1)
	}
}
