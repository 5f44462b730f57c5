package main

import (
	"NetFlowLog/internal/config"
	"NetFlowLog/internal/logger"
	"NetFlowLog/internal/model"
	"NetFlowLog/internal/probe"
	"bytes"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Sends one sample flow record to a running ns-flowlogd, either through the HTTP
// ingest API or over NATS, so the whole persistence chain can be checked by hand.
func main() {
	mode := flag.String("mode", "api", "Delivery mode: 'api' to POST over HTTP, 'nats' to publish on the probe subject.")
	apiURL := flag.String("url", "http://localhost:8090/api/v1/flows", "Ingest endpoint for api mode.")
	configPath := flag.String("config", "configs/config.yaml", "Configuration file, read for NATS settings in nats mode.")
	flowID := flag.String("id", "manual-test-flow", "flow_id of the sample record.")
	flag.Parse()

	record := &model.FlowRecord{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		FlowID:      *flowID,
		SrcIP:       "192.168.1.10",
		DstIP:       "192.168.1.20",
		SrcPort:     12345,
		DstPort:     80,
		Protocol:    "TCP",
		Packets:     10,
		Bytes:       1500,
		Duration:    1.5,
		Flags:       []string{"SYN", "ACK", "FIN"},
		PacketSizes: []uint32{64, 128},
	}

	switch *mode {
	case "api":
		postViaAPI(*apiURL, record)
	case "nats":
		publishViaNATS(*configPath, record)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'nats'.", *mode)
	}
}

func postViaAPI(url string, record *model.FlowRecord) {
	body, err := json.Marshal(record)
	if err != nil {
		log.Fatalf("Error marshalling record: %v", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("API returned status %d\nResponse: %s", resp.StatusCode, string(respBody))
	}
	log.Printf("Record accepted: %s", bytes.TrimSpace(respBody))
}

func publishViaNATS(configPath string, record *model.FlowRecord) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logr, err := logger.New(os.Stderr, cfg.Logging.Level, "text")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	pub, err := probe.NewPublisher(cfg.Probe, logr)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	if err := pub.Append(record); err != nil {
		log.Fatalf("Failed to publish record: %v", err)
	}
	log.Printf("Published %s to %s (%s)", record.FlowID, cfg.Probe.Subject, cfg.Probe.Encoding)
}
