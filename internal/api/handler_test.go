package api

import (
	"NetFlowLog/internal/flowlog"
	"NetFlowLog/internal/logger"
	"NetFlowLog/internal/model"
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleBody = `{"timestamp":"2024-01-01T00:00:00Z","flow_id":"f1","src_ip":"10.0.0.1","dst_ip":"10.0.0.2",` +
	`"src_port":443,"dst_port":51000,"protocol":"TCP","packets":10,"bytes":1500,"duration":1.23,` +
	`"checksum_errors":0,"dropped_packets":0,"retransmissions":1,"flags":["SYN","ACK"],` +
	`"packet_sizes":null,"inter_arrivals":null}`

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/flows", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAppendFlow_PersistsRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.jsonl")
	router := NewRouter(flowlog.NewWriter(path), logger.Discard(), Options{})

	resp := post(t, router, exampleBody)
	require.Equal(t, http.StatusCreated, resp.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "f1", body["flow_id"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSuffix(data, []byte("\n")), []byte("\n"))
	require.Len(t, lines, 1)
	assert.JSONEq(t, exampleBody, string(lines[0]))
}

func TestAppendFlow_BadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.jsonl")
	router := NewRouter(flowlog.NewWriter(path), logger.Discard(), Options{})

	resp := post(t, router, `{"src_port": 70000}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = post(t, router, `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "nothing may be written for rejected requests")
}

func TestAppendFlow_TooLarge(t *testing.T) {
	router := NewRouter(flowlog.NewWriter(filepath.Join(t.TempDir(), "f.jsonl")), logger.Discard(), Options{})
	resp := post(t, router, `{"flow_id":"`+strings.Repeat("a", maxBodyBytes)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}

func TestAppendFlow_PersistenceFailure(t *testing.T) {
	router := NewRouter(flowlog.NewWriter(t.TempDir()), logger.Discard(), Options{})
	resp := post(t, router, exampleBody)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

type errWriter struct{}

func (errWriter) Append(*model.FlowRecord) error { return errors.New("nats: connection closed") }

func TestAppendFlow_UpstreamFailure(t *testing.T) {
	router := NewRouter(errWriter{}, logger.Discard(), Options{})
	resp := post(t, router, exampleBody)
	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestAppendFlow_RateLimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flows.jsonl")
	router := NewRouter(flowlog.NewWriter(path), logger.Discard(), Options{RateLimit: 0.001, Burst: 1})

	assert.Equal(t, http.StatusCreated, post(t, router, exampleBody).Code)
	assert.Equal(t, http.StatusTooManyRequests, post(t, router, exampleBody).Code)
}

func TestRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("flowlog_appends_total 0\n"))
	})
	router := NewRouter(errWriter{}, logger.Discard(), Options{Metrics: metrics})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "flowlog_appends_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/flows", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
