package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/botpass/botpass/agentmod"
	"github.com/botpass/botpass/agentmod/content"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func testServer(t *testing.T, config Config) *Server {
	config.Logger = slog.Default()
	config.Registerer = prometheus.NewRegistry()
	srv, err := NewServer(config)
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, body string, hdr map[string]string) (int, map[string]any) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %s", rec.Body.String())
	}
	return rec.Code, out
}

func errorCode(resp map[string]any) string {
	e, ok := resp["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := e["code"].(string)
	return code
}

const spamBody = `{"actor_id":"agent1","event_id":"evt1","action":"post","content":"Join now https://a.example https://b.example https://c.example"}`

func TestAdmitEnvelope(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t, Config{})

	status, resp := doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":"agent1","event_id":"evt1","action":"like"}`, nil)
	assert.Equal(http.StatusOK, status)
	assert.Equal(true, resp["ok"])

	status, resp = doRequest(t, srv, "POST", "/v1/admit", spamBody, nil)
	assert.Equal(http.StatusUnprocessableEntity, status)
	assert.Equal(false, resp["ok"])
	assert.Equal("content_warn", errorCode(resp))
	detail := resp["error"].(map[string]any)["detail"].(map[string]any)
	assert.Equal("spam", detail["violation"])
	assert.Equal([]any{"multiple_links"}, detail["reasons"])

	status, resp = doRequest(t, srv, "POST", "/v1/admit", spamBody, nil)
	assert.Equal(http.StatusTooManyRequests, status)
	assert.Equal("content_throttle", errorCode(resp))

	status, resp = doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":"agent1","event_id":"evt1","action":"like"}`, nil)
	assert.Equal(http.StatusTooManyRequests, status)
	assert.Equal("agent_throttled", errorCode(resp))
	assert.Equal("Agent is temporarily throttled", resp["error"].(map[string]any)["message"])
}

func TestAdmitBadRequests(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t, Config{})

	status, resp := doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":"agent1","action":"repost"}`, nil)
	assert.Equal(http.StatusBadRequest, status)
	assert.Equal("invalid_request", errorCode(resp))

	status, resp = doRequest(t, srv, "POST", "/v1/admit", `{"action":"like"}`, nil)
	assert.Equal(http.StatusBadRequest, status)
	assert.Equal("invalid_request", errorCode(resp))

	status, resp = doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":`, nil)
	assert.Equal(http.StatusBadRequest, status)
	assert.Equal("invalid_request", errorCode(resp))

	status, resp = doRequest(t, srv, "POST", "/v1/admit", `["agent1"]`, nil)
	assert.Equal(http.StatusBadRequest, status)
	assert.Equal("invalid_request", errorCode(resp))
	assert.Equal("invalid body", resp["error"].(map[string]any)["message"])

	status, resp = doRequest(t, srv, "PUT", "/v1/events/evt1/context", `{"context":`, nil)
	assert.Equal(http.StatusBadRequest, status)
	assert.Equal("invalid_request", errorCode(resp))

	status, resp = doRequest(t, srv, "GET", "/v1/nothing", "", nil)
	assert.Equal(http.StatusNotFound, status)
	assert.Equal("not_found", errorCode(resp))
}

func TestEventContextEndpoint(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t, Config{})

	status, _ := doRequest(t, srv, "PUT", "/v1/events/evt9/context", `{"context":"AI agent hackathon in Taipei about autonomous agents and tooling"}`, nil)
	assert.Equal(http.StatusOK, status)

	status, resp := doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":"agent1","event_id":"evt9","action":"reply","content":"Get a discount coupon on crypto trading bots today"}`, nil)
	assert.Equal(http.StatusUnprocessableEntity, status)
	assert.Equal("content_warn", errorCode(resp))
	detail := resp["error"].(map[string]any)["detail"].(map[string]any)
	assert.Equal("off_topic", detail["violation"])
}

func TestAdminEndpoints(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t, Config{AdminToken: "sekrit"})
	auth := map[string]string{"Authorization": "Bearer sekrit"}

	status, resp := doRequest(t, srv, "GET", "/admin/risk", "", nil)
	assert.Equal(http.StatusUnauthorized, status)
	assert.Equal("unauthorized", errorCode(resp))
	status, _ = doRequest(t, srv, "GET", "/admin/risk", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(http.StatusUnauthorized, status)

	doRequest(t, srv, "POST", "/v1/admit", spamBody, nil)
	doRequest(t, srv, "POST", "/v1/admit", spamBody, nil)

	status, resp = doRequest(t, srv, "GET", "/admin/risk", "", auth)
	assert.Equal(http.StatusOK, status)
	data := resp["data"].(map[string]any)
	assert.Equal(1.0, data["warnings"])
	assert.Equal(1.0, data["throttles"])
	assert.Equal(0.0, data["suspend_requests"])
	assert.Equal(1.0, data["high_risk_incidents"])

	status, resp = doRequest(t, srv, "GET", "/admin/actors/agent1", "", auth)
	assert.Equal(http.StatusOK, status)
	data = resp["data"].(map[string]any)
	assert.Equal(true, data["throttled"])
	assert.Equal(2.0, data["content"].(map[string]any)["strikes"])
	assert.Len(data["actions"], 2)

	status, resp = doRequest(t, srv, "GET", "/admin/actions?actor_id=agent1&limit=1", "", auth)
	assert.Equal(http.StatusOK, status)
	recs := resp["data"].([]any)
	assert.Len(recs, 1)
	assert.Equal("throttle", recs[0].(map[string]any)["action"])

	status, _ = doRequest(t, srv, "GET", "/admin/actions?limit=0", "", auth)
	assert.Equal(http.StatusBadRequest, status)

	status, _ = doRequest(t, srv, "POST", "/admin/actors/agent1/reset", "", auth)
	assert.Equal(http.StatusOK, status)
	status, _ = doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":"agent1","event_id":"evt1","action":"like"}`, nil)
	assert.Equal(http.StatusOK, status)
}

func TestServerConfig(t *testing.T) {
	assert := assert.New(t)

	p := filepath.Join(t.TempDir(), "rules.json")
	assert.NoError(os.WriteFile(p, []byte(`{"like": {"limit": 1, "window_sec": 60}}`), 0o644))
	env := map[string]string{content.EnvURLCountSpam: "2"}
	srv := testServer(t, Config{RulesFileJSON: p, Getenv: func(k string) string { return env[k] }})
	assert.Equal(1, srv.engine.Config.Rules["like"].Limit)
	assert.Equal(2, srv.engine.Config.Content.Thresholds.URLCountSpam)

	status, _ := doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":"agent1","action":"like"}`, nil)
	assert.Equal(http.StatusOK, status)
	status, resp := doRequest(t, srv, "POST", "/v1/admit", `{"actor_id":"agent1","action":"like"}`, nil)
	assert.Equal(http.StatusTooManyRequests, status)
	assert.Equal("rate_limit_warn", errorCode(resp))

	_, err := NewServer(Config{SharedLedger: true, Registerer: prometheus.NewRegistry()})
	assert.ErrorIs(err, agentmod.ErrInvalidConfig)

	p = filepath.Join(t.TempDir(), "bad.json")
	assert.NoError(os.WriteFile(p, []byte(`{"like": {"limit": 0, "window_sec": 60}}`), 0o644))
	_, err = NewServer(Config{RulesFileJSON: p, Registerer: prometheus.NewRegistry()})
	assert.Error(err)
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t, Config{})
	status, resp := doRequest(t, srv, "GET", "/_health", "", nil)
	assert.Equal(http.StatusOK, status)
	assert.Equal("ok", resp["status"])
}

func TestServerStartShutdown(t *testing.T) {
	assert := assert.New(t)

	// shutdown before start is a no-op
	srv := testServer(t, Config{})
	assert.NoError(srv.Shutdown())

	srv = testServer(t, Config{})
	done := make(chan error, 1)
	go func() {
		done <- srv.Start("127.0.0.1:0")
	}()
	assert.NoError(srv.Shutdown())
	assert.NoError(<-done)
}
