package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shiv6146/buzzer-bridge/internal/call"
	"github.com/shiv6146/buzzer-bridge/internal/config"
	"github.com/shiv6146/buzzer-bridge/internal/metrics"
	"github.com/shiv6146/buzzer-bridge/internal/models"
	"github.com/shiv6146/buzzer-bridge/internal/routing"
	"github.com/shiv6146/buzzer-bridge/internal/telephony"
)

const (
	gateway = "+15551110000"
	panel   = "+15552220000"
	tenantA = "+15553330000"
	tenantB = "+15554440000"
)

type recordingNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *recordingNotifier) Dispatch(reason string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
	return true
}

func (n *recordingNotifier) got() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.reasons...)
}

type fakeHistory struct {
	sessions []*models.SessionLog
	err      error
}

func (f *fakeHistory) ListSessions(_ context.Context, _ int) ([]*models.SessionLog, error) {
	return f.sessions, f.err
}

type testServer struct {
	server   *Server
	dialer   *telephony.MockDialer
	manager  *call.Manager
	notifier *recordingNotifier
}

func testConfig() *config.Config {
	return &config.Config{
		GinMode:            gin.TestMode,
		PublicURL:          "https://buzzer.example.com",
		TwilioAuthToken:    "secret-token",
		ValidateSignatures: false,
		GatewayNumber:      gateway,
		PanelNumber:        panel,
		TenantANumber:      tenantA,
		TenantBNumber:      tenantB,
		TenantAName:        "Alex",
		TenantBName:        "Blake",
		ConferenceName:     "Buzzer conference",
		RingAudioURL:       "https://cdn.example.com/ring.mp3",
		HoldPath:           "/hold",
		MetricsEnabled:     true,
		MetricsPath:        "/metrics",
		APIUsername:        "admin",
		APIPassword:        "hunter2",
	}
}

func newTestServer(t *testing.T, cfg *config.Config, history History) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	classifier := routing.NewClassifier(routing.Identities{
		Gateway: cfg.GatewayNumber,
		Panel:   cfg.PanelNumber,
		TenantA: cfg.TenantANumber,
		TenantB: cfg.TenantBNumber,
	})
	dialer := telephony.NewMockDialer()
	manager := call.NewManager(call.Options{
		Conference:   cfg.ConferenceName,
		WebhookURL:   cfg.PublicURL + "/",
		HoldURL:      cfg.PublicURL + cfg.HoldPath,
		RingAudioURL: cfg.RingAudioURL,
		TenantAName:  cfg.TenantAName,
		TenantBName:  cfg.TenantBName,
		SessionTTL:   time.Minute,
		DialTimeout:  time.Second,
	}, classifier, dialer, nil, nil, metrics.New(reg), zap.NewNop())

	notifier := &recordingNotifier{}
	srv := NewServer(cfg, Deps{
		Manager:    manager,
		Classifier: classifier,
		Notifier:   notifier,
		History:    history,
		Gatherer:   reg,
		Logger:     zap.NewNop(),
	})
	return &testServer{server: srv, dialer: dialer, manager: manager, notifier: notifier}
}

func (ts *testServer) post(target string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(target string, user, pass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)
	return w
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhook_BuzzerFlow(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.post("/", url.Values{"CallSid": {"CApanel"}, "From": {panel}, "To": {gateway}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, w.Body.String(), `startConferenceOnEnter="false"`)
	assert.Contains(t, w.Body.String(), "Buzzer conference")
	require.Len(t, ts.dialer.Placed(), 2)

	callback, err := url.Parse(ts.dialer.Placed()[0].CallbackURL)
	require.NoError(t, err)
	sessionID := callback.Query().Get("session")
	require.NotEmpty(t, sessionID)

	target := "/?session=" + url.QueryEscape(sessionID)
	w = ts.post(target, url.Values{"CallSid": {ts.dialer.HandleFor(tenantB)}, "From": {gateway}, "To": {tenantB}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `startConferenceOnEnter="true"`)
	assert.Equal(t, []string{ts.dialer.HandleFor(tenantA)}, ts.dialer.Cancelled())

	// A late answer from tenant A is hung up
	w = ts.post(target, url.Values{"CallSid": {ts.dialer.HandleFor(tenantA)}, "From": {gateway}, "To": {tenantA}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Hangup")
	assert.Len(t, ts.dialer.Cancelled(), 1)
}

func TestWebhook_Probe(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.get("/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Response")
	assert.NotContains(t, w.Body.String(), "<Dial")
	assert.Empty(t, ts.dialer.Placed())
}

func TestWebhook_Malformed(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	tests := []struct {
		name string
		form url.Values
	}{
		{"gateway leg without destination", url.Values{"CallSid": {"CA1"}, "From": {gateway}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.post("/", tt.form, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, ts.dialer.Placed())
}

func TestWebhook_GatewayLegToUnregisteredDestination(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	ts.post("/", url.Values{"CallSid": {"CApanel"}, "From": {panel}, "To": {gateway}}, nil)

	w := ts.post("/", url.Values{"CallSid": {"CAx"}, "From": {gateway}, "To": {"+15559999999"}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `startConferenceOnEnter="true"`)
	assert.Equal(t, []string{ts.dialer.HandleFor(tenantA)}, ts.dialer.Cancelled())
}

func TestWebhook_PanelPressWithoutCallSid(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.post("/", url.Values{"From": {panel}, "To": {gateway}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `startConferenceOnEnter="false"`)
	assert.Len(t, ts.dialer.Placed(), 2)
}

func TestWebhook_SessionlessCallbacksJoinOnce(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	a := ts.post("/", url.Values{"CallSid": {"CAa"}, "From": {gateway}, "To": {tenantA}}, nil)
	b := ts.post("/", url.Values{"CallSid": {"CAb"}, "From": {gateway}, "To": {tenantB}}, nil)

	require.Equal(t, http.StatusOK, a.Code)
	require.Equal(t, http.StatusOK, b.Code)
	assert.Contains(t, a.Body.String(), `startConferenceOnEnter="true"`)
	assert.NotContains(t, b.Body.String(), "<Conference")
	assert.Contains(t, b.Body.String(), "<Hangup")
}

func TestWebhook_SelfTestNotifies(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.post("/", url.Values{"CallSid": {"CAself"}, "From": {tenantA}, "To": {gateway}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Hi Alex, all seems to be working!")
	assert.Equal(t, []string{call.NotifySelfTest}, ts.notifier.got())
}

func TestWebhook_UnknownCallerForwarded(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.post("/", url.Values{"CallSid": {"CAx"}, "From": {"+15559990000"}, "To": {gateway}}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), tenantA)
	assert.Empty(t, ts.notifier.got())
}

func TestHold(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)

	w := ts.get("/hold", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://cdn.example.com/ring.mp3")
	assert.Equal(t, []string{call.NotifyHold}, ts.notifier.got())
}

func TestSignatureValidation(t *testing.T) {
	cfg := testConfig()
	cfg.ValidateSignatures = true
	ts := newTestServer(t, cfg, nil)

	form := url.Values{"CallSid": {"CAself"}, "From": {tenantB}, "To": {gateway}}

	w := ts.post("/", form, http.Header{signatureHeader: {"bogus"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = ts.post("/", form, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	sig := sign(cfg.TwilioAuthToken, cfg.PublicURL+"/", form)
	w = ts.post("/", form, http.Header{signatureHeader: {sig}})
	assert.Equal(t, http.StatusOK, w.Code)

	// Health and metrics are not signed
	assert.Equal(t, http.StatusOK, ts.get("/health", "", "").Code)
}

func TestSessionAPI(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	ts.post("/", url.Values{"CallSid": {"CApanel"}, "From": {panel}, "To": {gateway}}, nil)

	assert.Equal(t, http.StatusUnauthorized, ts.get("/api/v1/sessions/active", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.get("/api/v1/sessions/active", "admin", "wrong").Code)

	w := ts.get("/api/v1/sessions/active", "admin", "hunter2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Contains(t, w.Body.String(), `"panel_call_sid":"CApanel"`)

	w = ts.get("/api/v1/sessions", "admin", "hunter2")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSessionAPI_History(t *testing.T) {
	winner := models.RoleTenantB
	history := &fakeHistory{sessions: []*models.SessionLog{{
		ID:             "2b1f8f3e-2c7c-4b7e-9d63-1b6f0f3c9a10",
		ConferenceName: "Buzzer conference",
		PanelCallSID:   "CApanel",
		Winner:         &winner,
		CreatedAt:      time.Now(),
	}}}
	ts := newTestServer(t, testConfig(), history)

	w := ts.get("/api/v1/sessions?limit=10", "admin", "hunter2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"winner":"tenant_b"`)

	assert.Equal(t, http.StatusBadRequest, ts.get("/api/v1/sessions?limit=0", "admin", "hunter2").Code)

	history.err = errors.New("connection refused")
	assert.Equal(t, http.StatusInternalServerError, ts.get("/api/v1/sessions", "admin", "hunter2").Code)
}

func TestSessionAPI_DisabledWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.APIUsername = ""
	ts := newTestServer(t, cfg, nil)

	assert.Equal(t, http.StatusNotFound, ts.get("/api/v1/sessions/active", "admin", "hunter2").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, testConfig(), nil)
	ts.post("/", url.Values{"CallSid": {"CApanel"}, "From": {panel}, "To": {gateway}}, nil)

	w := ts.get("/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active_sessions":1`)

	w = ts.get("/metrics", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `buzzer_webhooks_total{scenario="panel_originated"} 1`)
	assert.Contains(t, w.Body.String(), "buzzer_active_sessions 1")
}
