package server

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xela07ax/aasp-sandbox/internal/console/handler"
	"github.com/xela07ax/aasp-sandbox/internal/console/service"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/engine"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"github.com/xela07ax/aasp-sandbox/internal/infra/auth"
	"github.com/xela07ax/aasp-sandbox/internal/policy"
	"github.com/xela07ax/aasp-sandbox/internal/repository/memory"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	srv  *ConsoleServer
	feed *events.Broadcaster
}

func newTestServer(t *testing.T, opts Options, signer *rsa.PrivateKey) testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	reg := prometheus.NewRegistry()
	metrics := engine.NewMetrics(reg)
	feed := events.NewBroadcaster(16, metrics, logger)
	t.Cleanup(feed.Close)

	store := memory.NewStore(memory.DefaultSeed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), feed, logger)
	patterns := policy.NewPatternCache(0, logger)
	core := engine.NewCore(store, policy.NewEvaluator(patterns), metrics, logger)

	h := Handlers{
		Dashboard: handler.NewDashboardHandler(service.NewAgentService(store, patterns, logger), logger),
		Actions:   handler.NewActionHandler(service.NewActionService(store, core, 50), logger),
		Approvals: handler.NewApprovalHandler(service.NewApprovalService(store, core), logger),
		Policies:  handler.NewPolicyHandler(service.NewPolicyService(store, patterns, logger), logger),
		Stream:    handler.NewStreamHandler(feed, 50*time.Millisecond, 16, logger),
	}
	if signer != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
		users := service.NewStaticUsers([]domain.User{
			{ID: "u-admin", Username: "admin", PasswordHash: string(hash), Scopes: []string{domain.ScopeAdmin}},
			{ID: "u-viewer", Username: "viewer", PasswordHash: string(hash), Scopes: []string{domain.ScopeActionsSubmit}},
		})
		h.Auth = handler.NewAuthHandler(service.NewAuthService(users, signer, time.Hour), logger)
		opts.Validator = auth.NewBaseValidator(&signer.PublicKey)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = reg
	}

	return testEnv{srv: NewConsoleServer(opts, h, logger), feed: feed}
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response (%d): %v", rec.Code, err)
	}
	return out
}

type errEnvelope struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

type list[T any] struct {
	Data    []T `json:"data"`
	Total   int `json:"total"`
	Pending int `json:"pending"`
}

var largeCharge = map[string]interface{}{
	"agent_id":    "invoice-bot",
	"action_type": "api_call",
	"target":      "https://api.stripe.com/v1/charges",
	"params":      map[string]interface{}{"amount": 15000},
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{}, nil)

	if rec := do(t, env.srv, http.MethodGet, "/health", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
	do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, "")

	rec := do(t, env.srv, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "aasp_evaluations_total") {
		t.Errorf("metrics = %d, body lacks evaluation counter", rec.Code)
	}
	if rec.Header().Get("X-Trace-ID") == "" {
		t.Error("trace id header missing")
	}
}

func TestApprovalFlow(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{}, nil)

	// 1. Крупный платеж уходит на ручное подтверждение
	rec := do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("evaluate = %d: %s", rec.Code, rec.Body)
	}
	eval := decode[engine.Evaluation](t, rec)
	if eval.Action.Decision != domain.DecisionRequireApproval || eval.Approval == nil {
		t.Fatalf("evaluation = %+v", eval)
	}

	pending := decode[list[domain.ApprovalRequest]](t, do(t, env.srv, http.MethodGet, "/api/v1/approvals?status=pending", nil, ""))
	if pending.Total != 1 || pending.Pending != 1 {
		t.Fatalf("pending approvals = %+v", pending)
	}

	// 2. Решение оператора без decided_by: демо-оператор
	rec = do(t, env.srv, http.MethodPost, "/api/v1/approvals/"+eval.Approval.ID+"/decide",
		map[string]string{"decision": "approved"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("decide = %d: %s", rec.Code, rec.Body)
	}
	resolved := decode[domain.ApprovalRequest](t, rec)
	if resolved.Status != domain.StatusApproved || resolved.DecidedBy != engine.DefaultDecidedBy {
		t.Errorf("resolved = %+v", resolved)
	}

	// 3. Действие в ленте отражает решение
	rec = do(t, env.srv, http.MethodGet, "/api/v1/actions/"+eval.Action.ID, nil, "")
	if got := decode[domain.Action](t, rec); got.Decision != domain.DecisionAllow {
		t.Errorf("action decision = %q, want allow", got.Decision)
	}

	// 4. Повторное решение: 404
	rec = do(t, env.srv, http.MethodPost, "/api/v1/approvals/"+eval.Approval.ID+"/decide",
		map[string]string{"decision": "rejected"}, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second decide = %d, want 404", rec.Code)
	}

	// 5. pending отражает всю очередь, а не отфильтрованный список
	do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, "")
	approved := decode[list[domain.ApprovalRequest]](t, do(t, env.srv, http.MethodGet, "/api/v1/approvals?status=approved", nil, ""))
	if approved.Total != 1 || approved.Pending != 1 {
		t.Errorf("approved list = total %d pending %d, want 1 and 1", approved.Total, approved.Pending)
	}
}

func TestErrorEnvelope(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{}, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"missing fields", http.MethodPost, "/api/v1/actions", map[string]string{"agent_id": "invoice-bot"}, 400, "validation"},
		{"unknown agent", http.MethodPost, "/api/v1/actions", map[string]string{
			"agent_id": "ghost", "action_type": "api_call", "target": "x",
		}, 404, "not_found"},
		{"bad limit", http.MethodGet, "/api/v1/actions?limit=abc", nil, 400, "validation"},
		{"bad decision filter", http.MethodGet, "/api/v1/actions?decision=maybe", nil, 400, "validation"},
		{"bad approval status", http.MethodGet, "/api/v1/approvals?status=archived", nil, 400, "validation"},
		{"unknown policy", http.MethodGet, "/api/v1/policies/nope", nil, 404, "not_found"},
		{"bad decision", http.MethodPost, "/api/v1/approvals/x/decide", map[string]string{"decision": "maybe"}, 400, "validation"},
		{"empty body", http.MethodPost, "/api/v1/policies", nil, 400, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, env.srv, tt.method, tt.path, tt.body, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			if env := decode[errEnvelope](t, rec); env.Error.Kind != tt.kind || env.Error.Message == "" {
				t.Errorf("envelope = %+v", env)
			}
		})
	}
}

func TestPolicyCRUD(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{}, nil)

	rec := do(t, env.srv, http.MethodPost, "/api/v1/policies", map[string]interface{}{
		"name": "No prod deletes",
		"rules": []map[string]interface{}{{
			"action_type":    "db_query",
			"target_pattern": "prod",
			"effect":         "block",
		}},
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body)
	}
	created := decode[domain.Policy](t, rec)
	if !created.Enabled || created.Rules[0].ID == "" {
		t.Errorf("created = %+v", created)
	}

	all := decode[list[domain.Policy]](t, do(t, env.srv, http.MethodGet, "/api/v1/policies", nil, ""))
	if all.Total != 6 || all.Data[5].ID != created.ID {
		t.Errorf("policies total = %d, last = %q", all.Total, all.Data[len(all.Data)-1].ID)
	}

	rec = do(t, env.srv, http.MethodPut, "/api/v1/policies/"+created.ID, map[string]string{"description": "edited"}, "")
	if got := decode[domain.Policy](t, rec); got.Description != "edited" || got.Name != "No prod deletes" {
		t.Errorf("update = %+v", got)
	}

	rec = do(t, env.srv, http.MethodPost, "/api/v1/policies/"+created.ID+"/toggle", nil, "")
	if got := decode[domain.Policy](t, rec); got.Enabled {
		t.Error("toggle should disable the policy")
	}

	if rec := do(t, env.srv, http.MethodDelete, "/api/v1/policies/"+created.ID, nil, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := do(t, env.srv, http.MethodDelete, "/api/v1/policies/"+created.ID, nil, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestDryRunAndStats(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{}, nil)

	rec := do(t, env.srv, http.MethodPost, "/api/v1/policies/evaluate", map[string]interface{}{
		"action": map[string]interface{}{
			"agent_id": "code-assistant", "action_type": "file_access", "target": "/app/.env",
		},
	}, "")
	if got := decode[domain.EvaluationResult](t, rec); got.Decision != domain.DecisionBlock {
		t.Errorf("dry run = %+v", got)
	}

	stats := decode[domain.Stats](t, do(t, env.srv, http.MethodGet, "/api/v1/stats", nil, ""))
	if stats.TotalActions != 0 {
		t.Errorf("dry run must not record actions: %+v", stats)
	}
	if stats.ActivePolicies != 4 || stats.PolicyCoverage[domain.ActionAPICall] != 2 {
		t.Errorf("stats = %+v", stats)
	}

	do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, "")
	if rec := do(t, env.srv, http.MethodPost, "/api/v1/reset", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("reset = %d", rec.Code)
	}
	stats = decode[domain.Stats](t, do(t, env.srv, http.MethodGet, "/api/v1/stats", nil, ""))
	if stats.TotalActions != 0 || stats.PendingApprovals != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}
}

func TestAuthGuards(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa: %v", err)
	}
	env := newTestServer(t, Options{}, key)

	login := func(user string) string {
		rec := do(t, env.srv, http.MethodPost, "/auth/token", map[string]string{"username": user, "password": "s3cret"}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("login %s = %d: %s", user, rec.Code, rec.Body)
		}
		return decode[domain.TokenResponse](t, rec).AccessToken
	}

	if rec := do(t, env.srv, http.MethodPost, "/auth/token", map[string]string{"username": "admin", "password": "wrong"}, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad password = %d, want 401", rec.Code)
	}

	admin, viewer := login("admin"), login("viewer")
	newPolicy := map[string]interface{}{"name": "p", "rules": []interface{}{}}

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"missing scope", viewer, http.StatusForbidden},
		{"admin", admin, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, env.srv, http.MethodPost, "/api/v1/policies", newPolicy, tt.token); rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
		})
	}

	// Чтение открыто
	if rec := do(t, env.srv, http.MethodGet, "/api/v1/policies", nil, ""); rec.Code != http.StatusOK {
		t.Errorf("read without token = %d", rec.Code)
	}

	// decided_by берется из токена
	eval := decode[engine.Evaluation](t, do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, viewer))
	rec := do(t, env.srv, http.MethodPost, "/api/v1/approvals/"+eval.Approval.ID+"/decide",
		map[string]string{"decision": "rejected"}, admin)
	if got := decode[domain.ApprovalRequest](t, rec); got.DecidedBy != "u-admin" {
		t.Errorf("decided_by = %q, want u-admin", got.DecidedBy)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{EvaluateRPS: 0.001, EvaluateBurst: 1}, nil)

	if rec := do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", rec.Code)
	}
	if env := decode[errEnvelope](t, rec); env.Error.Kind != "rate_limited" {
		t.Errorf("kind = %q", env.Error.Kind)
	}
}

func TestStreamSSE(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{}, nil)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/stream")
	if err != nil {
		t.Fatalf("get stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	frames := make(chan events.Event, 16)
	go func() {
		defer close(frames)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var evt events.Event
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt) == nil {
				frames <- evt
			}
		}
	}()

	next := func() events.Event {
		t.Helper()
		select {
		case evt, ok := <-frames:
			if !ok {
				t.Fatal("stream closed")
			}
			return evt
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for frame")
		}
		return events.Event{}
	}

	if evt := next(); evt.Type != events.Connected {
		t.Fatalf("first frame = %q, want connected", evt.Type)
	}

	do(t, env.srv, http.MethodPost, "/api/v1/reset", nil, "")

	seen := map[string]bool{}
	for len(seen) < 2 {
		evt := next()
		if evt.Type == events.Reset || evt.Type == events.Heartbeat {
			seen[evt.Type] = true
		}
	}
}

func TestStreamWebSocket(t *testing.T) {
	t.Parallel()
	env := newTestServer(t, Options{}, nil)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt events.Event
	if err := conn.ReadJSON(&evt); err != nil || evt.Type != events.Connected {
		t.Fatalf("first frame = %+v, %v", evt, err)
	}

	do(t, env.srv, http.MethodPost, "/api/v1/actions", largeCharge, "")

	got := map[string]bool{}
	for !got[events.ActionCreated] || !got[events.ApprovalCreated] {
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("read: %v", err)
		}
		got[evt.Type] = true
	}
}
