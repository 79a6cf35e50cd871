package memory

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/events"
	"go.uber.org/zap/zaptest"
)

var seedTime = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(eventType string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func newTestStore(t *testing.T) (*Store, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	return NewStore(DefaultSeed(seedTime), pub, zaptest.NewLogger(t)), pub
}

func newAction(id string, decision domain.Decision, ts time.Time) domain.Action {
	return domain.Action{
		ID:         id,
		AgentID:    "invoice-bot",
		AgentName:  "Invoice Processor",
		ActionType: domain.ActionAPICall,
		Target:     "https://api.stripe.com/v1/charges",
		Params:     map[string]domain.Value{"amount": domain.Number(15000)},
		Decision:   decision,
		Reason:     "test",
		Timestamp:  ts,
	}
}

func newApproval(id string, action domain.Action) *domain.ApprovalRequest {
	return &domain.ApprovalRequest{
		ID:          id,
		ActionID:    action.ID,
		Action:      action,
		RequestedAt: action.Timestamp,
		Status:      domain.StatusPending,
	}
}

func TestDefaultSeed_IsValid(t *testing.T) {
	t.Parallel()

	seed := DefaultSeed(seedTime)
	if err := seed.Validate(); err != nil {
		t.Fatalf("default seed invalid: %v", err)
	}
	if len(seed.Agents) != 5 || len(seed.Policies) != 5 {
		t.Fatalf("seed has %d agents and %d policies, want 5 and 5", len(seed.Agents), len(seed.Policies))
	}
}

func TestStore_PolicyCRUD(t *testing.T) {
	t.Parallel()

	s, pub := newTestStore(t)

	created := s.CreatePolicy(domain.Policy{
		ID:      "custom",
		Name:    "Custom",
		Enabled: true,
		Rules:   []domain.PolicyRule{{ID: "r-1", Effect: domain.DecisionBlock}},
	})
	if created.ID != "custom" {
		t.Fatalf("created id = %q", created.ID)
	}

	got, ok := s.GetPolicy("custom")
	if !ok || !reflect.DeepEqual(got, created) {
		t.Fatalf("GetPolicy = %+v, %v; want %+v", got, ok, created)
	}

	list := s.ListPolicies()
	if last := list[len(list)-1]; last.ID != "custom" {
		t.Fatalf("new policy should be appended, last = %q", last.ID)
	}

	name := "Renamed"
	updated, ok := s.UpdatePolicy("custom", domain.PolicyPatch{Name: &name})
	if !ok || updated.Name != "Renamed" || len(updated.Rules) != 1 {
		t.Fatalf("UpdatePolicy = %+v, %v", updated, ok)
	}

	toggled, ok := s.TogglePolicy("custom")
	if !ok || toggled.Enabled {
		t.Fatalf("TogglePolicy should disable, got %+v", toggled)
	}

	if !s.DeletePolicy("custom") {
		t.Fatal("DeletePolicy returned false")
	}
	if _, ok := s.GetPolicy("custom"); ok {
		t.Fatal("policy still present after delete")
	}

	want := []string{events.PolicyCreated, events.PolicyUpdated, events.PolicyToggled, events.PolicyDeleted}
	if got := pub.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestStore_MissingPolicyIsNotAnError(t *testing.T) {
	t.Parallel()

	s, pub := newTestStore(t)

	if _, ok := s.GetPolicy("nope"); ok {
		t.Error("GetPolicy found missing policy")
	}
	if _, ok := s.UpdatePolicy("nope", domain.PolicyPatch{}); ok {
		t.Error("UpdatePolicy found missing policy")
	}
	if _, ok := s.TogglePolicy("nope"); ok {
		t.Error("TogglePolicy found missing policy")
	}
	if s.DeletePolicy("nope") {
		t.Error("DeletePolicy found missing policy")
	}
	if n := len(pub.Types()); n != 0 {
		t.Errorf("missing policy operations published %d events", n)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)

	p, _ := s.GetPolicy("payment-controls")
	p.Rules[0].Effect = domain.DecisionBlock
	p.Name = "mutated"

	again, _ := s.GetPolicy("payment-controls")
	if again.Name != "Payment Controls" || again.Rules[0].Effect != domain.DecisionRequireApproval {
		t.Fatalf("store state leaked through returned copy: %+v", again)
	}
}

func TestStore_ListActionsNewestFirstWithFilters(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	base := time.Now()

	s.RecordEvaluation(newAction("a1", domain.DecisionAllow, base), nil)
	s.RecordEvaluation(newAction("a2", domain.DecisionBlock, base.Add(time.Second)), nil)
	other := newAction("a3", domain.DecisionAllow, base.Add(2*time.Second))
	other.AgentID = "data-analyst"
	s.RecordEvaluation(other, nil)

	tests := []struct {
		name   string
		limit  int
		filter domain.ActionFilter
		want   []string
	}{
		{name: "all", limit: 50, want: []string{"a3", "a2", "a1"}},
		{name: "limit", limit: 2, want: []string{"a3", "a2"}},
		{name: "agent", limit: 50, filter: domain.ActionFilter{AgentID: "invoice-bot"}, want: []string{"a2", "a1"}},
		{name: "decision", limit: 50, filter: domain.ActionFilter{Decision: domain.DecisionAllow}, want: []string{"a3", "a1"}},
		{name: "no match", limit: 50, filter: domain.ActionFilter{AgentID: "ghost"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, a := range s.ListActions(tt.limit, tt.filter) {
				got = append(got, a.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStore_RecordEvaluationPublishesActionThenApproval(t *testing.T) {
	t.Parallel()

	s, pub := newTestStore(t)
	action := newAction("a1", domain.DecisionRequireApproval, time.Now())
	s.RecordEvaluation(action, newApproval("ap1", action))

	want := []string{events.ActionCreated, events.ApprovalCreated}
	if got := pub.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	pendingList := s.ListApprovals(domain.StatusPending)
	if len(pendingList) != 1 || pendingList[0].ActionID != "a1" {
		t.Fatalf("pending approvals = %+v", pendingList)
	}
}

func TestStore_ListsFollowAppendOrderNotTimestamps(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	base := time.Now()

	// Оценка, начатая раньше, записана позже
	late := newAction("started-later", domain.DecisionRequireApproval, base.Add(time.Second))
	early := newAction("started-earlier", domain.DecisionRequireApproval, base)
	s.RecordEvaluation(late, newApproval("ap-late", late))
	s.RecordEvaluation(early, newApproval("ap-early", early))

	actions := s.ListActions(1, domain.ActionFilter{})
	if len(actions) != 1 || actions[0].ID != "started-earlier" {
		t.Fatalf("most recent action = %+v, want the last recorded one", actions)
	}

	approvals := s.ListApprovals("")
	if len(approvals) != 2 || approvals[0].ID != "ap-early" || approvals[1].ID != "ap-late" {
		t.Fatalf("approvals order = %+v", approvals)
	}
}

// gatedPublisher задерживает публикацию события hold до release.
type gatedPublisher struct {
	recordingPublisher
	hold    string
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (p *gatedPublisher) Publish(eventType string, data interface{}) {
	if eventType == p.hold {
		p.once.Do(func() {
			close(p.reached)
			<-p.release
		})
	}
	p.recordingPublisher.Publish(eventType, data)
}

func TestStore_EventsFollowMutationOrder(t *testing.T) {
	t.Parallel()

	pub := &gatedPublisher{
		hold:    events.ActionCreated,
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewStore(DefaultSeed(seedTime), pub, zaptest.NewLogger(t))

	action := newAction("a1", domain.DecisionRequireApproval, time.Now())
	recorded := make(chan struct{})
	go func() {
		defer close(recorded)
		s.RecordEvaluation(action, newApproval("ap1", action))
	}()
	<-pub.reached

	// Заявка уже в агрегате, но ее события еще не ушли подписчикам
	resolved := make(chan bool, 1)
	go func() {
		_, ok := s.ResolveApproval("ap1", domain.StatusApproved, "alice", "", time.Now())
		resolved <- ok
	}()

	select {
	case <-resolved:
		t.Fatal("resolve finished before events of the previous mutation were published")
	case <-time.After(50 * time.Millisecond):
	}
	close(pub.release)

	<-recorded
	if ok := <-resolved; !ok {
		t.Fatal("resolve failed")
	}

	want := []string{events.ActionCreated, events.ApprovalCreated, events.ApprovalResolved}
	if got := pub.Types(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestStore_ResolveApprovalCascadesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		status       domain.ApprovalStatus
		reason       string
		wantDecision domain.Decision
		wantReason   string
	}{
		{
			name:         "approved with default reason",
			status:       domain.StatusApproved,
			wantDecision: domain.DecisionAllow,
			wantReason:   "approved by Demo User",
		},
		{
			name:         "rejected with explicit reason",
			status:       domain.StatusRejected,
			reason:       "too risky",
			wantDecision: domain.DecisionBlock,
			wantReason:   "too risky",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, pub := newTestStore(t)
			action := newAction("a1", domain.DecisionRequireApproval, time.Now())
			s.RecordEvaluation(action, newApproval("ap1", action))

			decidedAt := time.Now()
			resolved, ok := s.ResolveApproval("ap1", tt.status, "Demo User", tt.reason, decidedAt)
			if !ok {
				t.Fatal("ResolveApproval returned false for pending approval")
			}
			if resolved.Status != tt.status || resolved.DecidedBy != "Demo User" || resolved.DecidedAt == nil {
				t.Fatalf("resolved = %+v", resolved)
			}
			if resolved.Action.Decision != tt.wantDecision {
				t.Errorf("embedded action decision = %q, want %q", resolved.Action.Decision, tt.wantDecision)
			}

			got, _ := s.GetAction("a1")
			if got.Decision != tt.wantDecision || got.Reason != tt.wantReason {
				t.Fatalf("action = %q/%q, want %q/%q", got.Decision, got.Reason, tt.wantDecision, tt.wantReason)
			}

			// Повторный резолв не меняет ничего
			before := len(pub.Types())
			if _, ok := s.ResolveApproval("ap1", domain.StatusRejected, "Someone", "", time.Now()); ok {
				t.Fatal("second resolve should fail")
			}
			if len(pub.Types()) != before {
				t.Fatal("second resolve published an event")
			}
			after, _ := s.GetApproval("ap1")
			if after.Status != tt.status || after.DecidedBy != "Demo User" {
				t.Fatalf("approval mutated by second resolve: %+v", after)
			}
		})
	}
}

func TestStore_ResolveUnknownApproval(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, ok := s.ResolveApproval("missing", domain.StatusApproved, "x", "", time.Now()); ok {
		t.Fatal("unknown approval resolved")
	}
}

func TestStore_ConcurrentResolveHasSingleWinner(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	action := newAction("a1", domain.DecisionRequireApproval, time.Now())
	s.RecordEvaluation(action, newApproval("ap1", action))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := domain.StatusApproved
			if i%2 == 1 {
				status = domain.StatusRejected
			}
			if _, ok := s.ResolveApproval("ap1", status, "racer", "", time.Now()); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want 1", wins)
	}
}

func TestStore_StatsCountsDecisionsAndLast24h(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	now := time.Now()

	s.RecordEvaluation(newAction("old", domain.DecisionAllow, now.Add(-48*time.Hour)), nil)
	s.RecordEvaluation(newAction("a2", domain.DecisionBlock, now.Add(-time.Hour)), nil)
	pendingAction := newAction("a3", domain.DecisionRequireApproval, now)
	s.RecordEvaluation(pendingAction, newApproval("ap3", pendingAction))

	stats := s.Stats(now)
	if stats.TotalActions != 3 || stats.ActionsLast24h != 2 {
		t.Errorf("total/24h = %d/%d, want 3/2", stats.TotalActions, stats.ActionsLast24h)
	}
	if stats.Allowed != 1 || stats.Blocked != 1 || stats.PendingApprovals != 1 {
		t.Errorf("allowed/blocked/pending = %d/%d/%d", stats.Allowed, stats.Blocked, stats.PendingApprovals)
	}
	if stats.ActivePolicies != 4 {
		t.Errorf("active policies = %d, want 4", stats.ActivePolicies)
	}
	// pc-1, pc-2 (api_call); rl-1 выключен
	if stats.PolicyCoverage[domain.ActionAPICall] != 2 || stats.PolicyCoverage[domain.ActionExternal] != 1 {
		t.Errorf("coverage = %v", stats.PolicyCoverage)
	}
}

func TestStore_ResetRestoresIdenticalSeed(t *testing.T) {
	t.Parallel()

	s, pub := newTestStore(t)
	initial := s.ListPolicies()

	action := newAction("a1", domain.DecisionRequireApproval, time.Now())
	s.RecordEvaluation(action, newApproval("ap1", action))
	s.TogglePolicy("rate-limiting")
	s.DeletePolicy("payment-controls")

	s.Reset()
	first := s.ListPolicies()
	s.Reset()
	second := s.ListPolicies()

	if !reflect.DeepEqual(initial, first) || !reflect.DeepEqual(first, second) {
		t.Fatal("reset did not restore identical policies")
	}
	if len(s.ListActions(0, domain.ActionFilter{})) != 0 || len(s.ListApprovals("")) != 0 {
		t.Fatal("reset left actions or approvals behind")
	}
	if _, ok := s.GetAction("a1"); ok {
		t.Fatal("action index survived reset")
	}

	types := pub.Types()
	if types[len(types)-1] != events.Reset {
		t.Fatalf("last event = %q, want %q", types[len(types)-1], events.Reset)
	}
}

func TestStore_Agents(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	agent, ok := s.GetAgent("invoice-bot")
	if !ok || agent.Name != "Invoice Processor" {
		t.Fatalf("GetAgent = %+v, %v", agent, ok)
	}
	if _, ok := s.GetAgent("ghost"); ok {
		t.Fatal("unknown agent found")
	}
	if n := len(s.Agents()); n != 5 {
		t.Fatalf("agents = %d, want 5", n)
	}
}

func TestLoadSeedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	content := `
agents:
  - id: bot
    name: Bot
policies:
  - id: guard
    name: Guard
    enabled: true
    rules:
      - id: g-1
        action_type: api_call
        target_pattern: ".*internal.*"
        conditions:
          - field: amount
            operator: gte
            value: 10
        effect: block
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	seed, err := LoadSeedFile(path, seedTime)
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(seed.Policies) != 1 || !seed.Policies[0].CreatedAt.Equal(seedTime) {
		t.Fatalf("policies = %+v", seed.Policies)
	}
	cond := seed.Policies[0].Rules[0].Conditions[0]
	if n, ok := cond.Value.AsNumber(); !ok || n != 10 {
		t.Fatalf("condition value = %v (%v)", cond.Value, cond.Value.Kind())
	}
}

func TestLoadSeedFile_RejectsUnknownEffect(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := "policies:\n  - id: p\n    rules:\n      - id: r\n        effect: explode\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSeedFile(path, seedTime); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadSeedFile_RejectsNonScalarConditionValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
	}{
		{"null", "null"},
		{"missing", ""},
		{"object", "{a: 1}"},
		{"list", "[1, 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cond := "          - field: amount\n            operator: eq\n"
			if tt.value != "" {
				cond += "            value: " + tt.value + "\n"
			}
			content := "policies:\n  - id: p\n    rules:\n      - id: r\n        effect: block\n        conditions:\n" + cond

			path := filepath.Join(t.TempDir(), "seed.yaml")
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadSeedFile(path, seedTime)
			if err == nil || !strings.Contains(err.Error(), "conditions[0].value") {
				t.Fatalf("err = %v, want condition value error", err)
			}
		})
	}
}
