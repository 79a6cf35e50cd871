package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xela07ax/aasp-sandbox/internal/domain"
	"github.com/xela07ax/aasp-sandbox/internal/policy"
	"go.uber.org/zap"
)

// Repository — то, что ядру нужно от хранилища песочницы.
type Repository interface {
	GetAgent(id string) (domain.Agent, bool)
	ListPolicies() []domain.Policy
	RecordEvaluation(action domain.Action, approval *domain.ApprovalRequest)
	ResolveApproval(id string, status domain.ApprovalStatus, decidedBy, reason string, at time.Time) (domain.ApprovalRequest, bool)
}

// Evaluation — ответ пайплайна: зафиксированное действие и результат PDP.
type Evaluation struct {
	Action   domain.Action           `json:"action"`
	Result   domain.EvaluationResult `json:"result"`
	Approval *domain.ApprovalRequest `json:"approval,omitempty"`
}

// Core — единый пайплайн оценки действий агентов (HTTP и gRPC ходят сюда же).
type Core struct {
	store    Repository
	pdp      policy.Decider
	validate *validator.Validate
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewCore(store Repository, pdp policy.Decider, metrics *Metrics, logger *zap.Logger) *Core {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Core{
		store:    store,
		pdp:      pdp,
		validate: NewValidator(),
		metrics:  metrics,
		logger:   logger.Named("core"),
		now:      time.Now,
	}
}

// EvaluateAction прогоняет запрос через PDP и фиксирует результат.
// Неизвестный агент: NotFound без побочных эффектов.
func (c *Core) EvaluateAction(ctx context.Context, req domain.ActionRequest) (*Evaluation, error) {
	// 1. Валидация входа (до любых мутаций)
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	// 2. Агент должен быть в реестре
	agent, ok := c.store.GetAgent(req.AgentID)
	if !ok {
		return nil, domain.NotFoundError("agent not found: %s", req.AgentID)
	}

	// 3. Policy Decision Point на снимке политик
	start := c.now()
	result := c.pdp.Evaluate(req, c.store.ListPolicies())
	elapsed := c.now().Sub(start)

	action := domain.Action{
		ID:         uuid.New().String(),
		AgentID:    agent.ID,
		AgentName:  agent.Name,
		ActionType: req.ActionType,
		Target:     req.Target,
		Params:     req.Params,
		Decision:   result.Decision,
		Reason:     result.Reason,
		Timestamp:  start.UTC(),
		DurationMs: float64(elapsed.Microseconds()) / 1000,
	}
	if action.Params == nil {
		action.Params = map[string]domain.Value{}
	}
	if result.MatchedPolicy != nil {
		action.PolicyID = result.MatchedPolicy.ID
		action.PolicyName = result.MatchedPolicy.Name
	}

	// 4. Human-in-the-loop: заявка создается вместе с действием
	var approval *domain.ApprovalRequest
	if result.Decision == domain.DecisionRequireApproval {
		approval = &domain.ApprovalRequest{
			ID:          uuid.New().String(),
			ActionID:    action.ID,
			Action:      action.Clone(),
			RequestedAt: action.Timestamp,
			Status:      domain.StatusPending,
		}
	}

	c.store.RecordEvaluation(action, approval)
	c.metrics.ObserveEvaluation(action.ActionType, action.Decision, elapsed)

	c.logger.Info("action evaluated",
		zap.String("trace_id", extractTraceID(ctx)),
		zap.String("action_id", action.ID),
		zap.String("agent_id", action.AgentID),
		zap.String("action_type", string(action.ActionType)),
		zap.String("decision", string(action.Decision)),
		zap.String("policy_id", action.PolicyID),
	)

	return &Evaluation{Action: action, Result: result, Approval: approval}, nil
}

// DryRun оценивает запрос без записи и событий. candidates == nil: сохраненные политики,
// иначе (в том числе пустой набор): переданный кандидатный набор. Кандидаты проверяются
// теми же правилами, что и сохраняемые политики, поэтому решение всегда одно из трех.
func (c *Core) DryRun(ctx context.Context, req domain.ActionRequest, candidates *[]domain.Policy) (domain.EvaluationResult, error) {
	if err := c.validateRequest(req); err != nil {
		return domain.EvaluationResult{}, err
	}

	policies := c.store.ListPolicies()
	if candidates != nil {
		if err := domain.ValidatePolicies(*candidates); err != nil {
			return domain.EvaluationResult{}, err
		}
		policies = *candidates
	}
	result := c.pdp.Evaluate(req, policies)

	c.logger.Debug("dry run evaluated",
		zap.String("trace_id", extractTraceID(ctx)),
		zap.Bool("candidates", candidates != nil),
		zap.String("decision", string(result.Decision)),
	)
	return result, nil
}

// ResolveApproval — решение оператора по заявке. Повторный резолв и неизвестный id — NotFound.
func (c *Core) ResolveApproval(ctx context.Context, id string, status domain.ApprovalStatus, decidedBy, reason string) (domain.ApprovalRequest, error) {
	if id == "" {
		return domain.ApprovalRequest{}, domain.ValidationError("approval id is required")
	}
	if status != domain.StatusApproved && status != domain.StatusRejected {
		return domain.ApprovalRequest{}, domain.ValidationError("decision must be %q or %q", domain.StatusApproved, domain.StatusRejected)
	}
	if strings.TrimSpace(decidedBy) == "" {
		return domain.ApprovalRequest{}, domain.ValidationError("decided_by is required")
	}

	resolved, ok := c.store.ResolveApproval(id, status, decidedBy, reason, c.now().UTC())
	if !ok {
		return domain.ApprovalRequest{}, domain.NotFoundError("approval not found or already resolved: %s", id)
	}

	c.metrics.ApprovalsResolved.WithLabelValues(string(status)).Inc()
	c.logger.Info("approval resolved",
		zap.String("trace_id", extractTraceID(ctx)),
		zap.String("approval_id", id),
		zap.String("status", string(status)),
		zap.String("decided_by", decidedBy),
	)
	return resolved, nil
}

func (c *Core) validateRequest(req domain.ActionRequest) error {
	if err := c.validate.Struct(req); err != nil {
		return translateValidation(err)
	}
	return nil
}

// NewValidator — validator с JSON-именами полей в сообщениях.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// translateValidation превращает ошибки validator в доменную ValidationError.
func translateValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.ValidationError("invalid request: %v", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return domain.ValidationError("%s", strings.Join(msgs, "; "))
}
