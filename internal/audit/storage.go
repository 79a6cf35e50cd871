package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogStorage — хранилище по умолчанию: журнал уходит в структурированный лог.
type LogStorage struct {
	logger *zap.Logger
}

func NewLogStorage(logger *zap.Logger) *LogStorage {
	return &LogStorage{logger: logger.Named("audit")}
}

func (s *LogStorage) WriteBatch(_ context.Context, events []AuditEvent) error {
	for _, e := range events {
		s.logger.Info("audit",
			zap.String("kind", e.Kind),
			zap.String("action_id", e.ActionID),
			zap.String("approval_id", e.ApprovalID),
			zap.String("agent_id", e.AgentID),
			zap.String("action_type", string(e.ActionType)),
			zap.String("target", e.Target),
			zap.String("decision", string(e.Decision)),
			zap.String("policy_id", e.PolicyID),
			zap.String("decided_by", e.DecidedBy),
			zap.Time("timestamp", e.Timestamp),
		)
	}
	return nil
}
