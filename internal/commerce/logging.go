package commerce

import (
	"context"

	"go.uber.org/zap"

	"github.com/zaytech/snapstore/pkg/ledger"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing commerce operation.
type OperationLog struct {
	Operation string
	EntityID  string
	ClientID  string
	Amount    ledger.AmountCents
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every
// state-changing operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// ZapOperationLogger forwards operation logs to a zap logger.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps a zap logger as an OperationLogger.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	return &ZapOperationLogger{logger: logger}
}

// LogOperation writes one structured line per operation.
func (zapLogger *ZapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("entity_id", entry.EntityID),
		zap.String("client_id", entry.ClientID),
		zap.Int64("amount_cents", entry.Amount.Int64()),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		zapLogger.logger.Warn("commerce operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	zapLogger.logger.Info("commerce operation", fields...)
}
