package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/lead-platform-stepup/internal/core/domain"
	"github.com/arklim/lead-platform-stepup/internal/core/port"
	"github.com/arklim/lead-platform-stepup/internal/infra/logger"
)

// LoggingNotifier records code dispatch for observability without delivering
// anything. It stands in for the real email/SMS transport in environments
// where none is wired.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a notifier backed by structured logging.
func NewLoggingNotifier(log *zap.Logger) port.Notifier {
	if log == nil {
		return noopNotifier{}
	}
	return &LoggingNotifier{logger: log}
}

// Send logs the dispatch with a masked destination. The code value itself is
// never written to the log.
func (n *LoggingNotifier) Send(_ context.Context, destination string, purpose domain.CodePurpose, code string) error {
	if n == nil || n.logger == nil {
		return nil
	}

	n.logger.Info("dispatch one-time code",
		zap.String("destination", logger.MaskEmail(destination)),
		zap.String("purpose", string(purpose)),
		zap.Int("code_length", len(code)),
	)

	return nil
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, string, domain.CodePurpose, string) error {
	return nil
}
