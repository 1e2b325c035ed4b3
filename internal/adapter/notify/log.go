package notify

import (
	"context"

	"github.com/dimencity996-star/lighearth-pro-dev/internal/core/domain"

	"go.uber.org/zap"
)

// LogNotifier writes alerts to the log. It stands in for whatever outbound
// delivery channel a deployment wires up; the core only decides when and
// what to send.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With(zap.String("component", "notifier")),
	}
}

func (n *LogNotifier) Send(_ context.Context, recipientId string, notification domain.Notification) error {
	n.logger.Info("notification",
		zap.String("recipient", recipientId),
		zap.String("device", notification.DeviceId),
		zap.String("kind", notification.Kind),
		zap.String("message", notification.Message))
	return nil
}
