package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/opsdesk/case-triage/internal/config"
	"github.com/opsdesk/case-triage/internal/events"
)

// NotificationService forwards case events to the external notification
// collaborator. Delivery never blocks or fails the originating mutation.
type NotificationService struct {
	dispatcher events.Dispatcher
	notifier   Notifier
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service. notifier may be nil, in
// which case events are only logged.
func NewNotificationService(dispatcher events.Dispatcher, notifier Notifier, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to case events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventCaseCreated, n.handleEvent)
	n.dispatcher.Subscribe(events.EventCaseStatusChanged, n.handleEvent)
	n.dispatcher.Subscribe(events.EventCaseAssigned, n.handleEvent)
	n.dispatcher.Subscribe(events.EventCaseMessageAdded, n.handleEvent)
	n.dispatcher.Subscribe(events.EventCaseEscalated, n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("case event",
		zap.String("type", string(event.Type)),
		zap.String("case_id", event.CaseID),
		zap.Any("payload", event.Payload))

	if n.notifier != nil && event.Actor.UserID != nil {
		userID := *event.Actor.UserID
		eventType := string(event.Type)
		go func() {
			if err := n.notifier.Notify(context.Background(), userID, eventType); err != nil {
				n.logger.Debug("notification delivery failed",
					zap.String("user_id", userID),
					zap.Error(err))
			}
		}()
	}

	n.sendWebhookStub(event)
	return nil
}

func (n *NotificationService) sendWebhookStub(event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("case_id", event.CaseID),
		zap.String("event_type", string(event.Type)))
}
