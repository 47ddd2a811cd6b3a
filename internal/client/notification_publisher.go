// Package client holds outbound collaborators: the NATS notification
// publisher and the identity service client.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	natsclient "github.com/pesio-ai/be-dms-workflow/internal/platform/nats"
	"github.com/pesio-ai/be-dms-workflow/internal/workflow"
)

// NotificationPublisher publishes workflow events to NATS JetStream for the
// notifications service.
//
// Subject convention: notifications.dms.<event_type>
// Event types: review_requested, approved, rejected, reassigned, archived
//
// Publishing is non-fatal by contract: the state transition is already
// committed, so failures are logged and delivery relies on JetStream's
// at-least-once semantics, never on rolling anything back.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	EntityKind   string                 `json:"entity_kind"`
	EntityID     string                 `json:"entity_id"`
	ActorID      string                 `json:"actor_id"`
	RecipientID  string                 `json:"recipient_id"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS client.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// PublishWorkflowEvent publishes one workflow event.
// Subject: notifications.dms.<eventType>
func (p *NotificationPublisher) PublishWorkflowEvent(
	ctx context.Context,
	eventType string,
	kind workflow.EntityKind,
	entityID, actorID, recipientID string,
	metadata map[string]interface{},
) {
	if p.nats == nil || recipientID == "" {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		EntityKind:   string(kind),
		EntityID:     entityID,
		ActorID:      actorID,
		RecipientID:  recipientID,
		IsActionable: eventType == workflow.EventReviewRequested || eventType == workflow.EventReassigned,
		Category:     "dms_workflow",
		Payload:      metadata,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.dms.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("entity_id", entityID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("entity_id", entityID).
		Str("recipient_id", recipientID).
		Msg("notification: event published")
}
