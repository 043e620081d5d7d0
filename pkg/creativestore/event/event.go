// Package event publishes store lifecycle notifications to a message broker.
// Downstream consumers use them to schedule session cleanup and cache
// invalidation; delivery is best effort and never fails the originating
// operation.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/creativestore/creative-store/pkg/creativestore"
)

// Topics, one per lifecycle event.
const (
	TopicSessionCreated   = "creativestore.session.created"
	TopicObjectCreated    = "creativestore.object.created"
	TopicObjectModified   = "creativestore.object.modified"
	TopicTemplateCreated  = "creativestore.template.created"
	TopicTemplateModified = "creativestore.template.modified"
)

// SessionPayload is the body of a session lifecycle event.
type SessionPayload struct {
	SessionID         string    `json:"sessionId"`
	TemplateID        int64     `json:"templateId"`
	TemplateVersionID string    `json:"templateVersionId"`
	Language          string    `json:"language"`
	Author            string    `json:"author"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// DescriptorPayload is the body of an object or template lifecycle event.
type DescriptorPayload struct {
	ID        int64  `json:"id"`
	VersionID string `json:"versionId"`
}

// Sink publishes store events through a watermill publisher.
type Sink struct {
	publisher message.Publisher
}

// NewSink wraps a watermill publisher as a creativestore.EventSink.
func NewSink(publisher message.Publisher) *Sink {
	return &Sink{publisher: publisher}
}

var _ creativestore.EventSink = (*Sink)(nil)

func (s *Sink) SessionCreated(ctx context.Context, session *creativestore.UploadSession) error {
	return s.publish(TopicSessionCreated, SessionPayload{
		SessionID:         session.ID.String(),
		TemplateID:        session.TemplateID,
		TemplateVersionID: session.TemplateVersionID,
		Language:          string(session.Language),
		Author:            session.Author,
		ExpiresAt:         session.ExpiresAt,
	})
}

func (s *Sink) ObjectCreated(ctx context.Context, id int64, versionID string) error {
	return s.publish(TopicObjectCreated, DescriptorPayload{ID: id, VersionID: versionID})
}

func (s *Sink) ObjectModified(ctx context.Context, id int64, versionID string) error {
	return s.publish(TopicObjectModified, DescriptorPayload{ID: id, VersionID: versionID})
}

func (s *Sink) TemplateCreated(ctx context.Context, id int64, versionID string) error {
	return s.publish(TopicTemplateCreated, DescriptorPayload{ID: id, VersionID: versionID})
}

func (s *Sink) TemplateModified(ctx context.Context, id int64, versionID string) error {
	return s.publish(TopicTemplateModified, DescriptorPayload{ID: id, VersionID: versionID})
}

func (s *Sink) publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	return s.publisher.Publish(topic, message.NewMessage(watermill.NewUUID(), body))
}
