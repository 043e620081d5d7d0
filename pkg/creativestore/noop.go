package creativestore

import "context"

// NoopEventSink discards all events.
type NoopEventSink struct{}

// NewNoopEventSink creates an event sink that does nothing.
func NewNoopEventSink() EventSink { return NoopEventSink{} }

func (NoopEventSink) SessionCreated(ctx context.Context, session *UploadSession) error { return nil }
func (NoopEventSink) ObjectCreated(ctx context.Context, id int64, versionID string) error {
	return nil
}
func (NoopEventSink) ObjectModified(ctx context.Context, id int64, versionID string) error {
	return nil
}
func (NoopEventSink) TemplateCreated(ctx context.Context, id int64, versionID string) error {
	return nil
}
func (NoopEventSink) TemplateModified(ctx context.Context, id int64, versionID string) error {
	return nil
}
