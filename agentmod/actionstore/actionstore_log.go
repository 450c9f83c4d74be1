package actionstore

import (
	"context"
	"log/slog"
)

// Sink which only writes records to the log. Used when no database is configured.
type LogSink struct {
	Logger *slog.Logger
}

var _ Sink = (*LogSink)(nil)
var _ CounterSink = (*LogSink)(nil)

func (s *LogSink) RecordAction(ctx context.Context, rec Record) error {
	s.Logger.Info("moderation action", "actor", rec.ActorID, "event", rec.EventID, "action", rec.Kind, "reason", rec.Reason, "meta", rec.Meta)
	return nil
}

func (s *LogSink) SaveCounter(ctx context.Context, snap CounterSnapshot) error {
	s.Logger.Debug("rate counter", "bucket", snap.BucketKey, "window_start", snap.WindowStart, "count", snap.Count)
	return nil
}
