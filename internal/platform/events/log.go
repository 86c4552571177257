package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "events").Logger()}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	s.logger.Info().
		Str("event_id", e.ID).
		Str("event_type", e.Type).
		Str("topic", e.Topic).
		Str("tenant", e.Tenant).
		Str("patient_id", e.PatientID).
		Str("resource_id", e.ResourceID).
		Str("acting_user", e.ActingUser).
		RawJSON("data", dataOrNull(e.Data)).
		Msg("event")
	return nil
}

func dataOrNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
