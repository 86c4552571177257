package bodymap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bodymap/internal/platform/auth"
	"github.com/ehr/bodymap/internal/platform/db"
)

// MentionMessage carries device or documentation mentions published to the
// broker, e.g. "foley catheter, chest tube left side".
type MentionMessage struct {
	Text            string   `json:"text"`
	Source          Source   `json:"source,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
	ActingUser      string   `json:"acting_user,omitempty"`
}

// TenantScope runs fn with ctx bound to the tenant's data.
type TenantScope func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error

// Ingestor turns broker mentions into markers. Each resolvable phrase
// becomes one marker; unresolvable phrases are logged and skipped.
type Ingestor struct {
	svc     *Service
	scope   TenantScope
	logger  zerolog.Logger
	timeout time.Duration
}

func NewIngestor(svc *Service, scope TenantScope, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		svc:     svc,
		scope:   scope,
		logger:  logger.With().Str("component", "ingest").Logger(),
		timeout: 10 * time.Second,
	}
}

// IngestTopic is the subscription filter for mention messages:
// <prefix>/ingest/<tenant>/patients/<patient_id>/mentions.
func IngestTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/ingest/+/patients/+/mentions"
}

func parseIngestTopic(topic string) (string, uuid.UUID, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 5 {
		return "", uuid.Nil, fmt.Errorf("unexpected ingest topic %q", topic)
	}
	tail := parts[len(parts)-5:]
	if tail[0] != "ingest" || tail[2] != "patients" || tail[4] != "mentions" {
		return "", uuid.Nil, fmt.Errorf("unexpected ingest topic %q", topic)
	}
	patientID, err := uuid.Parse(tail[3])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid patient id in topic %q", topic)
	}
	if tail[1] == "" {
		return "", uuid.Nil, fmt.Errorf("missing tenant in topic %q", topic)
	}
	return tail[1], patientID, nil
}

// Handle processes one broker message. It satisfies events.MessageHandler.
func (i *Ingestor) Handle(topic string, payload []byte) error {
	tenant, patientID, err := parseIngestTopic(topic)
	if err != nil {
		return err
	}
	var msg MentionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode mention message: %w", err)
	}
	if msg.Source == "" {
		msg.Source = SourceSmartscribe
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()
	if msg.ActingUser != "" {
		ctx = context.WithValue(ctx, auth.UserIDKey, msg.ActingUser)
	}

	run := func(ctx context.Context) error {
		_, err := i.ingest(ctx, patientID, msg)
		return err
	}
	if i.scope == nil {
		return run(context.WithValue(ctx, db.TenantIDKey, tenant))
	}
	return i.scope(ctx, tenant, run)
}

func (i *Ingestor) ingest(ctx context.Context, patientID uuid.UUID, msg MentionMessage) ([]*PatientMarker, error) {
	resolved, unmatched := i.svc.Catalog().ResolveAll(msg.Text)
	for _, phrase := range unmatched {
		i.logger.Info().Str("patient_id", patientID.String()).Str("phrase", phrase).Msg("no marker type for mention")
	}

	var (
		created []*PatientMarker
		errs    []error
	)
	for _, r := range resolved {
		m, err := i.svc.Create(ctx, r.CreateRequest(patientID, msg.Source, msg.ConfidenceScore))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Type, err))
			continue
		}
		created = append(created, m)
	}
	i.logger.Debug().
		Str("patient_id", patientID.String()).
		Int("created", len(created)).
		Int("unmatched", len(unmatched)).
		Msg("mentions ingested")
	return created, errors.Join(errs...)
}
