package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Martian-dev/inbox-triage/internal/eventstore/sqlite"
	"github.com/Martian-dev/inbox-triage/internal/metrics"
	"github.com/Martian-dev/inbox-triage/internal/sync"
)

// AuditLog records triage outcomes and missing messages
type AuditLog interface {
	RecordTriage(ctx context.Context, rec sqlite.TriageRecord) error
	RecordMissing(ctx context.Context, rec sqlite.MissingRecord) error
}

// EventPublisher pushes triage events to the stream. Publishing is
// best effort; failures are logged, never retried.
type EventPublisher interface {
	Publish(subject string, payload []byte, msgID string) error
}

// Processor fetches, scores, and labels one new message at a time
type Processor struct {
	Provider     sync.MailProvider
	ProviderName sync.ProviderName
	Scorer       Scorer
	Thresholds   Thresholds
	Labels       Labels
	Audit        AuditLog
	Events       EventPublisher // nil disables event publishing
	Log          *slog.Logger
}

// Process handles a single change event end to end. A vanished message
// is recorded and swallowed so the batch keeps going; auth failures
// propagate and abort the batch upstream.
func (p *Processor) Process(ctx context.Context, ev sync.ChangeEvent) error {
	msg, err := p.Provider.FetchMessage(ctx, ev.MessageID)
	if err != nil {
		if errors.Is(err, sync.ErrMessageNotFound) {
			p.Log.Warn("message in history but not fetchable, possibly deleted",
				"message_id", ev.MessageID, "thread_id", ev.ThreadID, "labels", ev.Labels)
			metrics.MessagesMissing.Inc()
			if aerr := p.Audit.RecordMissing(ctx, sqlite.MissingRecord{
				TS:        time.Now().Unix(),
				Provider:  string(p.ProviderName),
				MessageID: ev.MessageID,
				ThreadID:  ev.ThreadID,
				Labels:    ev.Labels,
			}); aerr != nil {
				p.Log.Error("failed to record missing message", "message_id", ev.MessageID, "error", aerr)
			}
			return nil
		}
		return fmt.Errorf("failed to fetch message %s: %w", ev.MessageID, err)
	}

	p.Log.Info("processing message", "subject", truncate(msg.Subject, 50), "from", msg.Sender)

	score, err := p.Scorer.Score(ctx, msg.Subject, msg.Snippet)
	if err != nil {
		// Scoring failure files the message into the digest tier
		// instead of dropping it
		p.Log.Warn("scoring failed, defaulting to zero", "message_id", msg.ID, "error", err)
		metrics.ScoringFailures.Inc()
		score = 0
	}

	tier := p.Thresholds.Classify(score)
	label := p.Labels.For(tier)

	if err := p.Provider.ApplyLabel(ctx, msg.ID, label); err != nil {
		return fmt.Errorf("failed to label message %s: %w", msg.ID, err)
	}

	p.Log.Info("message classified",
		"message_id", msg.ID, "score", score, "tier", tier, "label", label)
	metrics.MessagesProcessed.WithLabelValues(string(tier)).Inc()
	metrics.ImportanceScore.Observe(score)

	rec := sqlite.TriageRecord{
		EventID:   uuid.NewString(),
		TS:        time.Now().Unix(),
		Provider:  string(msg.Provider),
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		Subject:   msg.Subject,
		Sender:    msg.Sender,
		Score:     score,
		Tier:      string(tier),
		Label:     label,
	}
	if err := p.Audit.RecordTriage(ctx, rec); err != nil {
		p.Log.Error("failed to record triage event", "message_id", msg.ID, "error", err)
	}

	p.publish(rec)
	return nil
}

// publish emits one triage event with a dedup ID; duplicates from
// redelivered notifications collapse inside the stream window
func (p *Processor) publish(rec sqlite.TriageRecord) {
	if p.Events == nil {
		return
	}

	payload, _ := json.Marshal(rec)
	msgID := fmt.Sprintf("triage.labeled|%s|%s", rec.Provider, rec.MessageID)
	subject := fmt.Sprintf("triage.%s", rec.Tier)

	if err := p.Events.Publish(subject, payload, msgID); err != nil {
		p.Log.Error("failed to publish triage event", "message_id", rec.MessageID, "error", err)
	}
}

// truncate shortens log fields, not stored data
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
