package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Martian-dev/inbox-triage/internal/checkpoint"
)

// Outcome classifies how a push delivery was handled
type Outcome string

const (
	OutcomeProcessed           Outcome = "processed"
	OutcomeSkippedStale        Outcome = "skipped_stale"
	OutcomeSkippedVerification Outcome = "skipped_verification"
	OutcomeCheckpointReset     Outcome = "checkpoint_reset"
	OutcomeAuthError           Outcome = "auth_error"
	OutcomeError               Outcome = "error"
)

// Result summarizes one handled delivery
type Result struct {
	Outcome   Outcome
	Account   string
	HistoryID uint64
	Processed int
	Failed    int
	Err       error
}

// ProcessFunc handles one change event. The handler aborts the batch
// only on ErrAuth; every other failure is logged and the batch keeps
// going.
type ProcessFunc func(ctx context.Context, ev ChangeEvent) error

// Handler applies push notifications to the mailbox checkpoint
type Handler struct {
	provider   MailProvider
	checkpoint *checkpoint.Store
	process    ProcessFunc
	log        *slog.Logger

	// one watched mailbox, so one mutex serializes deliveries
	mu sync.Mutex
}

// NewHandler creates a notification handler
func NewHandler(provider MailProvider, cp *checkpoint.Store, process ProcessFunc, log *slog.Logger) *Handler {
	return &Handler{
		provider:   provider,
		checkpoint: cp,
		process:    process,
		log:        log,
	}
}

// Handle decodes and executes one push delivery end to end: parse the
// envelope, skip stale notifications, list the history delta, process
// each added message, and advance the checkpoint to the highest
// history record ID seen.
func (h *Handler) Handle(ctx context.Context, body []byte) Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	note := DecodeNotification(body)
	if note == nil {
		return Result{Outcome: OutcomeSkippedVerification}
	}

	res := Result{Account: note.EmailAddress, HistoryID: note.HistoryID}
	last := h.checkpoint.Last()

	h.log.Info("push notification received",
		"account", note.EmailAddress, "history_id", note.HistoryID, "checkpoint", last)

	if last == 0 {
		// First delivery after setup: adopt the notification's ID as
		// the baseline, nothing to diff against yet.
		if err := h.checkpoint.Reset(note.HistoryID); err != nil {
			h.log.Error("failed to seed checkpoint", "error", err)
			res.Outcome = OutcomeError
			res.Err = err
			return res
		}
		h.log.Info("checkpoint seeded from notification", "history_id", note.HistoryID)
		res.Outcome = OutcomeProcessed
		return res
	}

	if note.HistoryID <= last {
		h.log.Info("skipping old notification", "history_id", note.HistoryID, "checkpoint", last)
		res.Outcome = OutcomeSkippedStale
		return res
	}

	events, maxListed, err := h.provider.ChangesSince(ctx, last)
	if err != nil {
		switch {
		case errors.Is(err, ErrCheckpointStale):
			h.log.Warn("history baseline rejected, resetting",
				"checkpoint", last, "history_id", note.HistoryID)
			if rerr := h.checkpoint.Reset(note.HistoryID); rerr != nil {
				h.log.Error("failed to reset checkpoint", "error", rerr)
				res.Outcome = OutcomeError
				res.Err = rerr
				return res
			}
			res.Outcome = OutcomeCheckpointReset
			return res
		case errors.Is(err, ErrAuth):
			h.log.Error("authentication failed", "error", err)
			res.Outcome = OutcomeAuthError
			res.Err = err
			return res
		default:
			h.log.Error("failed to list changes", "error", err)
			res.Outcome = OutcomeError
			res.Err = err
			return res
		}
	}

	maxSeen := last
	for _, ev := range events {
		if err := h.process(ctx, ev); err != nil {
			if errors.Is(err, ErrAuth) {
				h.log.Error("authentication failed mid-batch",
					"message_id", ev.MessageID, "error", err)
				if _, aerr := h.checkpoint.Advance(maxSeen); aerr != nil {
					h.log.Error("failed to persist checkpoint", "error", aerr)
				}
				res.Outcome = OutcomeAuthError
				res.Err = err
				return res
			}
			// One bad message never aborts the batch
			h.log.Error("failed to process message", "message_id", ev.MessageID, "error", err)
			res.Failed++
		} else {
			res.Processed++
		}
		if ev.HistoryID > maxSeen {
			maxSeen = ev.HistoryID
		}
	}

	// History records with no surviving messages still move the baseline
	if maxListed > maxSeen {
		maxSeen = maxListed
	}

	if _, err := h.checkpoint.Advance(maxSeen); err != nil {
		h.log.Error("failed to persist checkpoint", "error", err)
		res.Outcome = OutcomeError
		res.Err = err
		return res
	}

	h.log.Info("notification handled",
		"processed", res.Processed, "failed", res.Failed, "checkpoint", maxSeen)
	res.Outcome = OutcomeProcessed
	return res
}
