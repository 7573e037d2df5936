package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-draftsync/internal/aws"
	"github.com/imrishuroy/go-draftsync/internal/drafts"
)

// conditionalDeleter removes a draft unless it changed after a cutoff.
type conditionalDeleter interface {
	DeleteIfNotNewer(ctx context.Context, key drafts.Key, cutoff time.Time) error
}

// Processor handles draft cleanup messages published after a submit.
type Processor struct {
	store conditionalDeleter
	log   zerolog.Logger
}

// NewProcessor creates a processor deleting through store.
func NewProcessor(store conditionalDeleter, log zerolog.Logger) *Processor {
	return &Processor{store: store, log: log}
}

// Handle processes an SQS batch. Failed messages are reported individually
// so only they are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("message_id", rec.MessageId).Msg("cleanup failed")
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg aws.CleanupMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		// redelivery cannot fix a malformed body
		p.log.Warn().Err(err).Str("message_id", rec.MessageId).Str("body", rec.Body).Msg("dropping invalid cleanup message")
		return nil
	}
	key := drafts.Key{UserID: msg.UserID, FormType: msg.FormType}
	if err := key.Validate(); err != nil || msg.SubmittedAt.IsZero() {
		p.log.Warn().Str("message_id", rec.MessageId).Str("user_id", msg.UserID).Str("form_type", msg.FormType).Msg("dropping incomplete cleanup message")
		return nil
	}

	log := p.log.With().Str("user_id", key.UserID).Str("form_type", key.FormType).Str("request_id", msg.RequestID).Logger()

	err := p.store.DeleteIfNotNewer(ctx, key, msg.SubmittedAt)
	switch {
	case errors.Is(err, drafts.ErrNewerDraft):
		// the user started a new draft after submitting
		log.Info().Time("submitted_at", msg.SubmittedAt).Msg("draft newer than submission, kept")
		return nil
	case err != nil:
		return fmt.Errorf("delete draft %s: %w", key, err)
	}
	log.Debug().Msg("draft cleaned up")
	return nil
}
