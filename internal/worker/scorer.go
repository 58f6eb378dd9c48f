// Package worker implements the three event-driven worker processes:
// Scorer, Orchestrator, and Feedback. Each wraps its topic's step sequence
// into a kafka.Handler, following a context-scoped logger, span, handler
// call, classify-and-route-on-error dispatch shape.
package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/scoring"
	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
	"github.com/bishnubista/pipeline-whisperer/internal/usecase"
)

// Scorer consumes leads.raw, scores each lead, persists it, and republishes
// to leads.scored.
type Scorer struct {
	Leads     domain.LeadRepository
	Scoring   scoring.Client
	Publisher domain.EventPublisher
}

// HandleRecord implements kafka.Handler for the leads.raw topic.
func (s *Scorer) HandleRecord(ctx domain.Context, _ string, _ string, value []byte) error {
	tracer := otel.Tracer("worker.scorer")
	ctx, span := tracer.Start(ctx, "Scorer.HandleRecord")
	defer span.End()

	var raw domain.RawLeadEvent
	if err := json.Unmarshal(value, &raw); err != nil {
		slog.Warn("scorer: malformed leads.raw record, committing without processing",
			slog.Any("error", err))
		return nil
	}
	if raw.ExternalID == "" {
		slog.Warn("scorer: leads.raw record missing external_id, committing without processing")
		return nil
	}
	lg := observability.LoggerFromContext(ctx).With(slog.String("external_id", raw.ExternalID))

	// Step 1: idempotence against redelivery.
	if _, err := s.Leads.FindByExternalID(ctx, raw.ExternalID); err == nil {
		lg.Info("scorer: lead already scored, skipping")
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=scorer.lookup: %w", err)
	}

	// Step 2: normalize.
	company := usecase.Normalize(raw)

	// Step 3: score.
	result, err := s.Scoring.Score(ctx, company)
	if err != nil {
		return fmt.Errorf("op=scorer.score: %w", err)
	}
	persona := usecase.MapPersona(result.Persona)
	score := result.Score
	now := time.Now().UTC()

	scoringMeta := map[string]any{
		"reasoning":     result.Reasoning,
		"model_version": result.ModelVersion,
		"confidence":    result.Confidence,
		"mock":          result.Mock,
		"scoring_input": company,
		"scored_at":     now,
	}

	// Scorer-assigned Lead ID is reserved up front so the leads.scored
	// event can be published before the row is durably persisted; on a
	// publish failure nothing is created and the raw record redelivers
	// cleanly. On a persist failure after a successful publish, the
	// retried record republishes leads.scored under a fresh db_id — an
	// accepted at-least-once duplicate, since the scoring adapter, the
	// event log, and the relational store are three distinct resources
	// with no cross-resource transaction available to this worker.
	id := uuid.NewString()
	lead := domain.Lead{
		ID:           id,
		ExternalID:   raw.ExternalID,
		CompanyName:  raw.Company.Name,
		ContactName:  raw.Contact.Name,
		ContactEmail: raw.Contact.Email,
		ContactTitle: raw.Contact.Title,
		Industry:     raw.Company.Industry,
		CompanySize:  raw.Company.Size,
		Website:      raw.Company.Website,
		RawPayload:   rawLeadEventAsMap(raw),
		Score:        &score,
		Persona:      persona,
		ScoringMeta:  scoringMeta,
		Status:       domain.LeadScored,
		ScoredAt:     &now,
	}

	// Step 5 (emit before persist, see comment above).
	scored := domain.ScoredLeadEvent{
		RawLeadEvent: raw,
		Scoring: domain.ScoringDocument{
			Score:        score,
			Persona:      string(persona),
			Reasoning:    result.Reasoning,
			ModelVersion: result.ModelVersion,
			Mock:         result.Mock,
			Confidence:   result.Confidence,
			ScoringInput: map[string]any{
				"company_name":   company.CompanyName,
				"industry":       company.Industry,
				"employee_count": company.EmployeeCount,
				"revenue":        company.Revenue,
				"website":        company.Website,
			},
			ScoredAt: now,
		},
		DBID: id,
	}
	if err := s.Publisher.Publish(ctx, domain.TopicLeadsScored, raw.ExternalID, scored); err != nil {
		return fmt.Errorf("op=scorer.emit: %w", err)
	}

	// Step 4: persist.
	if _, err := s.Leads.Create(ctx, lead); err != nil {
		return fmt.Errorf("op=scorer.persist: %w", err)
	}

	lg.Info("scorer: lead scored", slog.Float64("score", score), slog.String("persona", string(persona)))
	return nil
}

func rawLeadEventAsMap(ev domain.RawLeadEvent) map[string]any {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
