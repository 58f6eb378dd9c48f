package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/bishnubista/pipeline-whisperer/internal/adapter/delivery"
	"github.com/bishnubista/pipeline-whisperer/internal/adapter/personalize"
	"github.com/bishnubista/pipeline-whisperer/internal/bandit"
	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
)

// contactThreshold is the minimum score a lead must clear to enter the
// outreach selection flow.
const contactThreshold = 0.5

// Orchestrator consumes leads.scored, selects an experiment arm via
// Thompson Sampling, renders and sends one outreach message, and records
// the outcome.
type Orchestrator struct {
	Leads       domain.LeadRepository
	Experiments domain.ExperimentRepository
	Templates   domain.TemplateRepository
	Logs        domain.OutreachLogRepository
	Personalize *personalize.Service
	Delivery    *delivery.Registry
	Publisher   domain.EventPublisher

	// Tx runs the log/lead/experiment mutations that follow a successful
	// send as one transaction. A nil Tx runs them untransactionally, which
	// only tests that don't care about partial-failure semantics should do.
	Tx domain.UnitOfWork

	// Rand sources the Thompson Sampling draw; with a nil Rand each record
	// draws from a fresh time-seeded source.
	Rand *rand.Rand
}

func (o *Orchestrator) rng() *rand.Rand {
	if o.Rand != nil {
		return o.Rand
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

func (o *Orchestrator) withinTx(ctx domain.Context, fn func(ctx domain.Context) error) error {
	if o.Tx == nil {
		return fn(ctx)
	}
	return o.Tx.WithinTx(ctx, fn)
}

// HandleRecord implements kafka.Handler for the leads.scored topic.
func (o *Orchestrator) HandleRecord(ctx domain.Context, _ string, _ string, value []byte) error {
	tracer := otel.Tracer("worker.orchestrator")
	ctx, span := tracer.Start(ctx, "Orchestrator.HandleRecord")
	defer span.End()

	var event domain.ScoredLeadEvent
	if err := json.Unmarshal(value, &event); err != nil {
		slog.Warn("orchestrator: malformed leads.scored record, committing without processing",
			slog.Any("error", err))
		return nil
	}
	if event.ExternalID == "" {
		slog.Warn("orchestrator: leads.scored record missing external_id, committing without processing")
		return nil
	}
	lg := observability.LoggerFromContext(ctx).With(slog.String("external_id", event.ExternalID))

	// Step 1: load the lead; skip if already past the contact boundary.
	lead, err := o.Leads.FindByExternalID(ctx, event.ExternalID)
	if err != nil {
		return fmt.Errorf("op=orchestrator.lookup: %w", err)
	}
	switch lead.Status {
	case domain.LeadContacted, domain.LeadResponded, domain.LeadConverted:
		lg.Info("orchestrator: lead already past contact boundary, skipping")
		return nil
	}

	// Step 2: score gate.
	if lead.Score == nil || *lead.Score < contactThreshold {
		lg.Info("orchestrator: lead did not clear contact threshold, skipping")
		return nil
	}

	// Step 3: Thompson Sampling experiment selection.
	experiments, err := o.Experiments.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("op=orchestrator.listExperiments: %w", err)
	}
	if len(experiments) == 0 {
		return fmt.Errorf("op=orchestrator.selectExperiment: %w: no active experiments", domain.ErrConfiguration)
	}
	arms := make([]bandit.Arm, len(experiments))
	for i, e := range experiments {
		arms[i] = bandit.Arm{ExperimentID: e.ExperimentID, Alpha: e.Alpha, Beta: e.Beta}
	}
	experimentID, ok := bandit.Select(o.rng(), arms)
	if !ok {
		return fmt.Errorf("op=orchestrator.selectExperiment: %w: no active experiments", domain.ErrConfiguration)
	}
	observability.BanditSelectionsTotal.WithLabelValues(experimentID).Inc()

	// Step 4: template lookup.
	templates, err := o.Templates.ListActiveByExperiment(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("op=orchestrator.listTemplates: %w", err)
	}
	if len(templates) == 0 {
		// No event type in the outreach.events enum represents a
		// configuration error; per the error taxonomy this is committed
		// without retry and surfaced only via the log, not the event log.
		lg.Error("orchestrator: no active template for experiment, skipping",
			slog.String("experiment_id", experimentID))
		return nil
	}
	template := templates[0]

	// Step 5: render.
	rendered, err := o.Personalize.Render(ctx, personalize.RenderRequest{
		SubjectTemplate: template.SubjectLine,
		BodyTemplate:    template.BodyTemplate,
		Data: map[string]any{
			"company_name": lead.CompanyName,
			"contact_name": lead.ContactName,
			"industry":     lead.Industry,
		},
		Instructions: template.PersonalizationPrompt,
	})
	if err != nil {
		return fmt.Errorf("op=orchestrator.render: %w", err)
	}

	// Step 6: deliver.
	result, err := o.Delivery.Send(ctx, template.Channel, delivery.Message{
		ToEmail:    lead.ContactEmail,
		ToName:     lead.ContactName,
		Subject:    rendered.Subject,
		Body:       rendered.Body,
		TrackingID: lead.ExternalID,
	})
	if err != nil {
		return fmt.Errorf("op=orchestrator.deliver: %w", err)
	}

	if result.Status == "failed" {
		if _, logErr := o.Logs.Create(ctx, domain.OutreachLog{
			LeadID:       lead.ID,
			ExperimentID: experimentID,
			TemplateID:   template.TemplateID,
			Subject:      rendered.Subject,
			Body:         rendered.Body,
			Channel:      template.Channel,
			Status:       domain.OutreachFailed,
			ErrorMessage: result.Error,
		}); logErr != nil {
			return fmt.Errorf("op=orchestrator.logFailure: %w", logErr)
		}
		lg.Warn("orchestrator: delivery failed", slog.String("error", result.Error))
		return nil
	}

	// Step 7: log + lead + experiment counters move together in one
	// transaction, so a failure partway through can never leave
	// leads_assigned/outreach_sent diverged from the outreach log.
	now := time.Now().UTC()
	if !domain.CanTransitionLeadStatus(lead.Status, domain.LeadContacted) {
		return fmt.Errorf("op=orchestrator.updateLead: %w: %s->%s", domain.ErrConflict, lead.Status, domain.LeadContacted)
	}
	txErr := o.withinTx(ctx, func(ctx domain.Context) error {
		if _, err := o.Logs.Create(ctx, domain.OutreachLog{
			LeadID:            lead.ID,
			ExperimentID:      experimentID,
			TemplateID:        template.TemplateID,
			Subject:           rendered.Subject,
			Body:              rendered.Body,
			Channel:           template.Channel,
			SentVia:           result.Provider,
			ExternalMessageID: result.MessageID,
			Status:            domain.OutreachSent,
		}); err != nil {
			return fmt.Errorf("op=orchestrator.logSent: %w", err)
		}

		lead.Status = domain.LeadContacted
		lead.ExperimentID = &experimentID
		lead.ContactedAt = &now
		lead.OutreachCount++
		if err := o.Leads.Update(ctx, lead); err != nil {
			return fmt.Errorf("op=orchestrator.updateLead: %w", err)
		}

		if err := o.Experiments.IncrementOnAssign(ctx, experimentID); err != nil {
			return fmt.Errorf("op=orchestrator.incrementAssign: %w", err)
		}
		if err := o.Experiments.IncrementOnSend(ctx, experimentID); err != nil {
			return fmt.Errorf("op=orchestrator.incrementSend: %w", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	// Step 8: emit outreach.sent.
	if err := o.Publisher.Publish(ctx, domain.TopicOutreachEvents, event.ExternalID, domain.OutreachEvent{
		EventType:    domain.EventOutreachSent,
		Timestamp:    now,
		LeadID:       lead.ID,
		ExternalID:   event.ExternalID,
		ExperimentID: experimentID,
		TemplateID:   template.TemplateID,
		MessageID:    result.MessageID,
	}); err != nil {
		return fmt.Errorf("op=orchestrator.emit: %w", err)
	}

	lg.Info("orchestrator: outreach sent", slog.String("experiment_id", experimentID))
	return nil
}
