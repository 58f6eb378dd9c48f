package worker

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
	"github.com/bishnubista/pipeline-whisperer/internal/observability"
)

// Feedback consumes outreach.events and applies the OutreachLog/Lead/
// Experiment transitions for each engagement event type.
type Feedback struct {
	Leads       domain.LeadRepository
	Experiments domain.ExperimentRepository
	Logs        domain.OutreachLogRepository

	// Tx runs each event's log/lead/experiment mutations as one
	// transaction. A nil Tx runs them untransactionally, which only tests
	// that don't care about partial-failure semantics should do.
	Tx domain.UnitOfWork

	// ConversionBetaIncrement is added to an experiment's beta on a
	// converted event. The observed reference behavior never increments
	// beta on conversion (see BanditBetaUpdatePolicy="none"), so this
	// defaults to 0. cmd/feedback leaves it at 0; nothing in this repository
	// sets it.
	ConversionBetaIncrement float64
}

func (f *Feedback) withinTx(ctx domain.Context, fn func(ctx domain.Context) error) error {
	if f.Tx == nil {
		return fn(ctx)
	}
	return f.Tx.WithinTx(ctx, fn)
}

// HandleRecord implements kafka.Handler for the outreach.events topic.
func (f *Feedback) HandleRecord(ctx domain.Context, _ string, _ string, value []byte) error {
	tracer := otel.Tracer("worker.feedback")
	ctx, span := tracer.Start(ctx, "Feedback.HandleRecord")
	defer span.End()

	var event domain.OutreachEvent
	if err := json.Unmarshal(value, &event); err != nil {
		slog.Warn("feedback: malformed outreach.events record, committing without processing",
			slog.Any("error", err))
		return nil
	}
	lg := observability.LoggerFromContext(ctx).With(slog.String("external_id", event.ExternalID), slog.String("event_type", string(event.EventType)))

	switch event.EventType {
	case domain.EventOutreachSent:
		// Produced by the Orchestrator itself; the OutreachLog row already
		// reflects "sent" at write time, nothing further to apply here.
		return nil
	case domain.EventOutreachOpened:
		return f.onOpened(ctx, event)
	case domain.EventOutreachClicked:
		return f.onClicked(ctx, event)
	case domain.EventOutreachReplied:
		return f.onReplied(ctx, event)
	case domain.EventOutreachConverted:
		return f.onConverted(ctx, event)
	default:
		lg.Warn("feedback: unrecognized event type, committing without processing")
		return nil
	}
}

func (f *Feedback) onOpened(ctx domain.Context, event domain.OutreachEvent) error {
	log, err := f.Logs.FindByExternalMessageID(ctx, event.MessageID)
	if err != nil {
		return fmt.Errorf("op=feedback.onOpened.lookup: %w", err)
	}
	if isOutreachTerminal(log.Status) {
		slog.Warn("feedback: opened event ignored, log already in a terminal state",
			slog.String("from", string(log.Status)))
		return nil
	}
	// Engagement events may skip intermediate stages, so any non-terminal
	// status accepts the opened transition.
	if err := f.Logs.UpdateStatus(ctx, log.ID, domain.OutreachOpened, nil); err != nil {
		return fmt.Errorf("op=feedback.onOpened.update: %w", err)
	}
	return nil
}

func (f *Feedback) onClicked(ctx domain.Context, event domain.OutreachEvent) error {
	log, err := f.Logs.FindByExternalMessageID(ctx, event.MessageID)
	if err != nil {
		return fmt.Errorf("op=feedback.onClicked.lookup: %w", err)
	}
	if isOutreachTerminal(log.Status) {
		slog.Warn("feedback: clicked event ignored, log already in a terminal state",
			slog.String("from", string(log.Status)))
		return nil
	}
	if err := f.Logs.UpdateStatus(ctx, log.ID, domain.OutreachClicked, nil); err != nil {
		return fmt.Errorf("op=feedback.onClicked.update: %w", err)
	}
	return nil
}

func (f *Feedback) onReplied(ctx domain.Context, event domain.OutreachEvent) error {
	log, err := f.Logs.FindByExternalMessageID(ctx, event.MessageID)
	if err != nil {
		return fmt.Errorf("op=feedback.onReplied.lookup: %w", err)
	}
	lead, err := f.Leads.Get(ctx, event.LeadID)
	if err != nil {
		return fmt.Errorf("op=feedback.onReplied.lookupLead: %w", err)
	}

	// A lead already at or past the responded stage has already had its
	// response counted; a redelivered replied event must not count it
	// again, so the lead/experiment half of this event is skipped
	// entirely rather than gated on CanTransitionLeadStatus's
	// same-state-permissive check.
	alreadyCounted := lead.Status == domain.LeadResponded || lead.Status == domain.LeadConverted
	if !alreadyCounted && !domain.CanTransitionLeadStatus(lead.Status, domain.LeadResponded) {
		return fmt.Errorf("op=feedback.onReplied.updateLead: %w: %s->%s", domain.ErrConflict, lead.Status, domain.LeadResponded)
	}

	return f.withinTx(ctx, func(ctx domain.Context) error {
		if !isOutreachTerminal(log.Status) {
			if err := f.Logs.UpdateStatus(ctx, log.ID, domain.OutreachReplied, nil); err != nil {
				return fmt.Errorf("op=feedback.onReplied.updateLog: %w", err)
			}
		}
		if alreadyCounted {
			return nil
		}

		lead.Status = domain.LeadResponded
		lead.ResponseCount++
		if err := f.Leads.Update(ctx, lead); err != nil {
			return fmt.Errorf("op=feedback.onReplied.updateLead: %w", err)
		}
		if err := f.Experiments.IncrementOnResponse(ctx, event.ExperimentID); err != nil {
			return fmt.Errorf("op=feedback.onReplied.incrementExperiment: %w", err)
		}
		return nil
	})
}

func (f *Feedback) onConverted(ctx domain.Context, event domain.OutreachEvent) error {
	lead, err := f.Leads.Get(ctx, event.LeadID)
	if err != nil {
		return fmt.Errorf("op=feedback.onConverted.lookupLead: %w", err)
	}
	if lead.Status == domain.LeadConverted {
		// Already counted; a redelivered converted event must not
		// increment alpha/conversions a second time.
		return nil
	}
	if !domain.CanTransitionLeadStatus(lead.Status, domain.LeadConverted) {
		return fmt.Errorf("op=feedback.onConverted.updateLead: %w: %s->%s", domain.ErrConflict, lead.Status, domain.LeadConverted)
	}

	return f.withinTx(ctx, func(ctx domain.Context) error {
		lead.Status = domain.LeadConverted
		if err := f.Leads.Update(ctx, lead); err != nil {
			return fmt.Errorf("op=feedback.onConverted.updateLead: %w", err)
		}
		if err := f.Experiments.IncrementOnConversion(ctx, event.ExperimentID, f.ConversionBetaIncrement); err != nil {
			return fmt.Errorf("op=feedback.onConverted.incrementExperiment: %w", err)
		}
		return nil
	})
}

// isOutreachTerminal reports whether status is one of the OutreachLog
// state machine's terminal states, past which engagement events no longer
// apply.
func isOutreachTerminal(status domain.OutreachStatus) bool {
	switch status {
	case domain.OutreachBounced, domain.OutreachFailed, domain.OutreachUnsubscribed:
		return true
	default:
		return false
	}
}
