package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
)

// ExperimentRepo persists and loads experiments using a minimal pgx pool.
type ExperimentRepo struct{ Pool PgxPool }

// NewExperimentRepo constructs an ExperimentRepo with the given pool.
func NewExperimentRepo(p PgxPool) *ExperimentRepo { return &ExperimentRepo{Pool: p} }

const experimentColumns = `id, experiment_id, name, description, variant, config,
	leads_assigned, outreach_sent, responses_received, conversions,
	conversion_rate, response_rate, alpha, beta, is_active,
	created_at, updated_at, ended_at`

func scanExperiment(row pgx.Row) (domain.Experiment, error) {
	var e domain.Experiment
	var config []byte
	if err := row.Scan(
		&e.ID, &e.ExperimentID, &e.Name, &e.Description, &e.Variant, &config,
		&e.LeadsAssigned, &e.OutreachSent, &e.ResponsesReceived, &e.Conversions,
		&e.ConversionRate, &e.ResponseRate, &e.Alpha, &e.Beta, &e.IsActive,
		&e.CreatedAt, &e.UpdatedAt, &e.EndedAt,
	); err != nil {
		return domain.Experiment{}, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &e.Config); err != nil {
			return domain.Experiment{}, fmt.Errorf("op=experiment.scan.unmarshal_config: %w", err)
		}
	}
	return e, nil
}

// Get loads one experiment by its experiment_id.
func (r *ExperimentRepo) Get(ctx domain.Context, experimentID string) (domain.Experiment, error) {
	tracer := otel.Tracer("repo.experiments")
	ctx, span := tracer.Start(ctx, "experiments.Get")
	defer span.End()

	q := `SELECT ` + experimentColumns + ` FROM experiments WHERE experiment_id=$1`
	e, err := scanExperiment(executorFrom(ctx, r.Pool).QueryRow(ctx, q, experimentID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Experiment{}, fmt.Errorf("op=experiment.get: %w", domain.ErrNotFound)
		}
		return domain.Experiment{}, fmt.Errorf("op=experiment.get: %w", err)
	}
	return e, nil
}

// ListActive returns all experiments with is_active=true, the candidate set
// for Thompson Sampling.
func (r *ExperimentRepo) ListActive(ctx domain.Context) ([]domain.Experiment, error) {
	tracer := otel.Tracer("repo.experiments")
	ctx, span := tracer.Start(ctx, "experiments.ListActive")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "experiments"))

	q := `SELECT ` + experimentColumns + ` FROM experiments WHERE is_active=true ORDER BY experiment_id`
	rows, err := executorFrom(ctx, r.Pool).Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=experiment.list_active: %w", err)
	}
	defer rows.Close()

	var experiments []domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("op=experiment.list_active_scan: %w", err)
		}
		experiments = append(experiments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=experiment.list_active_rows: %w", err)
	}
	return experiments, nil
}

// IncrementOnAssign increments leads_assigned and recomputes conversion_rate
// atomically in a single UPDATE.
func (r *ExperimentRepo) IncrementOnAssign(ctx domain.Context, experimentID string) error {
	q := `UPDATE experiments SET
		leads_assigned = leads_assigned + 1,
		conversion_rate = CASE WHEN leads_assigned + 1 > 0 THEN conversions::float / (leads_assigned + 1) ELSE 0 END,
		updated_at = now()
	WHERE experiment_id=$1`
	return r.exec(ctx, "experiment.increment_on_assign", q, experimentID)
}

// IncrementOnSend increments outreach_sent and recomputes response_rate.
func (r *ExperimentRepo) IncrementOnSend(ctx domain.Context, experimentID string) error {
	q := `UPDATE experiments SET
		outreach_sent = outreach_sent + 1,
		response_rate = CASE WHEN outreach_sent + 1 > 0 THEN responses_received::float / (outreach_sent + 1) ELSE 0 END,
		updated_at = now()
	WHERE experiment_id=$1`
	return r.exec(ctx, "experiment.increment_on_send", q, experimentID)
}

// IncrementOnResponse increments responses_received and recomputes response_rate.
func (r *ExperimentRepo) IncrementOnResponse(ctx domain.Context, experimentID string) error {
	q := `UPDATE experiments SET
		responses_received = responses_received + 1,
		response_rate = CASE WHEN outreach_sent > 0 THEN (responses_received + 1)::float / outreach_sent ELSE 0 END,
		updated_at = now()
	WHERE experiment_id=$1`
	return r.exec(ctx, "experiment.increment_on_response", q, experimentID)
}

// IncrementOnConversion increments conversions, recomputes conversion_rate,
// and adds alpha+=1; betaIncrement is 0 under the default update policy.
func (r *ExperimentRepo) IncrementOnConversion(ctx domain.Context, experimentID string, betaIncrement float64) error {
	q := `UPDATE experiments SET
		conversions = conversions + 1,
		conversion_rate = CASE WHEN leads_assigned > 0 THEN (conversions + 1)::float / leads_assigned ELSE 0 END,
		alpha = alpha + 1,
		beta = beta + $2,
		updated_at = now()
	WHERE experiment_id=$1`
	return r.exec(ctx, "experiment.increment_on_conversion", q, experimentID, betaIncrement)
}

func (r *ExperimentRepo) exec(ctx domain.Context, op, q string, args ...any) error {
	tracer := otel.Tracer("repo.experiments")
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	tag, err := executorFrom(ctx, r.Pool).Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("op=%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
	}
	return nil
}
