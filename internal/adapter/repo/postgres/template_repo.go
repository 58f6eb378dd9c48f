package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
)

// TemplateRepo persists and loads outreach templates using a minimal pgx pool.
type TemplateRepo struct{ Pool PgxPool }

// NewTemplateRepo constructs a TemplateRepo with the given pool.
func NewTemplateRepo(p PgxPool) *TemplateRepo { return &TemplateRepo{Pool: p} }

const templateColumns = `id, template_id, name, description, experiment_id,
	subject_line, body_template, personalization_prompt, channel, config,
	is_active, created_at, updated_at`

func scanTemplate(row pgx.Row) (domain.OutreachTemplate, error) {
	var t domain.OutreachTemplate
	var config []byte
	if err := row.Scan(
		&t.ID, &t.TemplateID, &t.Name, &t.Description, &t.ExperimentID,
		&t.SubjectLine, &t.BodyTemplate, &t.PersonalizationPrompt, &t.Channel, &config,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return domain.OutreachTemplate{}, err
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &t.Config); err != nil {
			return domain.OutreachTemplate{}, fmt.Errorf("op=template.scan.unmarshal_config: %w", err)
		}
	}
	return t, nil
}

// ListActiveByExperiment returns active templates bound to one experiment.
func (r *TemplateRepo) ListActiveByExperiment(ctx domain.Context, experimentID string) ([]domain.OutreachTemplate, error) {
	tracer := otel.Tracer("repo.templates")
	ctx, span := tracer.Start(ctx, "templates.ListActiveByExperiment")
	defer span.End()
	span.SetAttributes(attribute.String("db.sql.table", "outreach_templates"))

	q := `SELECT ` + templateColumns + ` FROM outreach_templates WHERE experiment_id=$1 AND is_active=true ORDER BY template_id`
	rows, err := executorFrom(ctx, r.Pool).Query(ctx, q, experimentID)
	if err != nil {
		return nil, fmt.Errorf("op=template.list_active_by_experiment: %w", err)
	}
	defer rows.Close()

	var templates []domain.OutreachTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("op=template.list_active_by_experiment_scan: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=template.list_active_by_experiment_rows: %w", err)
	}
	return templates, nil
}

// Get loads one template by its template_id.
func (r *TemplateRepo) Get(ctx domain.Context, templateID string) (domain.OutreachTemplate, error) {
	tracer := otel.Tracer("repo.templates")
	ctx, span := tracer.Start(ctx, "templates.Get")
	defer span.End()

	q := `SELECT ` + templateColumns + ` FROM outreach_templates WHERE template_id=$1`
	t, err := scanTemplate(executorFrom(ctx, r.Pool).QueryRow(ctx, q, templateID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.OutreachTemplate{}, fmt.Errorf("op=template.get: %w", domain.ErrNotFound)
		}
		return domain.OutreachTemplate{}, fmt.Errorf("op=template.get: %w", err)
	}
	return t, nil
}
