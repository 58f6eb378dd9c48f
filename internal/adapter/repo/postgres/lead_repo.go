package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
)

// LeadRepo persists and loads leads using a minimal pgx pool.
type LeadRepo struct{ Pool PgxPool }

// NewLeadRepo constructs a LeadRepo with the given pool.
func NewLeadRepo(p PgxPool) *LeadRepo { return &LeadRepo{Pool: p} }

// Create inserts a new Lead and returns its id.
func (r *LeadRepo) Create(ctx domain.Context, l domain.Lead) (string, error) {
	tracer := otel.Tracer("repo.leads")
	ctx, span := tracer.Start(ctx, "leads.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "leads"),
	)

	id := l.ID
	if id == "" {
		id = uuid.New().String()
	}
	rawPayload, err := json.Marshal(l.RawPayload)
	if err != nil {
		return "", fmt.Errorf("op=lead.create.marshal_payload: %w", err)
	}
	scoringMeta, err := json.Marshal(l.ScoringMeta)
	if err != nil {
		return "", fmt.Errorf("op=lead.create.marshal_scoring_meta: %w", err)
	}

	now := time.Now().UTC()
	q := `INSERT INTO leads (
		id, external_id, company_name, contact_name, contact_email, contact_title,
		industry, company_size, website, raw_payload, score, persona, scoring_metadata,
		status, assigned_experiment_id, outreach_count, response_count,
		created_at, updated_at, scored_at, contacted_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	_, err = executorFrom(ctx, r.Pool).Exec(ctx, q,
		id, l.ExternalID, l.CompanyName, l.ContactName, l.ContactEmail, l.ContactTitle,
		l.Industry, l.CompanySize, l.Website, rawPayload, l.Score, l.Persona, scoringMeta,
		l.Status, l.ExperimentID, l.OutreachCount, l.ResponseCount,
		now, now, l.ScoredAt, l.ContactedAt,
	)
	if err != nil {
		return "", fmt.Errorf("op=lead.create: %w", err)
	}
	return id, nil
}

// Update persists changes to an existing lead. The status transition itself
// is validated by the caller before Update is invoked; Update runs against
// whatever transaction (if any) TxManager.WithinTx has bound to ctx, so it
// can be composed with sibling mutations into one atomic unit.
func (r *LeadRepo) Update(ctx domain.Context, l domain.Lead) error {
	tracer := otel.Tracer("repo.leads")
	ctx, span := tracer.Start(ctx, "leads.Update")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "leads"),
	)

	rawPayload, err := json.Marshal(l.RawPayload)
	if err != nil {
		return fmt.Errorf("op=lead.update.marshal_payload: %w", err)
	}
	scoringMeta, err := json.Marshal(l.ScoringMeta)
	if err != nil {
		return fmt.Errorf("op=lead.update.marshal_scoring_meta: %w", err)
	}

	q := `UPDATE leads SET
		company_name=$2, contact_name=$3, contact_email=$4, contact_title=$5,
		industry=$6, company_size=$7, website=$8, raw_payload=$9,
		score=$10, persona=$11, scoring_metadata=$12, status=$13,
		assigned_experiment_id=$14, outreach_count=$15, response_count=$16,
		updated_at=$17, scored_at=$18, contacted_at=$19
	WHERE id=$1`
	if _, err := executorFrom(ctx, r.Pool).Exec(ctx, q,
		l.ID, l.CompanyName, l.ContactName, l.ContactEmail, l.ContactTitle,
		l.Industry, l.CompanySize, l.Website, rawPayload,
		l.Score, l.Persona, scoringMeta, l.Status,
		l.ExperimentID, l.OutreachCount, l.ResponseCount,
		time.Now().UTC(), l.ScoredAt, l.ContactedAt,
	); err != nil {
		return fmt.Errorf("op=lead.update.exec: %w", err)
	}
	return nil
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var l domain.Lead
	var rawPayload, scoringMeta []byte
	if err := row.Scan(
		&l.ID, &l.ExternalID, &l.CompanyName, &l.ContactName, &l.ContactEmail, &l.ContactTitle,
		&l.Industry, &l.CompanySize, &l.Website, &rawPayload, &l.Score, &l.Persona, &scoringMeta,
		&l.Status, &l.ExperimentID, &l.OutreachCount, &l.ResponseCount,
		&l.CreatedAt, &l.UpdatedAt, &l.ScoredAt, &l.ContactedAt,
	); err != nil {
		return domain.Lead{}, err
	}
	if len(rawPayload) > 0 {
		if err := json.Unmarshal(rawPayload, &l.RawPayload); err != nil {
			return domain.Lead{}, fmt.Errorf("op=lead.scan.unmarshal_payload: %w", err)
		}
	}
	if len(scoringMeta) > 0 {
		if err := json.Unmarshal(scoringMeta, &l.ScoringMeta); err != nil {
			return domain.Lead{}, fmt.Errorf("op=lead.scan.unmarshal_scoring_meta: %w", err)
		}
	}
	return l, nil
}

const leadColumns = `id, external_id, company_name, contact_name, contact_email, contact_title,
	industry, company_size, website, raw_payload, score, persona, scoring_metadata,
	status, assigned_experiment_id, outreach_count, response_count,
	created_at, updated_at, scored_at, contacted_at`

// Get loads a lead by id.
func (r *LeadRepo) Get(ctx domain.Context, id string) (domain.Lead, error) {
	tracer := otel.Tracer("repo.leads")
	ctx, span := tracer.Start(ctx, "leads.Get")
	defer span.End()

	q := `SELECT ` + leadColumns + ` FROM leads WHERE id=$1`
	l, err := scanLead(executorFrom(ctx, r.Pool).QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Lead{}, fmt.Errorf("op=lead.get: %w", domain.ErrNotFound)
		}
		return domain.Lead{}, fmt.Errorf("op=lead.get: %w", err)
	}
	return l, nil
}

// FindByExternalID loads a lead by its external_id.
func (r *LeadRepo) FindByExternalID(ctx domain.Context, externalID string) (domain.Lead, error) {
	tracer := otel.Tracer("repo.leads")
	ctx, span := tracer.Start(ctx, "leads.FindByExternalID")
	defer span.End()

	q := `SELECT ` + leadColumns + ` FROM leads WHERE external_id=$1`
	l, err := scanLead(executorFrom(ctx, r.Pool).QueryRow(ctx, q, externalID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Lead{}, fmt.Errorf("op=lead.find_by_external_id: %w", domain.ErrNotFound)
		}
		return domain.Lead{}, fmt.Errorf("op=lead.find_by_external_id: %w", err)
	}
	return l, nil
}

// CountByStatus returns the number of leads in a given status.
func (r *LeadRepo) CountByStatus(ctx domain.Context, status domain.LeadStatus) (int, error) {
	tracer := otel.Tracer("repo.leads")
	ctx, span := tracer.Start(ctx, "leads.CountByStatus")
	defer span.End()

	q := `SELECT COUNT(*) FROM leads WHERE status=$1`
	var count int
	if err := executorFrom(ctx, r.Pool).QueryRow(ctx, q, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("op=lead.count_by_status: %w", err)
	}
	return count, nil
}

// List returns a paginated list of leads ordered by creation time.
func (r *LeadRepo) List(ctx domain.Context, offset, limit int) ([]domain.Lead, error) {
	tracer := otel.Tracer("repo.leads")
	ctx, span := tracer.Start(ctx, "leads.List")
	defer span.End()

	q := `SELECT ` + leadColumns + ` FROM leads ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := executorFrom(ctx, r.Pool).Query(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=lead.list: %w", err)
	}
	defer rows.Close()

	var leads []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("op=lead.list_scan: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=lead.list_rows: %w", err)
	}
	return leads, nil
}
