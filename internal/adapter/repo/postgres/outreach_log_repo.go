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

// OutreachLogRepo persists and loads outreach logs using a minimal pgx pool.
type OutreachLogRepo struct{ Pool PgxPool }

// NewOutreachLogRepo constructs an OutreachLogRepo with the given pool.
func NewOutreachLogRepo(p PgxPool) *OutreachLogRepo { return &OutreachLogRepo{Pool: p} }

// Create inserts a new outreach log and returns its id.
func (r *OutreachLogRepo) Create(ctx domain.Context, l domain.OutreachLog) (string, error) {
	tracer := otel.Tracer("repo.outreach_logs")
	ctx, span := tracer.Start(ctx, "outreach_logs.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "outreach_logs"),
	)

	id := l.ID
	if id == "" {
		id = uuid.New().String()
	}
	statusDetails, err := json.Marshal(l.StatusDetails)
	if err != nil {
		return "", fmt.Errorf("op=outreach_log.create.marshal_status_details: %w", err)
	}

	q := `INSERT INTO outreach_logs (
		id, lead_id, experiment_id, template_id, subject, body, channel, sent_via,
		external_message_id, status, status_details, opened_at, clicked_at, replied_at,
		error_message, retry_count, created_at, sent_at, delivered_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err = executorFrom(ctx, r.Pool).Exec(ctx, q,
		id, l.LeadID, l.ExperimentID, l.TemplateID, l.Subject, l.Body, l.Channel, l.SentVia,
		l.ExternalMessageID, l.Status, statusDetails, l.OpenedAt, l.ClickedAt, l.RepliedAt,
		l.ErrorMessage, l.RetryCount, time.Now().UTC(), l.SentAt, l.DeliveredAt,
	)
	if err != nil {
		return "", fmt.Errorf("op=outreach_log.create: %w", err)
	}
	return id, nil
}

const outreachLogColumns = `id, lead_id, experiment_id, template_id, subject, body, channel, sent_via,
	external_message_id, status, status_details, opened_at, clicked_at, replied_at,
	error_message, retry_count, created_at, sent_at, delivered_at`

func scanOutreachLog(row pgx.Row) (domain.OutreachLog, error) {
	var l domain.OutreachLog
	var statusDetails []byte
	if err := row.Scan(
		&l.ID, &l.LeadID, &l.ExperimentID, &l.TemplateID, &l.Subject, &l.Body, &l.Channel, &l.SentVia,
		&l.ExternalMessageID, &l.Status, &statusDetails, &l.OpenedAt, &l.ClickedAt, &l.RepliedAt,
		&l.ErrorMessage, &l.RetryCount, &l.CreatedAt, &l.SentAt, &l.DeliveredAt,
	); err != nil {
		return domain.OutreachLog{}, err
	}
	if len(statusDetails) > 0 {
		if err := json.Unmarshal(statusDetails, &l.StatusDetails); err != nil {
			return domain.OutreachLog{}, fmt.Errorf("op=outreach_log.scan.unmarshal_status_details: %w", err)
		}
	}
	return l, nil
}

// UpdateStatus transitions an outreach log's status and merges in new
// status_details. It runs against whatever transaction (if any)
// TxManager.WithinTx has bound to ctx, so it can be composed with sibling
// mutations into one atomic unit.
func (r *OutreachLogRepo) UpdateStatus(ctx domain.Context, id string, status domain.OutreachStatus, details map[string]any) error {
	tracer := otel.Tracer("repo.outreach_logs")
	ctx, span := tracer.Start(ctx, "outreach_logs.UpdateStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "outreach_logs"),
	)

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("op=outreach_log.update_status.marshal_details: %w", err)
	}

	now := time.Now().UTC()
	var openedAt, clickedAt, repliedAt *time.Time
	switch status {
	case domain.OutreachOpened:
		openedAt = &now
	case domain.OutreachClicked:
		clickedAt = &now
	case domain.OutreachReplied:
		repliedAt = &now
	}

	q := `UPDATE outreach_logs SET
		status=$2,
		status_details = status_details || $3::jsonb,
		opened_at = COALESCE(opened_at, $4),
		clicked_at = COALESCE(clicked_at, $5),
		replied_at = COALESCE(replied_at, $6)
	WHERE id=$1`
	tag, err := executorFrom(ctx, r.Pool).Exec(ctx, q, id, status, detailsJSON, openedAt, clickedAt, repliedAt)
	if err != nil {
		return fmt.Errorf("op=outreach_log.update_status.exec: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=outreach_log.update_status: %w", domain.ErrNotFound)
	}
	return nil
}

// FindByExternalMessageID loads an outreach log by the provider's message id.
func (r *OutreachLogRepo) FindByExternalMessageID(ctx domain.Context, externalMessageID string) (domain.OutreachLog, error) {
	tracer := otel.Tracer("repo.outreach_logs")
	ctx, span := tracer.Start(ctx, "outreach_logs.FindByExternalMessageID")
	defer span.End()

	q := `SELECT ` + outreachLogColumns + ` FROM outreach_logs WHERE external_message_id=$1`
	l, err := scanOutreachLog(executorFrom(ctx, r.Pool).QueryRow(ctx, q, externalMessageID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.OutreachLog{}, fmt.Errorf("op=outreach_log.find_by_external_message_id: %w", domain.ErrNotFound)
		}
		return domain.OutreachLog{}, fmt.Errorf("op=outreach_log.find_by_external_message_id: %w", err)
	}
	return l, nil
}

// Get loads an outreach log by id.
func (r *OutreachLogRepo) Get(ctx domain.Context, id string) (domain.OutreachLog, error) {
	tracer := otel.Tracer("repo.outreach_logs")
	ctx, span := tracer.Start(ctx, "outreach_logs.Get")
	defer span.End()

	q := `SELECT ` + outreachLogColumns + ` FROM outreach_logs WHERE id=$1`
	l, err := scanOutreachLog(executorFrom(ctx, r.Pool).QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.OutreachLog{}, fmt.Errorf("op=outreach_log.get: %w", domain.ErrNotFound)
		}
		return domain.OutreachLog{}, fmt.Errorf("op=outreach_log.get: %w", err)
	}
	return l, nil
}
