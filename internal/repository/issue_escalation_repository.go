package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// IssueEscalationRepository stores the append-only escalation history.
type IssueEscalationRepository interface {
	Create(ctx context.Context, escalation *domain.IssueEscalation) error
	// ListByIssue returns escalations newest first.
	ListByIssue(ctx context.Context, issueID string) ([]domain.IssueEscalation, error)
	CountByIssue(ctx context.Context, issueID string) (int, error)
}

type issueEscalationRepository struct {
	pool *pgxpool.Pool
}

func NewIssueEscalationRepository(pool *pgxpool.Pool) IssueEscalationRepository {
	return &issueEscalationRepository{pool: pool}
}

func (r *issueEscalationRepository) Create(ctx context.Context, e *domain.IssueEscalation) error {
	const query = `
        INSERT INTO issue_escalations (id, issue_id, from_level, to_level, escalated_at, reason, escalated_by, automatic)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		e.ID, e.IssueID, e.FromLevel, e.ToLevel, e.EscalatedAt, e.Reason, e.EscalatedBy, e.Automatic)
	return translate(err)
}

func (r *issueEscalationRepository) ListByIssue(ctx context.Context, issueID string) ([]domain.IssueEscalation, error) {
	const query = `
        SELECT id, issue_id, from_level, to_level, escalated_at, reason, escalated_by, automatic
        FROM issue_escalations WHERE issue_id=$1 ORDER BY escalated_at DESC, id DESC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.IssueEscalation
	for rows.Next() {
		var e domain.IssueEscalation
		if err := rows.Scan(&e.ID, &e.IssueID, &e.FromLevel, &e.ToLevel, &e.EscalatedAt, &e.Reason, &e.EscalatedBy, &e.Automatic); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *issueEscalationRepository) CountByIssue(ctx context.Context, issueID string) (int, error) {
	var count int
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM issue_escalations WHERE issue_id=$1`, issueID).Scan(&count)
	return count, err
}
