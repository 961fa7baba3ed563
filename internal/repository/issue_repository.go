package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// IssueFilter captures listing parameters.
type IssueFilter struct {
	Statuses   []domain.IssueStatus
	Services   []domain.RelatedService
	Priorities []domain.IssuePriority
	ReportedBy *string
	AssignedTo *string
	Limit      int
	Offset     int
}

// IssueRepository encapsulates issue persistence.
type IssueRepository interface {
	Create(ctx context.Context, issue *domain.Issue) error
	// Update persists issue if its Version still matches the stored row and
	// bumps Version on success.
	Update(ctx context.Context, issue *domain.Issue) error
	GetByID(ctx context.Context, id string) (*domain.Issue, error)
	List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error)
	// ListOpen returns every issue not yet RESOLVED or CLOSED, oldest first.
	ListOpen(ctx context.Context) ([]domain.Issue, error)
}

type issueRepository struct {
	pool *pgxpool.Pool
}

// NewIssueRepository instantiates repository.
func NewIssueRepository(pool *pgxpool.Pool) IssueRepository {
	return &issueRepository{pool: pool}
}

const issueColumns = `id, title, description, status, priority, related_service, reported_by, assigned_to,
               current_support_level, initial_support_level, assigned_at, first_response_at, resolution,
               resolved_at, escalation_count, last_escalated_at, created_by, updated_by, created_at, updated_at, version`

func (r *issueRepository) Create(ctx context.Context, issue *domain.Issue) error {
	const query = `
        INSERT INTO issues (` + issueColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	if issue.Version == 0 {
		issue.Version = 1
	}
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		issue.ID,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.Priority,
		issue.RelatedService,
		issue.ReportedBy,
		issue.AssignedTo,
		issue.CurrentSupportLevel,
		issue.InitialSupportLevel,
		issue.AssignedAt,
		issue.FirstResponseAt,
		issue.Resolution,
		issue.ResolvedAt,
		issue.EscalationCount,
		issue.LastEscalatedAt,
		issue.CreatedBy,
		issue.UpdatedBy,
		issue.CreatedAt,
		issue.UpdatedAt,
		issue.Version,
	)
	return translate(err)
}

func (r *issueRepository) Update(ctx context.Context, issue *domain.Issue) error {
	const query = `
        UPDATE issues SET title=$1, description=$2, status=$3, priority=$4, assigned_to=$5,
            current_support_level=$6, assigned_at=$7, first_response_at=$8, resolution=$9, resolved_at=$10,
            escalation_count=$11, last_escalated_at=$12, updated_by=$13, updated_at=$14, version=version+1
        WHERE id=$15 AND version=$16`
	db := conn(ctx, r.pool)
	cmd, err := db.Exec(ctx, query,
		issue.Title,
		issue.Description,
		issue.Status,
		issue.Priority,
		issue.AssignedTo,
		issue.CurrentSupportLevel,
		issue.AssignedAt,
		issue.FirstResponseAt,
		issue.Resolution,
		issue.ResolvedAt,
		issue.EscalationCount,
		issue.LastEscalatedAt,
		issue.UpdatedBy,
		issue.UpdatedAt,
		issue.ID,
		issue.Version,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return versionMiss(ctx, db, "issues", issue.ID)
	}
	issue.Version++
	return nil
}

func (r *issueRepository) GetByID(ctx context.Context, id string) (*domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id=$1`
	rows, err := conn(ctx, r.pool).Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, ErrNotFound
	}
	return &issues[0], nil
}

func (r *issueRepository) List(ctx context.Context, filter IssueFilter) ([]domain.Issue, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ReportedBy != nil {
		args = append(args, *filter.ReportedBy)
		clauses = append(clauses, fmt.Sprintf("reported_by=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Services) > 0 {
		placeholders := make([]string, len(filter.Services))
		for i, svc := range filter.Services {
			args = append(args, svc)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("related_service IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM issues WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		issueColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

func (r *issueRepository) ListOpen(ctx context.Context) ([]domain.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE status NOT IN ('RESOLVED','CLOSED') ORDER BY created_at ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIssues(rows)
}

func scanIssues(rows pgx.Rows) ([]domain.Issue, error) {
	var result []domain.Issue
	for rows.Next() {
		var issue domain.Issue
		if err := rows.Scan(
			&issue.ID,
			&issue.Title,
			&issue.Description,
			&issue.Status,
			&issue.Priority,
			&issue.RelatedService,
			&issue.ReportedBy,
			&issue.AssignedTo,
			&issue.CurrentSupportLevel,
			&issue.InitialSupportLevel,
			&issue.AssignedAt,
			&issue.FirstResponseAt,
			&issue.Resolution,
			&issue.ResolvedAt,
			&issue.EscalationCount,
			&issue.LastEscalatedAt,
			&issue.CreatedBy,
			&issue.UpdatedBy,
			&issue.CreatedAt,
			&issue.UpdatedAt,
			&issue.Version,
		); err != nil {
			return nil, err
		}
		result = append(result, issue)
	}
	return result, rows.Err()
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
