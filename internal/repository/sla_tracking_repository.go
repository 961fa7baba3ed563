package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// SLATrackingRepository persists per-issue SLA state.
type SLATrackingRepository interface {
	Create(ctx context.Context, tracking *domain.SLATracking) error
	// Update is optimistic on Version, like IssueRepository.Update.
	Update(ctx context.Context, tracking *domain.SLATracking) error
	GetByIssue(ctx context.Context, issueID string) (*domain.SLATracking, error)
	// ListBreaches returns records with either budget marked missed.
	ListBreaches(ctx context.Context) ([]domain.SLATracking, error)
}

type slaTrackingRepository struct {
	pool *pgxpool.Pool
}

func NewSLATrackingRepository(pool *pgxpool.Pool) SLATrackingRepository {
	return &slaTrackingRepository{pool: pool}
}

const slaColumns = `id, issue_id, response_time_minutes, resolution_time_minutes, targets_applied_at, first_response_at,
               resolved_at, response_sla_met, resolution_sla_met, response_sla_breach_at, resolution_sla_breach_at,
               actual_response_time_minutes, actual_resolution_time_minutes, created_at, updated_at, version`

func (r *slaTrackingRepository) Create(ctx context.Context, t *domain.SLATracking) error {
	const query = `
        INSERT INTO sla_trackings (` + slaColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	if t.Version == 0 {
		t.Version = 1
	}
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		t.ID,
		t.IssueID,
		t.ResponseTimeMinutes,
		t.ResolutionTimeMinutes,
		t.TargetsAppliedAt,
		t.FirstResponseAt,
		t.ResolvedAt,
		t.ResponseSLAMet,
		t.ResolutionSLAMet,
		t.ResponseSLABreachAt,
		t.ResolutionSLABreachAt,
		t.ActualResponseTimeMinutes,
		t.ActualResolutionTimeMinutes,
		t.CreatedAt,
		t.UpdatedAt,
		t.Version,
	)
	return translate(err)
}

func (r *slaTrackingRepository) Update(ctx context.Context, t *domain.SLATracking) error {
	const query = `
        UPDATE sla_trackings SET response_time_minutes=$1, resolution_time_minutes=$2, targets_applied_at=$3,
            first_response_at=$4, resolved_at=$5, response_sla_met=$6, resolution_sla_met=$7,
            response_sla_breach_at=$8, resolution_sla_breach_at=$9, actual_response_time_minutes=$10,
            actual_resolution_time_minutes=$11, updated_at=$12, version=version+1
        WHERE id=$13 AND version=$14`
	db := conn(ctx, r.pool)
	cmd, err := db.Exec(ctx, query,
		t.ResponseTimeMinutes,
		t.ResolutionTimeMinutes,
		t.TargetsAppliedAt,
		t.FirstResponseAt,
		t.ResolvedAt,
		t.ResponseSLAMet,
		t.ResolutionSLAMet,
		t.ResponseSLABreachAt,
		t.ResolutionSLABreachAt,
		t.ActualResponseTimeMinutes,
		t.ActualResolutionTimeMinutes,
		t.UpdatedAt,
		t.ID,
		t.Version,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return versionMiss(ctx, db, "sla_trackings", t.ID)
	}
	t.Version++
	return nil
}

func (r *slaTrackingRepository) GetByIssue(ctx context.Context, issueID string) (*domain.SLATracking, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+slaColumns+` FROM sla_trackings WHERE issue_id=$1`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items, err := scanTrackings(rows)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return &items[0], nil
}

func (r *slaTrackingRepository) ListBreaches(ctx context.Context) ([]domain.SLATracking, error) {
	const query = `SELECT ` + slaColumns + ` FROM sla_trackings
        WHERE response_sla_met = FALSE OR resolution_sla_met = FALSE ORDER BY created_at ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrackings(rows)
}

func scanTrackings(rows pgx.Rows) ([]domain.SLATracking, error) {
	var result []domain.SLATracking
	for rows.Next() {
		var t domain.SLATracking
		if err := rows.Scan(
			&t.ID,
			&t.IssueID,
			&t.ResponseTimeMinutes,
			&t.ResolutionTimeMinutes,
			&t.TargetsAppliedAt,
			&t.FirstResponseAt,
			&t.ResolvedAt,
			&t.ResponseSLAMet,
			&t.ResolutionSLAMet,
			&t.ResponseSLABreachAt,
			&t.ResolutionSLABreachAt,
			&t.ActualResponseTimeMinutes,
			&t.ActualResolutionTimeMinutes,
			&t.CreatedAt,
			&t.UpdatedAt,
			&t.Version,
		); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}
