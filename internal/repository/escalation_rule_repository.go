package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// RuleFilter narrows matrix listings.
type RuleFilter struct {
	RelatedService *domain.RelatedService
	Priority       *domain.IssuePriority
	SupportLevel   *domain.SupportLevel
	ActiveOnly     bool
}

// EscalationRuleRepository persists the escalation matrix.
type EscalationRuleRepository interface {
	Create(ctx context.Context, rule *domain.EscalationRule) error
	Update(ctx context.Context, rule *domain.EscalationRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.EscalationRule, error)
	List(ctx context.Context, filter RuleFilter) ([]domain.EscalationRule, error)
	// FindActive returns the active rule occupying key or ErrNotFound.
	FindActive(ctx context.Context, key domain.RuleKey) (*domain.EscalationRule, error)
}

type escalationRuleRepository struct {
	pool *pgxpool.Pool
}

func NewEscalationRuleRepository(pool *pgxpool.Pool) EscalationRuleRepository {
	return &escalationRuleRepository{pool: pool}
}

const ruleColumns = `id, related_service, priority, support_level, initial_assignment_level, escalate_to_level,
               escalation_time_minutes, response_time_minutes, resolution_time_minutes, active,
               created_by, updated_by, created_at, updated_at`

func (r *escalationRuleRepository) Create(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        INSERT INTO escalation_rules (` + ruleColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		rule.ID,
		rule.RelatedService,
		rule.Priority,
		rule.SupportLevel,
		rule.InitialAssignmentLevel,
		rule.EscalateToLevel,
		rule.EscalationTimeMinutes,
		rule.ResponseTimeMinutes,
		rule.ResolutionTimeMinutes,
		rule.Active,
		rule.CreatedBy,
		rule.UpdatedBy,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	return translate(err)
}

func (r *escalationRuleRepository) Update(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        UPDATE escalation_rules SET related_service=$1, priority=$2, support_level=$3, initial_assignment_level=$4,
            escalate_to_level=$5, escalation_time_minutes=$6, response_time_minutes=$7, resolution_time_minutes=$8,
            active=$9, updated_by=$10, updated_at=$11
        WHERE id=$12`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query,
		rule.RelatedService,
		rule.Priority,
		rule.SupportLevel,
		rule.InitialAssignmentLevel,
		rule.EscalateToLevel,
		rule.EscalationTimeMinutes,
		rule.ResponseTimeMinutes,
		rule.ResolutionTimeMinutes,
		rule.Active,
		rule.UpdatedBy,
		rule.UpdatedAt,
		rule.ID,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *escalationRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM escalation_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *escalationRuleRepository) GetByID(ctx context.Context, id string) (*domain.EscalationRule, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+ruleColumns+` FROM escalation_rules WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rules, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNotFound
	}
	return &rules[0], nil
}

func (r *escalationRuleRepository) List(ctx context.Context, filter RuleFilter) ([]domain.EscalationRule, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if filter.RelatedService != nil {
		args = append(args, *filter.RelatedService)
		clauses = append(clauses, fmt.Sprintf("related_service=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.SupportLevel != nil {
		args = append(args, *filter.SupportLevel)
		clauses = append(clauses, fmt.Sprintf("support_level=$%d", len(args)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "active")
	}
	query := fmt.Sprintf(`SELECT %s FROM escalation_rules WHERE %s
        ORDER BY related_service, priority, support_level, created_at`, ruleColumns, strings.Join(clauses, " AND "))

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *escalationRuleRepository) FindActive(ctx context.Context, key domain.RuleKey) (*domain.EscalationRule, error) {
	const query = `SELECT ` + ruleColumns + ` FROM escalation_rules
        WHERE related_service=$1 AND priority=$2 AND support_level=$3 AND active LIMIT 1`
	rows, err := conn(ctx, r.pool).Query(ctx, query, key.RelatedService, key.Priority, key.SupportLevel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rules, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNotFound
	}
	return &rules[0], nil
}

func scanRules(rows pgx.Rows) ([]domain.EscalationRule, error) {
	var result []domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		if err := rows.Scan(
			&rule.ID,
			&rule.RelatedService,
			&rule.Priority,
			&rule.SupportLevel,
			&rule.InitialAssignmentLevel,
			&rule.EscalateToLevel,
			&rule.EscalationTimeMinutes,
			&rule.ResponseTimeMinutes,
			&rule.ResolutionTimeMinutes,
			&rule.Active,
			&rule.CreatedBy,
			&rule.UpdatedBy,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}
