// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// RuleRepository 规则仓储
//
// 已确认的规则行不可变, 所有写操作都带 status='draft' 条件,
// 变更已确认规则只能通过 NewVersion 派生新行。
type RuleRepository struct {
	db DB
}

// NewRuleRepository 创建规则仓储
func NewRuleRepository(db DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create 创建规则, 新建规则始终是草稿
func (r *RuleRepository) Create(ctx context.Context, rule *model.Rule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.Status == "" {
		rule.Status = model.RuleDraft
	}
	if rule.Version == 0 {
		rule.Version = 1
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	constraintsJSON, _ := json.Marshal(rule.Constraints)

	query := `
		INSERT INTO rules (
			id, org_id, employee_id, department, type, raw_text, constraints,
			priority, status, version, supersedes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.OrgID, rule.EmployeeID, rule.Department, rule.Type,
		rule.RawText, constraintsJSON, rule.Priority, rule.Status,
		rule.Version, rule.Supersedes, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("创建规则失败: %w", err)
	}

	return nil
}

// GetByID 根据 ID 获取规则
func (r *RuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	query := `
		SELECT id, org_id, employee_id, department, type, raw_text, constraints,
			priority, status, version, supersedes, created_at, updated_at
		FROM rules
		WHERE id = $1 AND deleted_at IS NULL
	`

	return scanRule(r.db.QueryRowContext(ctx, query, id))
}

// Update 更新草稿规则
//
// 已确认的规则直接返回 RULE_IMMUTABLE。
func (r *RuleRepository) Update(ctx context.Context, rule *model.Rule) error {
	rule.UpdatedAt = time.Now()

	constraintsJSON, _ := json.Marshal(rule.Constraints)

	query := `
		UPDATE rules SET
			employee_id = $2, department = $3, type = $4, raw_text = $5,
			constraints = $6, priority = $7, updated_at = $8
		WHERE id = $1 AND status = 'draft' AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.EmployeeID, rule.Department, rule.Type, rule.RawText,
		constraintsJSON, rule.Priority, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("更新规则失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return r.mutationBlocked(ctx, rule.ID)
	}

	return nil
}

// Confirm 确认规则, 确认后行被冻结并开始参与冲突检测
func (r *RuleRepository) Confirm(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	query := `
		UPDATE rules SET status = 'confirmed', updated_at = $2
		WHERE id = $1 AND status = 'draft' AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return nil, fmt.Errorf("确认规则失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, r.mutationBlocked(ctx, id)
	}

	return r.GetByID(ctx, id)
}

// NewVersion 基于已确认规则派生新草稿版本
func (r *RuleRepository) NewVersion(ctx context.Context, id uuid.UUID) (*model.Rule, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NotFound("规则", id.String())
	}
	if !current.IsConfirmed() {
		return nil, errors.New(errors.CodeInvalidInput, "草稿规则可以直接修改，无需创建新版本")
	}

	next := current.NewVersion()
	if err := r.Create(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Delete 软删除规则, 已确认的规则同样允许删除（退役）
func (r *RuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE rules SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("删除规则失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("规则", id.String())
	}

	return nil
}

// List 查询规则列表
func (r *RuleRepository) List(ctx context.Context, filter ListFilter) ([]*model.Rule, error) {
	query := `
		SELECT id, org_id, employee_id, department, type, raw_text, constraints,
			priority, status, version, supersedes, created_at, updated_at
		FROM rules
		WHERE deleted_at IS NULL
	`
	var args []interface{}
	argIndex := 1

	if filter.OrgID != nil {
		query += fmt.Sprintf(" AND org_id = $%d", argIndex)
		args = append(args, *filter.OrgID)
		argIndex++
	}
	if filter.EmployeeID != nil {
		query += fmt.Sprintf(" AND employee_id = $%d", argIndex)
		args = append(args, *filter.EmployeeID)
		argIndex++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, filter.Status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY priority DESC, created_at ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	return r.queryRules(ctx, query, args...)
}

// ListForEmployee 获取作用于某员工的全部已确认规则
//
// 包括员工专属规则、其部门的部门级规则以及组织级规则。
func (r *RuleRepository) ListForEmployee(ctx context.Context, orgID uuid.UUID, emp *model.Employee) ([]*model.Rule, error) {
	query := `
		SELECT id, org_id, employee_id, department, type, raw_text, constraints,
			priority, status, version, supersedes, created_at, updated_at
		FROM rules
		WHERE org_id = $1 AND status = 'confirmed' AND deleted_at IS NULL
			AND (employee_id = $2 OR (employee_id IS NULL AND (department = '' OR department = $3)))
		ORDER BY priority DESC, created_at ASC
	`

	return r.queryRules(ctx, query, orgID, emp.ID, emp.Department)
}

// mutationBlocked 区分规则不存在与规则已被冻结
func (r *RuleRepository) mutationBlocked(ctx context.Context, id uuid.UUID) error {
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return errors.NotFound("规则", id.String())
	}
	return errors.RuleImmutable(id.String())
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*model.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询规则失败: %w", err)
	}
	defer rows.Close()

	var rules []*model.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, nil
}

// scanRule 扫描单行规则数据
func scanRule(s Scanner) (*model.Rule, error) {
	rule := &model.Rule{}
	var employeeID, supersedes uuid.NullUUID
	var constraintsJSON []byte

	err := s.Scan(
		&rule.ID, &rule.OrgID, &employeeID, &rule.Department, &rule.Type,
		&rule.RawText, &constraintsJSON, &rule.Priority, &rule.Status,
		&rule.Version, &supersedes, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描规则数据失败: %w", err)
	}

	if employeeID.Valid {
		rule.EmployeeID = &employeeID.UUID
	}
	if supersedes.Valid {
		rule.Supersedes = &supersedes.UUID
	}
	json.Unmarshal(constraintsJSON, &rule.Constraints)

	return rule, nil
}
