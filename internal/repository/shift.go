// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// ShiftRepository 班次仓储
type ShiftRepository struct {
	db DB
}

// NewShiftRepository 创建班次仓储
func NewShiftRepository(db DB) *ShiftRepository {
	return &ShiftRepository{db: db}
}

// Create 创建班次
func (r *ShiftRepository) Create(ctx context.Context, shift *model.Shift) error {
	if shift.ID == uuid.Nil {
		shift.ID = uuid.New()
	}
	now := time.Now()
	shift.CreatedAt = now
	shift.UpdatedAt = now

	query := `
		INSERT INTO shifts (
			id, org_id, date, start_time, end_time, position, department,
			duration_override, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		shift.ID, shift.OrgID, shift.Date, shift.StartTime, shift.EndTime,
		shift.Position, shift.Department, shift.DurationOverride,
		shift.CreatedAt, shift.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("创建班次失败: %w", err)
	}

	return nil
}

// CreateBatch 批量创建班次, 排班周期的班次网格一次写入
func (r *ShiftRepository) CreateBatch(ctx context.Context, shifts []*model.Shift) error {
	if len(shifts) == 0 {
		return nil
	}

	var values []string
	var args []interface{}
	argIndex := 1

	now := time.Now()
	for _, s := range shifts {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CreatedAt = now
		s.UpdatedAt = now

		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			argIndex, argIndex+1, argIndex+2, argIndex+3, argIndex+4,
			argIndex+5, argIndex+6, argIndex+7, argIndex+8, argIndex+9,
		))
		args = append(args,
			s.ID, s.OrgID, s.Date, s.StartTime, s.EndTime,
			s.Position, s.Department, s.DurationOverride, s.CreatedAt, s.UpdatedAt,
		)
		argIndex += 10
	}

	query := fmt.Sprintf(`
		INSERT INTO shifts (
			id, org_id, date, start_time, end_time, position, department,
			duration_override, created_at, updated_at
		) VALUES %s
	`, strings.Join(values, ", "))

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("批量创建班次失败: %w", err)
	}

	return nil
}

// GetByID 根据 ID 获取班次
func (r *ShiftRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Shift, error) {
	query := `
		SELECT id, org_id, date, start_time, end_time, position, department,
			duration_override, created_at, updated_at
		FROM shifts
		WHERE id = $1 AND deleted_at IS NULL
	`

	return scanShift(r.db.QueryRowContext(ctx, query, id))
}

// Update 更新班次
func (r *ShiftRepository) Update(ctx context.Context, shift *model.Shift) error {
	shift.UpdatedAt = time.Now()

	query := `
		UPDATE shifts SET
			date = $2, start_time = $3, end_time = $4, position = $5,
			department = $6, duration_override = $7, updated_at = $8
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		shift.ID, shift.Date, shift.StartTime, shift.EndTime,
		shift.Position, shift.Department, shift.DurationOverride, shift.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("更新班次失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("班次", shift.ID.String())
	}

	return nil
}

// Delete 软删除班次
func (r *ShiftRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE shifts SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("删除班次失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("班次", id.String())
	}

	return nil
}

// List 查询班次列表
func (r *ShiftRepository) List(ctx context.Context, filter ListFilter) ([]*model.Shift, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	conditions = append(conditions, "deleted_at IS NULL")

	if filter.OrgID != nil {
		conditions = append(conditions, fmt.Sprintf("org_id = $%d", argIndex))
		args = append(args, *filter.OrgID)
		argIndex++
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", argIndex))
		args = append(args, filter.Department)
		argIndex++
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("position ILIKE $%d", argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}
	if filter.StartDate != "" {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", argIndex))
		args = append(args, filter.StartDate)
		argIndex++
	}
	if filter.EndDate != "" {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", argIndex))
		args = append(args, filter.EndDate)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	// 查询总数
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM shifts WHERE %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计班次数量失败: %w", err)
	}

	// 查询列表
	query := fmt.Sprintf(`
		SELECT id, org_id, date, start_time, end_time, position, department,
			duration_override, created_at, updated_at
		FROM shifts
		WHERE %s
		ORDER BY date, start_time
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询班次列表失败: %w", err)
	}
	defer rows.Close()

	var shifts []*model.Shift
	for rows.Next() {
		s, err := scanShift(rows)
		if err != nil {
			return nil, 0, err
		}
		shifts = append(shifts, s)
	}

	return shifts, total, nil
}

// ListByDateRange 获取组织在日期范围内的全部班次
func (r *ShiftRepository) ListByDateRange(ctx context.Context, orgID uuid.UUID, startDate, endDate string) ([]*model.Shift, error) {
	filter := DefaultListFilter().WithOrgID(orgID).WithDateRange(startDate, endDate).WithLimit(10000)
	shifts, _, err := r.List(ctx, filter)
	return shifts, err
}

// scanShift 扫描单行班次
func scanShift(s Scanner) (*model.Shift, error) {
	shift := &model.Shift{}

	err := s.Scan(
		&shift.ID, &shift.OrgID, &shift.Date, &shift.StartTime, &shift.EndTime,
		&shift.Position, &shift.Department, &shift.DurationOverride,
		&shift.CreatedAt, &shift.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描班次失败: %w", err)
	}

	return shift, nil
}
