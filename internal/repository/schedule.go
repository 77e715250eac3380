// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// ScheduleRepository 排班计划与分配仓储
type ScheduleRepository struct {
	db DB
}

// NewScheduleRepository 创建排班仓储
func NewScheduleRepository(db DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create 创建排班计划
func (r *ScheduleRepository) Create(ctx context.Context, schedule *model.Schedule) error {
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.Status == "" {
		schedule.Status = model.ScheduleDraft
	}
	if schedule.Version == 0 {
		schedule.Version = 1
	}
	now := time.Now()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now

	statsJSON, _ := json.Marshal(schedule.Statistics)

	query := `
		INSERT INTO schedules (
			id, org_id, name, department, start_date, end_date, status,
			version, published_at, statistics, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.ExecContext(ctx, query,
		schedule.ID, schedule.OrgID, schedule.Name, schedule.Department,
		schedule.StartDate, schedule.EndDate, schedule.Status,
		schedule.Version, schedule.PublishedAt, statsJSON,
		schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("创建排班计划失败: %w", err)
	}

	return nil
}

// GetByID 根据 ID 获取排班计划, 不含分配明细
func (r *ScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	query := `
		SELECT id, org_id, name, department, start_date, end_date, status,
			version, published_at, statistics, created_at, updated_at
		FROM schedules
		WHERE id = $1 AND deleted_at IS NULL
	`

	return scanSchedule(r.db.QueryRowContext(ctx, query, id))
}

// GetWithAssignments 获取排班计划及其全部分配
func (r *ScheduleRepository) GetWithAssignments(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	schedule, err := r.GetByID(ctx, id)
	if err != nil || schedule == nil {
		return schedule, err
	}

	assignments, err := r.GetAssignments(ctx, id)
	if err != nil {
		return nil, err
	}
	schedule.Assignments = assignments
	return schedule, nil
}

// Update 更新排班计划基础字段与统计
func (r *ScheduleRepository) Update(ctx context.Context, schedule *model.Schedule) error {
	schedule.UpdatedAt = time.Now()
	statsJSON, _ := json.Marshal(schedule.Statistics)

	query := `
		UPDATE schedules SET
			name = $2, department = $3, start_date = $4, end_date = $5,
			status = $6, version = $7, published_at = $8, statistics = $9,
			updated_at = $10
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		schedule.ID, schedule.Name, schedule.Department,
		schedule.StartDate, schedule.EndDate, schedule.Status,
		schedule.Version, schedule.PublishedAt, statsJSON, schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("更新排班计划失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("排班计划", schedule.ID.String())
	}

	return nil
}

// Delete 软删除排班计划, 其分配一并取消
func (r *ScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	now := time.Now()

	if _, err := r.db.ExecContext(ctx,
		`UPDATE assignments SET status = 'cancelled', updated_at = $2 WHERE schedule_id = $1`,
		id, now,
	); err != nil {
		return fmt.Errorf("取消排班分配失败: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE schedules SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`,
		id, now,
	)
	if err != nil {
		return fmt.Errorf("删除排班计划失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("排班计划", id.String())
	}

	return nil
}

// List 查询排班计划列表
func (r *ScheduleRepository) List(ctx context.Context, filter ListFilter) ([]*model.Schedule, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	conditions = append(conditions, "deleted_at IS NULL")

	if filter.OrgID != nil {
		conditions = append(conditions, fmt.Sprintf("org_id = $%d", argIndex))
		args = append(args, *filter.OrgID)
		argIndex++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}
	if filter.StartDate != "" {
		conditions = append(conditions, fmt.Sprintf("end_date >= $%d", argIndex))
		args = append(args, filter.StartDate)
		argIndex++
	}
	if filter.EndDate != "" {
		conditions = append(conditions, fmt.Sprintf("start_date <= $%d", argIndex))
		args = append(args, filter.EndDate)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM schedules WHERE %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计排班数量失败: %w", err)
	}

	orderBy := filter.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	orderDir := filter.OrderDir
	if orderDir == "" {
		orderDir = "desc"
	}

	query := fmt.Sprintf(`
		SELECT id, org_id, name, department, start_date, end_date, status,
			version, published_at, statistics, created_at, updated_at
		FROM schedules
		WHERE %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, whereClause, orderBy, orderDir, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询排班列表失败: %w", err)
	}
	defer rows.Close()

	var schedules []*model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		schedules = append(schedules, s)
	}

	return schedules, total, nil
}

// ListActive 获取组织下参与跨计划检查的计划及其分配
//
// window 为零值时不限定日期, 否则只装入与范围重叠的计划。
func (r *ScheduleRepository) ListActive(ctx context.Context, orgID uuid.UUID, window model.DateRange) ([]*model.Schedule, error) {
	filter := DefaultListFilter().WithOrgID(orgID).WithDateRange(window.StartDate, window.EndDate).WithLimit(1000)
	schedules, _, err := r.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	var active []*model.Schedule
	for _, s := range schedules {
		if !s.IsActive() {
			continue
		}
		assignments, err := r.GetAssignments(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.Assignments = assignments
		active = append(active, s)
	}
	return active, nil
}

// InsertAssignments 批量写入排班分配, 通常在事务内调用
func (r *ScheduleRepository) InsertAssignments(ctx context.Context, assignments []*model.Assignment) error {
	query := `
		INSERT INTO assignments (
			id, org_id, schedule_id, employee_id, shift_id, date,
			start_time, end_time, position, status, version,
			overridden, override_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	now := time.Now()
	for _, a := range assignments {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.Status == "" {
			a.Status = model.AssignmentProposed
		}
		if a.Version == 0 {
			a.Version = 1
		}
		a.CreatedAt = now
		a.UpdatedAt = now

		if _, err := r.db.ExecContext(ctx, query,
			a.ID, a.OrgID, a.ScheduleID, a.EmployeeID, a.ShiftID, a.Date,
			a.StartTime, a.EndTime, a.Position, a.Status, a.Version,
			a.Overridden, a.OverrideReason, a.CreatedAt, a.UpdatedAt,
		); err != nil {
			return fmt.Errorf("写入排班分配失败: %w", err)
		}
	}
	return nil
}

// GetAssignments 获取计划下的全部分配
func (r *ScheduleRepository) GetAssignments(ctx context.Context, scheduleID uuid.UUID) ([]*model.Assignment, error) {
	query := `
		SELECT id, org_id, schedule_id, employee_id, shift_id, date,
			start_time, end_time, position, status, version,
			overridden, override_reason, created_at, updated_at
		FROM assignments
		WHERE schedule_id = $1
		ORDER BY date, start_time
	`

	return r.queryAssignments(ctx, query, scheduleID)
}

// ListAssignmentsByEmployee 获取员工在日期范围内的分配
func (r *ScheduleRepository) ListAssignmentsByEmployee(ctx context.Context, employeeID uuid.UUID, startDate, endDate string) ([]*model.Assignment, error) {
	query := `
		SELECT id, org_id, schedule_id, employee_id, shift_id, date,
			start_time, end_time, position, status, version,
			overridden, override_reason, created_at, updated_at
		FROM assignments
		WHERE employee_id = $1 AND date >= $2 AND date <= $3 AND status != 'cancelled'
		ORDER BY date, start_time
	`

	return r.queryAssignments(ctx, query, employeeID, startDate, endDate)
}

// GetAssignment 根据 ID 获取分配
func (r *ScheduleRepository) GetAssignment(ctx context.Context, id uuid.UUID) (*model.Assignment, error) {
	query := `
		SELECT id, org_id, schedule_id, employee_id, shift_id, date,
			start_time, end_time, position, status, version,
			overridden, override_reason, created_at, updated_at
		FROM assignments
		WHERE id = $1
	`

	return scanAssignment(r.db.QueryRowContext(ctx, query, id))
}

// CommitAssignment 以乐观并发方式确认一条分配
//
// 版本号不匹配时返回 VERSION_CONFLICT, 由调用方重新读取后再发起,
// 这里绝不自动重试。
func (r *ScheduleRepository) CommitAssignment(ctx context.Context, id uuid.UUID, expectedVersion int, override *model.OverrideAck) (*model.Assignment, error) {
	overridden := false
	reason := ""
	if override != nil && override.Acknowledged {
		overridden = true
		reason = override.Reason
	}

	query := `
		UPDATE assignments SET
			status = 'confirmed', version = version + 1,
			overridden = $3, override_reason = $4, updated_at = $5
		WHERE id = $1 AND version = $2
		RETURNING id, org_id, schedule_id, employee_id, shift_id, date,
			start_time, end_time, position, status, version,
			overridden, override_reason, created_at, updated_at
	`

	committed, err := scanAssignment(r.db.QueryRowContext(ctx, query,
		id, expectedVersion, overridden, reason, time.Now(),
	))
	if err != nil {
		return nil, err
	}
	if committed != nil {
		return committed, nil
	}

	// 零行更新: 区分记录不存在与版本冲突
	var current int
	err = r.db.QueryRowContext(ctx, `SELECT version FROM assignments WHERE id = $1`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("排班记录", id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("查询排班记录失败: %w", err)
	}
	return nil, errors.VersionConflict(id.String(), expectedVersion, current)
}

// CancelAssignment 取消一条分配
func (r *ScheduleRepository) CancelAssignment(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE assignments SET status = 'cancelled', updated_at = $2 WHERE id = $1`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("取消排班分配失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("排班记录", id.String())
	}
	return nil
}

// Publish 把草稿计划标记为已发布
func (r *ScheduleRepository) Publish(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	query := `
		UPDATE schedules SET
			status = 'published', published_at = $2, version = version + 1, updated_at = $2
		WHERE id = $1 AND status = 'draft' AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return nil, fmt.Errorf("发布排班计划失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, errors.NotFound("排班计划", id.String())
		}
		return nil, errors.New(errors.CodeInvalidInput, "仅草稿状态的计划可以发布")
	}

	return r.GetWithAssignments(ctx, id)
}

func (r *ScheduleRepository) queryAssignments(ctx context.Context, query string, args ...interface{}) ([]*model.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询排班分配失败: %w", err)
	}
	defer rows.Close()

	var assignments []*model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	return assignments, nil
}

// scanSchedule 扫描单行排班计划
func scanSchedule(s Scanner) (*model.Schedule, error) {
	schedule := &model.Schedule{}
	var publishedAt sql.NullTime
	var statsJSON []byte

	err := s.Scan(
		&schedule.ID, &schedule.OrgID, &schedule.Name, &schedule.Department,
		&schedule.StartDate, &schedule.EndDate, &schedule.Status,
		&schedule.Version, &publishedAt, &statsJSON,
		&schedule.CreatedAt, &schedule.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描排班计划失败: %w", err)
	}

	if publishedAt.Valid {
		schedule.PublishedAt = &publishedAt.Time
	}
	if len(statsJSON) > 0 {
		json.Unmarshal(statsJSON, &schedule.Statistics)
	}

	return schedule, nil
}

// scanAssignment 扫描单行排班分配
func scanAssignment(s Scanner) (*model.Assignment, error) {
	a := &model.Assignment{}

	err := s.Scan(
		&a.ID, &a.OrgID, &a.ScheduleID, &a.EmployeeID, &a.ShiftID, &a.Date,
		&a.StartTime, &a.EndTime, &a.Position, &a.Status, &a.Version,
		&a.Overridden, &a.OverrideReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描排班分配失败: %w", err)
	}

	return a, nil
}
