// Package model 定义排班约束引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// Shift 班次定义, 描述某天需要一名员工覆盖的时间段
type Shift struct {
	BaseModel
	OrgID      uuid.UUID `json:"org_id" db:"org_id"`
	Date       string    `json:"date" db:"date"`             // YYYY-MM-DD
	StartTime  string    `json:"start_time" db:"start_time"` // HH:MM
	EndTime    string    `json:"end_time" db:"end_time"`     // HH:MM, 不晚于开始时间表示跨午夜
	Position   string    `json:"position,omitempty" db:"position"`
	Department string    `json:"department,omitempty" db:"department"`

	// 创建时显式豁免班次时长上下限检查
	DurationOverride bool `json:"duration_override,omitempty" db:"duration_override"`
}

// Window 返回归一化后的绝对时间区间, 跨午夜班次结束时间顺延到次日
func (s *Shift) Window() (time.Time, time.Time, error) {
	date, err := timeutil.ParseDate(s.Date)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, errors.CodeInvalidTimeRange, "班次日期无效")
	}
	start, err := timeutil.ParseClock(s.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, errors.CodeInvalidTimeRange, "班次开始时间无效")
	}
	end, err := timeutil.ParseClock(s.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, errors.CodeInvalidTimeRange, "班次结束时间无效")
	}
	absStart, absEnd := timeutil.NormalizeShift(date, start, end)
	return absStart, absEnd, nil
}

// Hours 返回班次时长（小时）, 时间非法时为 0
func (s *Shift) Hours() float64 {
	start, end, err := s.Window()
	if err != nil {
		return 0
	}
	return timeutil.Hours(start, end)
}

// Weekday 返回班次所在星期, 日期非法时返回周一
func (s *Shift) Weekday() time.Weekday {
	date, err := timeutil.ParseDate(s.Date)
	if err != nil {
		return time.Monday
	}
	return date.Weekday()
}

// 排班分配状态
const (
	AssignmentProposed  = "proposed"  // 引擎提议, 待确认
	AssignmentConfirmed = "confirmed" // 已确认
	AssignmentCancelled = "cancelled" // 已取消
)

// Assignment 排班分配, 把一名员工绑定到一个班次的归一化时间区间上
type Assignment struct {
	BaseModel
	OrgID      uuid.UUID `json:"org_id" db:"org_id"`
	ScheduleID uuid.UUID `json:"schedule_id" db:"schedule_id"`
	EmployeeID uuid.UUID `json:"employee_id" db:"employee_id"`
	ShiftID    uuid.UUID `json:"shift_id" db:"shift_id"`
	Date       string    `json:"date" db:"date"`
	StartTime  time.Time `json:"start_time" db:"start_time"` // 归一化后的绝对时间
	EndTime    time.Time `json:"end_time" db:"end_time"`
	Position   string    `json:"position,omitempty" db:"position"`
	Status     string    `json:"status" db:"status"`

	// 乐观并发控制
	Version int `json:"version" db:"version"`

	// 警告级冲突的人工豁免记录
	Overridden     bool   `json:"overridden" db:"overridden"`
	OverrideReason string `json:"override_reason,omitempty" db:"override_reason"`
}

// WorkingHours 计算工作时长（小时）
func (a *Assignment) WorkingHours() float64 {
	return a.EndTime.Sub(a.StartTime).Hours()
}

// IsOnDate 检查分配是否在指定日期
func (a *Assignment) IsOnDate(date string) bool {
	return a.Date == date
}

// Interval 返回分配的绝对时间区间
func (a *Assignment) Interval() timeutil.Interval {
	return timeutil.Interval{Start: a.StartTime, End: a.EndTime}
}

// SameSlot 检查两个分配是否在完全相同的时间段上
func (a *Assignment) SameSlot(other *Assignment) bool {
	return a.Date == other.Date &&
		a.StartTime.Equal(other.StartTime) &&
		a.EndTime.Equal(other.EndTime)
}

// 排班计划状态
const (
	ScheduleDraft     = "draft"
	SchedulePublished = "published"
	ScheduleArchived  = "archived"
)

// Schedule 排班计划
type Schedule struct {
	BaseModel
	OrgID       uuid.UUID      `json:"org_id" db:"org_id"`
	Name        string         `json:"name" db:"name"`
	Department  string         `json:"department,omitempty" db:"department"`
	StartDate   string         `json:"start_date" db:"start_date"`
	EndDate     string         `json:"end_date" db:"end_date"`
	Status      string         `json:"status" db:"status"`
	Version     int            `json:"version" db:"version"`
	PublishedAt *time.Time     `json:"published_at,omitempty" db:"published_at"`
	Assignments []*Assignment  `json:"assignments,omitempty" db:"-"`
	Statistics  *ScheduleStats `json:"statistics,omitempty" db:"-"`
}

// ScheduleStats 排班统计
type ScheduleStats struct {
	TotalAssignments int     `json:"total_assignments"`
	TotalEmployees   int     `json:"total_employees"`
	TotalHours       float64 `json:"total_hours"`
	UncoveredShifts  int     `json:"uncovered_shifts"`
	FillRate         float64 `json:"fill_rate"`
	WarningCount     int     `json:"warning_count"`
}

// IsActive 检查计划是否参与跨计划冲突检查
func (s *Schedule) IsActive() bool {
	return s.Status == ScheduleDraft || s.Status == SchedulePublished
}

// FindAssignment 按 ID 查找分配
func (s *Schedule) FindAssignment(id uuid.UUID) *Assignment {
	for _, a := range s.Assignments {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// OverrideAck 警告级冲突的人工豁免确认
type OverrideAck struct {
	Acknowledged bool   `json:"acknowledged"`
	Reason       string `json:"reason,omitempty"`
}

// CommitAssignment 以乐观并发方式确认一条分配
//
// 版本号不匹配时返回 VERSION_CONFLICT, 调用方必须重新读取后再发起提交。
func (s *Schedule) CommitAssignment(id uuid.UUID, expectedVersion int, override *OverrideAck) (*Assignment, error) {
	a := s.FindAssignment(id)
	if a == nil {
		return nil, errors.NotFound("排班记录", id.String())
	}
	if a.Version != expectedVersion {
		return nil, errors.VersionConflict(id.String(), expectedVersion, a.Version)
	}

	a.Status = AssignmentConfirmed
	a.Version++
	if override != nil && override.Acknowledged {
		a.Overridden = true
		a.OverrideReason = override.Reason
	}
	a.UpdatedAt = time.Now()
	return a, nil
}

// Publish 把草稿计划标记为已发布
func (s *Schedule) Publish() error {
	if s.Status != ScheduleDraft {
		return errors.New(errors.CodeInvalidInput, "仅草稿状态的计划可以发布")
	}
	now := time.Now()
	s.Status = SchedulePublished
	s.PublishedAt = &now
	s.Version++
	s.UpdatedAt = now
	return nil
}
