// Package model 定义排班约束引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// ConflictType 冲突类型, 常量顺序即检测优先级
type ConflictType string

const (
	ConflictDoubleBooking        ConflictType = "double_booking"         // 同员工同时段重复排班
	ConflictOverlap              ConflictType = "overlap"                // 同员工班次部分重叠
	ConflictDurationBounds       ConflictType = "duration_bounds"        // 班次时长越界
	ConflictInsufficientRest     ConflictType = "insufficient_rest"      // 班间休息不足
	ConflictMaxHoursExceeded     ConflictType = "max_hours_exceeded"     // 周工时超限
	ConflictAvailabilityViolated ConflictType = "availability_violation" // 违反可用性
	ConflictCrossSchedule        ConflictType = "cross_schedule_overlap" // 跨计划重叠
)

// ConflictSeverity 冲突严重级别
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical" // 阻断性, 不可豁免
	SeverityError    ConflictSeverity = "error"    // 错误, 不可豁免
	SeverityWarning  ConflictSeverity = "warning"  // 警告, 可人工豁免
)

// SeverityOf 返回冲突类型对应的严重级别
func SeverityOf(t ConflictType) ConflictSeverity {
	switch t {
	case ConflictDoubleBooking, ConflictOverlap, ConflictMaxHoursExceeded:
		return SeverityCritical
	case ConflictDurationBounds:
		return SeverityError
	default:
		return SeverityWarning
	}
}

// OverridableOf 返回冲突类型是否允许人工豁免
func OverridableOf(t ConflictType) bool {
	return SeverityOf(t) == SeverityWarning
}

// ConflictDetails 冲突的结构化数值明细
type ConflictDetails struct {
	OverlapHours     float64    `json:"overlap_hours,omitempty"`
	ShiftHours       float64    `json:"shift_hours,omitempty"`
	MinShiftHours    float64    `json:"min_shift_hours,omitempty"`
	MaxShiftHours    float64    `json:"max_shift_hours,omitempty"`
	RequiredRest     float64    `json:"required_rest,omitempty"`
	ActualRest       float64    `json:"actual_rest,omitempty"`
	TotalWeeklyHours float64    `json:"total_weekly_hours,omitempty"`
	MaxWeeklyHours   float64    `json:"max_weekly_hours,omitempty"`
	RuleID           *uuid.UUID `json:"rule_id,omitempty"`
	OtherScheduleID  *uuid.UUID `json:"other_schedule_id,omitempty"`
}

// Conflict 一条检测出的排班冲突
type Conflict struct {
	Type        ConflictType     `json:"type"`
	Severity    ConflictSeverity `json:"severity"`
	Overridable bool             `json:"overridable"`
	EmployeeID  uuid.UUID        `json:"employee_id"`
	Date        string           `json:"date,omitempty"`
	Assignments []uuid.UUID      `json:"assignments,omitempty"` // 涉及的分配
	Details     ConflictDetails  `json:"details"`
	Message     string           `json:"message"`
	Suggestions []Suggestion     `json:"suggestions,omitempty"`
}

// NewConflict 创建冲突并填充级别与豁免属性
func NewConflict(t ConflictType, employeeID uuid.UUID) *Conflict {
	return &Conflict{
		Type:        t,
		Severity:    SeverityOf(t),
		Overridable: OverridableOf(t),
		EmployeeID:  employeeID,
	}
}

// IsBlocking 检查冲突是否阻断排班提交
func (c *Conflict) IsBlocking() bool {
	return !c.Overridable
}

// SuggestionType 化解建议类型
type SuggestionType string

const (
	SuggestAlternativeEmployee SuggestionType = "alternative_employee" // 改派其他员工
	SuggestSplitShift          SuggestionType = "split_shift"          // 拆分班次
	SuggestAdjustTime          SuggestionType = "adjust_time"          // 调整时间
	SuggestReduceHours         SuggestionType = "reduce_hours"         // 缩减时长
)

// Suggestion 冲突化解建议
type Suggestion struct {
	Type         SuggestionType `json:"type"`
	Rank         int            `json:"rank"`
	Score        float64        `json:"score"`
	Reason       string         `json:"reason"`
	EmployeeID   *uuid.UUID     `json:"employee_id,omitempty"`
	EmployeeName string         `json:"employee_name,omitempty"`
	WeeklyHours  float64        `json:"weekly_hours,omitempty"`
	Parts        []TimeSpan     `json:"parts,omitempty"` // 拆分方案
	NewStart     *time.Time     `json:"new_start,omitempty"`
	NewEnd       *time.Time     `json:"new_end,omitempty"`
}
