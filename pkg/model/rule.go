// Package model 定义排班约束引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// RuleType 规则类型
type RuleType string

const (
	RuleAvailability RuleType = "availability" // 可用性（某些天/时段不可排）
	RulePreference   RuleType = "preference"   // 偏好（软约束, 仅影响评分）
	RuleRequirement  RuleType = "requirement"  // 要求（必须满足的排班量）
	RuleRestriction  RuleType = "restriction"  // 限制（工时等上限）
)

// ConstraintKind 结构化约束种类
type ConstraintKind string

const (
	KindDaysOff       ConstraintKind = "days_off"       // 指定星期整天不可排
	KindTimeWindow    ConstraintKind = "time_window"    // 指定时段不可排
	KindMaxHours      ConstraintKind = "max_hours"      // 周工时上限
	KindMinHours      ConstraintKind = "min_hours"      // 周工时下限
	KindWorkDays      ConstraintKind = "work_days"      // 必须排班的星期
	KindPreferredDays ConstraintKind = "preferred_days" // 偏好星期
	KindAvoidDays     ConstraintKind = "avoid_days"     // 回避星期
	KindPreferredTime ConstraintKind = "preferred_time" // 偏好时段
	KindAvoidTime     ConstraintKind = "avoid_time"     // 回避时段
)

// RuleConstraint 规则解析出的单条结构化约束
//
// MaxHours 承载工时界限数值, 上限还是下限由 Kind 决定。
type RuleConstraint struct {
	Kind      ConstraintKind       `json:"kind"`
	Days      []time.Weekday       `json:"days,omitempty"`
	TimeRange *timeutil.ClockRange `json:"time_range,omitempty"`
	MaxHours  *float64             `json:"max_hours,omitempty"`
	Note      string               `json:"note,omitempty"`
}

// 规则状态
const (
	RuleDraft     = "draft"     // 可编辑
	RuleConfirmed = "confirmed" // 已确认, 不可变, 参与检测
)

// Rule 排班规则
//
// 由自然语言文本解析而来。确认后不可修改, 变更通过创建新版本完成。
type Rule struct {
	BaseModel
	OrgID       uuid.UUID        `json:"org_id" db:"org_id"`
	EmployeeID  *uuid.UUID       `json:"employee_id,omitempty" db:"employee_id"` // 为空表示部门级规则
	Department  string           `json:"department,omitempty" db:"department"`
	Type        RuleType         `json:"type" db:"type"`
	RawText     string           `json:"raw_text" db:"raw_text"`
	Constraints []RuleConstraint `json:"constraints" db:"constraints"`
	Priority    int              `json:"priority" db:"priority"`
	Status      string           `json:"status" db:"status"`
	Version     int              `json:"version" db:"version"`
	Supersedes  *uuid.UUID       `json:"supersedes,omitempty" db:"supersedes"` // 被替代的旧版本
}

// IsConfirmed 检查规则是否已确认
func (r *Rule) IsConfirmed() bool {
	return r.Status == RuleConfirmed
}

// AppliesTo 检查规则是否作用于某员工
func (r *Rule) AppliesTo(e *Employee) bool {
	if r.EmployeeID != nil {
		return *r.EmployeeID == e.ID
	}
	if r.Department != "" {
		return r.Department == e.Department
	}
	return true
}

// Confirm 把草稿规则标记为已确认
func (r *Rule) Confirm() error {
	if r.Status == RuleConfirmed {
		return errors.RuleImmutable(r.ID.String())
	}
	r.Status = RuleConfirmed
	r.UpdatedAt = time.Now()
	return nil
}

// NewVersion 基于已确认规则派生可编辑的新版本
func (r *Rule) NewVersion() *Rule {
	next := *r
	next.BaseModel = NewBaseModel()
	next.Status = RuleDraft
	next.Version = r.Version + 1
	supersedes := r.ID
	next.Supersedes = &supersedes
	next.Constraints = make([]RuleConstraint, len(r.Constraints))
	copy(next.Constraints, r.Constraints)
	return &next
}
