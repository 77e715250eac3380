// Package model 定义排班约束引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// 未显式设置时采用的引擎默认值
const (
	DefaultMaxHoursPerWeek = 40.0 // 默认周工时上限（小时）
	DefaultMinRestHours    = 11.0 // 默认班间最小休息（小时）
)

// Employee 员工
type Employee struct {
	BaseModel
	OrgID      uuid.UUID `json:"org_id" db:"org_id"`
	Name       string    `json:"name" db:"name"`
	Code       string    `json:"code" db:"code"`
	Email      string    `json:"email,omitempty" db:"email"`
	Status     string    `json:"status" db:"status"` // active/inactive/leave
	Department string    `json:"department" db:"department"`
	Position   string    `json:"position,omitempty" db:"position"`

	// 排班硬性参数, 零值表示采用引擎默认
	MaxHoursPerWeek float64 `json:"max_hours_per_week" db:"max_hours_per_week"`
	MinRestHours    float64 `json:"min_rest_hours" db:"min_rest_hours"`

	// 档案级可用性, 按星期配置
	Availability WeekAvailability `json:"availability,omitempty" db:"availability"`

	// 工作偏好
	Preferences *EmployeePreferences `json:"preferences,omitempty" db:"preferences"`
}

// WeekAvailability 按星期的可用性配置, 缺省的星期视为全天可用
type WeekAvailability map[time.Weekday]DayAvailability

// DayAvailability 单个星期日的可用性
type DayAvailability struct {
	Available bool                  `json:"available"`
	Windows   []timeutil.ClockRange `json:"windows,omitempty"` // 为空且可用时表示全天
}

// EmployeePreferences 员工偏好, 仅参与软约束评分
type EmployeePreferences struct {
	PreferredDays  []time.Weekday        `json:"preferred_days,omitempty"`
	AvoidDays      []time.Weekday        `json:"avoid_days,omitempty"`
	PreferredTimes []timeutil.ClockRange `json:"preferred_times,omitempty"`
	AvoidTimes     []timeutil.ClockRange `json:"avoid_times,omitempty"`
}

// Score 偏好对某时段的评分, 正值表示匹配, 负值表示回避
func (p *EmployeePreferences) Score(day time.Weekday, window timeutil.ClockRange) float64 {
	if p == nil {
		return 0
	}
	score := 0.0
	for _, d := range p.PreferredDays {
		if d == day {
			score++
			break
		}
	}
	for _, d := range p.AvoidDays {
		if d == day {
			score--
			break
		}
	}
	for _, w := range p.PreferredTimes {
		if w.Overlaps(window) {
			score += 0.5
			break
		}
	}
	for _, w := range p.AvoidTimes {
		if w.Overlaps(window) {
			score -= 0.5
			break
		}
	}
	return score
}

// IsActive 检查员工是否在职
func (e *Employee) IsActive() bool {
	return e.Status == "active"
}

// EffectiveMaxHours 返回生效的周工时上限
func (e *Employee) EffectiveMaxHours() float64 {
	if e.MaxHoursPerWeek > 0 {
		return e.MaxHoursPerWeek
	}
	return DefaultMaxHoursPerWeek
}

// EffectiveMinRest 返回生效的班间最小休息
func (e *Employee) EffectiveMinRest() float64 {
	if e.MinRestHours > 0 {
		return e.MinRestHours
	}
	return DefaultMinRestHours
}

// AvailableFor 检查档案级可用性是否允许在某星期日的某窗口内工作
//
// 缺省的星期视为全天可用; 标记不可用的星期整天拒绝;
// 配置了窗口时要求班次窗口完整落在某个可用窗口内。
func (e *Employee) AvailableFor(day time.Weekday, window timeutil.ClockRange) bool {
	if e.Availability == nil {
		return true
	}
	av, ok := e.Availability[day]
	if !ok {
		return true
	}
	if !av.Available {
		return false
	}
	if len(av.Windows) == 0 {
		return true
	}
	for _, w := range av.Windows {
		if window.Start >= w.Start && window.End <= w.End {
			return true
		}
	}
	return false
}

// AvailabilityNote 描述某星期日的可用性, 用于冲突提示
func (e *Employee) AvailabilityNote(day time.Weekday) string {
	if e.Availability == nil {
		return ""
	}
	av, ok := e.Availability[day]
	if !ok {
		return ""
	}
	if !av.Available {
		return "全天不可用"
	}
	if len(av.Windows) == 0 {
		return ""
	}
	note := "仅 "
	for i, w := range av.Windows {
		if i > 0 {
			note += ", "
		}
		note += w.String()
	}
	return note + " 可用"
}
