// Package rules 把已确认的规则编译为可快速查询的形式, 并按员工缓存
//
// 编译结果是只读的。规则变更时整体重新编译并替换指针, 检测路径上不做
// 任何写操作, 可被并发调用。
package rules

import (
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// DayRule 整天级约束的来源规则
type DayRule struct {
	RuleID uuid.UUID `json:"rule_id"`
	Note   string    `json:"note,omitempty"`
}

// WindowRule 时段级约束及其来源规则
type WindowRule struct {
	Range  timeutil.ClockRange `json:"range"`
	RuleID uuid.UUID           `json:"rule_id"`
	Note   string              `json:"note,omitempty"`
}

// CompiledRules 单个员工的规则编译结果
type CompiledRules struct {
	EmployeeID uuid.UUID `json:"employee_id"`

	// 不可用性, 来自 availability 规则
	UnavailableDays    map[time.Weekday]DayRule      `json:"unavailable_days,omitempty"`
	UnavailableWindows map[time.Weekday][]WindowRule `json:"unavailable_windows,omitempty"`

	// 必须排班, 来自 requirement 规则
	RequiredDays map[time.Weekday]DayRule `json:"required_days,omitempty"`

	// 偏好, 仅参与评分
	PreferredDays    map[time.Weekday]bool `json:"preferred_days,omitempty"`
	AvoidDays        map[time.Weekday]bool `json:"avoid_days,omitempty"`
	PreferredWindows []timeutil.ClockRange `json:"preferred_windows,omitempty"`
	AvoidWindows     []timeutil.ClockRange `json:"avoid_windows,omitempty"`

	// 周工时界限, 多条规则取最严格
	MaxWeeklyHours *float64  `json:"max_weekly_hours,omitempty"`
	MinWeeklyHours *float64  `json:"min_weekly_hours,omitempty"`
	MaxHoursRuleID uuid.UUID `json:"max_hours_rule_id,omitempty"`

	RuleCount  int       `json:"rule_count"`
	CompiledAt time.Time `json:"compiled_at"`
}

// allWeekdays 展开无星期限定的时段约束
var allWeekdays = []time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}

// Compile 把员工的规则列表编译为查询结构
//
// 只有已确认的规则参与编译, 草稿与已作废版本被跳过。
func Compile(employeeID uuid.UUID, ruleList []*model.Rule) *CompiledRules {
	c := &CompiledRules{
		EmployeeID:         employeeID,
		UnavailableDays:    make(map[time.Weekday]DayRule),
		UnavailableWindows: make(map[time.Weekday][]WindowRule),
		RequiredDays:       make(map[time.Weekday]DayRule),
		PreferredDays:      make(map[time.Weekday]bool),
		AvoidDays:          make(map[time.Weekday]bool),
		CompiledAt:         time.Now(),
	}

	for _, rule := range ruleList {
		if rule == nil || !rule.IsConfirmed() {
			continue
		}
		c.RuleCount++

		for _, rc := range rule.Constraints {
			switch rule.Type {
			case model.RuleAvailability:
				c.compileAvailability(rule, rc)
			case model.RuleRestriction:
				c.compileRestriction(rule, rc)
			case model.RuleRequirement:
				c.compileRequirement(rule, rc)
			case model.RulePreference:
				c.compilePreference(rc)
			}
		}
	}
	return c
}

func (c *CompiledRules) compileAvailability(rule *model.Rule, rc model.RuleConstraint) {
	switch rc.Kind {
	case model.KindDaysOff:
		for _, d := range rc.Days {
			if _, exists := c.UnavailableDays[d]; !exists {
				c.UnavailableDays[d] = DayRule{RuleID: rule.ID, Note: rc.Note}
			}
		}
	case model.KindTimeWindow:
		if rc.TimeRange == nil {
			return
		}
		days := rc.Days
		if len(days) == 0 {
			days = allWeekdays
		}
		for _, d := range days {
			c.UnavailableWindows[d] = append(c.UnavailableWindows[d], WindowRule{
				Range:  *rc.TimeRange,
				RuleID: rule.ID,
				Note:   rc.Note,
			})
		}
	}
}

func (c *CompiledRules) compileRestriction(rule *model.Rule, rc model.RuleConstraint) {
	if rc.Kind != model.KindMaxHours || rc.MaxHours == nil {
		return
	}
	if c.MaxWeeklyHours == nil || *rc.MaxHours < *c.MaxWeeklyHours {
		limit := *rc.MaxHours
		c.MaxWeeklyHours = &limit
		c.MaxHoursRuleID = rule.ID
	}
}

func (c *CompiledRules) compileRequirement(rule *model.Rule, rc model.RuleConstraint) {
	switch rc.Kind {
	case model.KindMinHours:
		if rc.MaxHours == nil {
			return
		}
		if c.MinWeeklyHours == nil || *rc.MaxHours > *c.MinWeeklyHours {
			floor := *rc.MaxHours
			c.MinWeeklyHours = &floor
		}
	case model.KindWorkDays:
		for _, d := range rc.Days {
			if _, exists := c.RequiredDays[d]; !exists {
				c.RequiredDays[d] = DayRule{RuleID: rule.ID, Note: rc.Note}
			}
		}
	}
}

func (c *CompiledRules) compilePreference(rc model.RuleConstraint) {
	switch rc.Kind {
	case model.KindPreferredDays:
		for _, d := range rc.Days {
			c.PreferredDays[d] = true
		}
	case model.KindAvoidDays:
		for _, d := range rc.Days {
			c.AvoidDays[d] = true
		}
	case model.KindPreferredTime:
		if rc.TimeRange != nil {
			c.PreferredWindows = append(c.PreferredWindows, *rc.TimeRange)
		}
	case model.KindAvoidTime:
		if rc.TimeRange != nil {
			c.AvoidWindows = append(c.AvoidWindows, *rc.TimeRange)
		}
	case model.KindMaxHours:
		// 偏好级工时上限不参与硬性检测
	}
}

// CheckUnavailable 检查某日某窗口是否触碰不可用约束
//
// 先查整天级约束, 再查窗口级约束, 返回命中的来源规则。
func (c *CompiledRules) CheckUnavailable(day time.Weekday, window timeutil.ClockRange) (bool, DayRule) {
	if dr, ok := c.UnavailableDays[day]; ok {
		return true, dr
	}
	for _, wr := range c.UnavailableWindows[day] {
		if wr.Range.Overlaps(window) {
			return true, DayRule{RuleID: wr.RuleID, Note: wr.Note}
		}
	}
	return false, DayRule{}
}

// EffectiveMaxHours 返回规则与基础值中更严格的周工时上限
func (c *CompiledRules) EffectiveMaxHours(base float64) float64 {
	if c.MaxWeeklyHours != nil && *c.MaxWeeklyHours < base {
		return *c.MaxWeeklyHours
	}
	return base
}

// PreferenceScore 计算某日某窗口的偏好评分, 范围 [-1, 1]
//
// 偏好星期 +1, 回避星期 -1, 偏好时段 +0.5, 回避时段 -0.5, 累加后截断。
func (c *CompiledRules) PreferenceScore(day time.Weekday, window timeutil.ClockRange) float64 {
	score := 0.0
	if c.PreferredDays[day] {
		score += 1.0
	}
	if c.AvoidDays[day] {
		score -= 1.0
	}
	for _, w := range c.PreferredWindows {
		if w.Overlaps(window) {
			score += 0.5
			break
		}
	}
	for _, w := range c.AvoidWindows {
		if w.Overlaps(window) {
			score -= 0.5
			break
		}
	}

	if score > 1.0 {
		return 1.0
	}
	if score < -1.0 {
		return -1.0
	}
	return score
}
