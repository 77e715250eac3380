// Package catalog 规则模板库
//
// 模板库描述解析器支持的全部规则写法, 供前端做引导输入。
// Phrases 里的 {employee}/{days}/{time}/{period}/{hours} 为占位符,
// 按参数说明替换后的句子保证能被 ruleparse 解析成对应的约束种类。
package catalog

import (
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// TemplateParam 模板占位符定义
type TemplateParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, int, float, array
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
	Min         string `json:"min,omitempty"`
	Max         string `json:"max,omitempty"`
}

// RuleTemplate 规则模板定义
type RuleTemplate struct {
	Name        string               `json:"name"`
	DisplayName string               `json:"display_name"`
	RuleType    model.RuleType       `json:"rule_type"`
	Kind        model.ConstraintKind `json:"kind"`
	Category    string               `json:"category"`
	Description string               `json:"description"`
	Phrases     []string             `json:"phrases"`
	Params      []TemplateParam      `json:"params"`
}

// CatalogResponse 模板库响应
type CatalogResponse struct {
	Templates []RuleTemplate `json:"templates"`
}

// 公共占位符参数, 多个模板共用
var (
	paramEmployee = TemplateParam{
		Name: "employee", Type: "string",
		Description: "员工姓名, 需与花名册中的姓名一致",
	}
	paramDays = TemplateParam{
		Name: "days", Type: "array",
		Description: "星期列表, 支持英文星期名与 weekends/weekdays",
		Default:     "Fridays",
	}
	paramTime = TemplateParam{
		Name: "time", Type: "string",
		Description: "时刻, 支持 8pm、20:00、8:30pm 等写法",
		Default:     "8pm",
	}
	paramPeriod = TemplateParam{
		Name: "period", Type: "string",
		Description: "时段名, morning/afternoon/evening/night 之一",
		Default:     "morning",
	}
)

// Templates 获取完整的规则模板库
func Templates() []RuleTemplate {
	return []RuleTemplate{
		// =====================================================
		// 可用性（硬约束, 违反产生 error 级冲突）
		// =====================================================
		{
			Name:        "days_off",
			DisplayName: "指定星期不可排班",
			RuleType:    model.RuleAvailability,
			Kind:        model.KindDaysOff,
			Category:    "可用性",
			Description: "员工在指定的星期整天不可排班, 常用于固定休息日或长期请假日。",
			Phrases: []string{
				"{employee} can't work {days}",
				"{employee} needs {days} off",
				"{employee} is unavailable on {days}",
			},
			Params: []TemplateParam{paramEmployee, paramDays},
		},
		{
			Name:        "time_window",
			DisplayName: "指定时段不可排班",
			RuleType:    model.RuleAvailability,
			Kind:        model.KindTimeWindow,
			Category:    "可用性",
			Description: "员工在某个时刻之前或之后不可排班, 可叠加星期限定。省略员工名（no one）时对全员生效。",
			Phrases: []string{
				"{employee} can't work past {time}",
				"{employee} can't work before {time}",
				"No one works past {time} on {days}",
			},
			Params: []TemplateParam{paramEmployee, paramTime, paramDays},
		},

		// =====================================================
		// 工时（硬约束）
		// =====================================================
		{
			Name:        "max_hours",
			DisplayName: "每周最大工时",
			RuleType:    model.RuleRestriction,
			Kind:        model.KindMaxHours,
			Category:    "工时限制",
			Description: "限制员工每周累计工时上限。不设规则时使用员工档案上的默认上限。",
			Phrases: []string{
				"{employee} can't work more than {hours} hours",
				"{employee} must work no more than {hours} hours per week",
			},
			Params: []TemplateParam{
				paramEmployee,
				{Name: "hours", Type: "float", Description: "每周工时上限(小时)", Default: "40", Min: "1", Max: "80"},
			},
		},
		{
			Name:        "min_hours",
			DisplayName: "每周最小工时",
			RuleType:    model.RuleRequirement,
			Kind:        model.KindMinHours,
			Category:    "工时限制",
			Description: "保障员工每周的最低排班量, 生成排班时尽量满足。",
			Phrases: []string{
				"{employee} needs at least {hours} hours a week",
				"{employee} must work at least {hours} hours",
			},
			Params: []TemplateParam{
				paramEmployee,
				{Name: "hours", Type: "float", Description: "每周工时下限(小时)", Default: "20", Min: "1", Max: "60"},
			},
		},

		// =====================================================
		// 排班要求（硬约束）
		// =====================================================
		{
			Name:        "work_days",
			DisplayName: "必须排班的星期",
			RuleType:    model.RuleRequirement,
			Kind:        model.KindWorkDays,
			Category:    "排班要求",
			Description: "员工在指定的星期必须有排班, 如周末固定值班。",
			Phrases: []string{
				"{employee} must work {days}",
				"{employee} has to work weekends",
			},
			Params: []TemplateParam{paramEmployee, paramDays},
		},

		// =====================================================
		// 偏好（软约束, 违反只产生 warning 级冲突）
		// =====================================================
		{
			Name:        "preferred_days",
			DisplayName: "偏好星期",
			RuleType:    model.RulePreference,
			Kind:        model.KindPreferredDays,
			Category:    "偏好",
			Description: "员工偏好在指定的星期上班, 候选打分时优先。",
			Phrases: []string{
				"{employee} prefers {days}",
				"{employee} would like to work {days}",
			},
			Params: []TemplateParam{paramEmployee, paramDays},
		},
		{
			Name:        "avoid_days",
			DisplayName: "回避星期",
			RuleType:    model.RulePreference,
			Kind:        model.KindAvoidDays,
			Category:    "偏好",
			Description: "员工希望尽量不在指定的星期上班, 与不可排班不同, 仍可排。",
			Phrases: []string{
				"{employee} would rather not work {days}",
				"{employee} prefers not to work {days}",
			},
			Params: []TemplateParam{paramEmployee, paramDays},
		},
		{
			Name:        "preferred_time",
			DisplayName: "偏好时段",
			RuleType:    model.RulePreference,
			Kind:        model.KindPreferredTime,
			Category:    "偏好",
			Description: "员工偏好指定时段的班次, 如只想上早班。",
			Phrases: []string{
				"{employee} prefers {period} shifts",
				"{employee} likes working {period} shifts",
			},
			Params: []TemplateParam{paramEmployee, paramPeriod},
		},
		{
			Name:        "avoid_time",
			DisplayName: "回避时段",
			RuleType:    model.RulePreference,
			Kind:        model.KindAvoidTime,
			Category:    "偏好",
			Description: "员工希望尽量避开指定时段的班次, 如不想上夜班。",
			Phrases: []string{
				"{employee} avoids {period} shifts",
				"{employee} doesn't like {period} shifts",
			},
			Params: []TemplateParam{paramEmployee, paramPeriod},
		},
	}
}

// ByKind 按约束种类检索模板, 未收录的种类返回 nil
func ByKind(kind model.ConstraintKind) *RuleTemplate {
	for _, t := range Templates() {
		if t.Kind == kind {
			tpl := t
			return &tpl
		}
	}
	return nil
}
