package ruleparse

import (
	"errors"
	"testing"
	"time"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

func TestParse_Availability(t *testing.T) {
	tests := []struct {
		name string
		text string
		days []time.Weekday
		kind model.ConstraintKind
	}{
		{
			name: "否定语气整天不可用",
			text: "John can't work Fridays",
			days: []time.Weekday{time.Friday},
			kind: model.KindDaysOff,
		},
		{
			name: "needs off 语式",
			text: "Sarah needs Mondays off",
			days: []time.Weekday{time.Monday},
			kind: model.KindDaysOff,
		},
		{
			name: "must not 语式",
			text: "Tom must not work Sundays",
			days: []time.Weekday{time.Sunday},
			kind: model.KindDaysOff,
		},
		{
			name: "周末集合简写",
			text: "Amy is unavailable on weekends",
			days: []time.Weekday{time.Saturday, time.Sunday},
			kind: model.KindDaysOff,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse(%q) 失败: %v", tt.text, err)
			}
			if rule.Type != model.RuleAvailability {
				t.Errorf("类型 = %s, 期望 availability", rule.Type)
			}
			if len(rule.Constraints) != 1 {
				t.Fatalf("约束数 = %d, 期望 1", len(rule.Constraints))
			}
			c := rule.Constraints[0]
			if c.Kind != tt.kind {
				t.Errorf("约束种类 = %s, 期望 %s", c.Kind, tt.kind)
			}
			if len(c.Days) != len(tt.days) {
				t.Fatalf("星期数 = %v, 期望 %v", c.Days, tt.days)
			}
			for i, d := range tt.days {
				if c.Days[i] != d {
					t.Errorf("星期[%d] = %v, 期望 %v", i, c.Days[i], d)
				}
			}
			if rule.RawText != tt.text {
				t.Errorf("原文未保留: %q", rule.RawText)
			}
			if rule.Status != model.RuleDraft {
				t.Errorf("新规则状态 = %s, 期望 draft", rule.Status)
			}
		})
	}
}

func TestParse_TimeWindow(t *testing.T) {
	rule, err := Parse("No one works past 8pm on Sundays")
	if err != nil {
		t.Fatalf("Parse 失败: %v", err)
	}
	if rule.Type != model.RuleAvailability {
		t.Errorf("类型 = %s, 期望 availability", rule.Type)
	}
	if len(rule.Constraints) != 1 {
		t.Fatalf("约束数 = %d, 期望 1", len(rule.Constraints))
	}
	c := rule.Constraints[0]
	if c.Kind != model.KindTimeWindow {
		t.Errorf("约束种类 = %s, 期望 time_window", c.Kind)
	}
	if c.TimeRange == nil {
		t.Fatal("应带有时间窗口")
	}
	if c.TimeRange.Start != timeutil.MustClock("20:00") || c.TimeRange.End != timeutil.Clock(timeutil.MinutesPerDay) {
		t.Errorf("窗口 = %v, 期望 20:00-24:00", c.TimeRange)
	}
	if len(c.Days) != 1 || c.Days[0] != time.Sunday {
		t.Errorf("星期 = %v, 期望周日", c.Days)
	}
}

func TestParse_ExplicitRange(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		start string
		end   string
	}{
		{name: "to 连接", text: "Dana can't work 9am to 5pm on Tuesdays", start: "09:00", end: "17:00"},
		{name: "between and 连接", text: "Dana is unavailable between 2pm and 6pm", start: "14:00", end: "18:00"},
		{name: "连字符区间", text: "Ed can't work 8:30am-12:30pm", start: "08:30", end: "12:30"},
		{name: "裸数字结束按下午推断", text: "Fay can't work 9am to 5 on Mondays", start: "09:00", end: "17:00"},
		{name: "before 前缀", text: "Gil can't work before 9am", start: "00:00", end: "09:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse(%q) 失败: %v", tt.text, err)
			}
			var window *timeutil.ClockRange
			for i := range rule.Constraints {
				if rule.Constraints[i].TimeRange != nil {
					window = rule.Constraints[i].TimeRange
					break
				}
			}
			if window == nil {
				t.Fatal("应解析出时间窗口")
			}
			if window.Start != timeutil.MustClock(tt.start) || window.End != timeutil.MustClock(tt.end) {
				t.Errorf("窗口 = %v, 期望 %s-%s", window, tt.start, tt.end)
			}
		})
	}
}

func TestParse_OvernightWindowSplits(t *testing.T) {
	rule, err := Parse("Ken can't work 10pm to 6am")
	if err != nil {
		t.Fatalf("Parse 失败: %v", err)
	}
	if len(rule.Constraints) != 2 {
		t.Fatalf("跨午夜窗口应拆成 2 条约束, 实际 %d", len(rule.Constraints))
	}
	first, second := rule.Constraints[0].TimeRange, rule.Constraints[1].TimeRange
	if first == nil || second == nil {
		t.Fatal("两条约束都应带窗口")
	}
	if first.Start != timeutil.MustClock("22:00") || first.End != timeutil.Clock(timeutil.MinutesPerDay) {
		t.Errorf("前段 = %v, 期望 22:00-24:00", first)
	}
	if second.Start != 0 || second.End != timeutil.MustClock("06:00") {
		t.Errorf("后段 = %v, 期望 00:00-06:00", second)
	}
}

func TestParse_Preference(t *testing.T) {
	rule, err := Parse("Mike prefers morning shifts")
	if err != nil {
		t.Fatalf("Parse 失败: %v", err)
	}
	if rule.Type != model.RulePreference {
		t.Errorf("类型 = %s, 期望 preference", rule.Type)
	}
	c := rule.Constraints[0]
	if c.Kind != model.KindPreferredTime {
		t.Errorf("约束种类 = %s, 期望 preferred_time", c.Kind)
	}
	if c.TimeRange == nil || c.TimeRange.Start != timeutil.MustClock("06:00") || c.TimeRange.End != timeutil.MustClock("12:00") {
		t.Errorf("窗口 = %v, 期望 06:00-12:00", c.TimeRange)
	}

	// 回避型偏好
	rule, err = Parse("Nina would rather not work Mondays")
	if err != nil {
		t.Fatalf("Parse 失败: %v", err)
	}
	if rule.Type != model.RulePreference {
		t.Errorf("类型 = %s, 期望 preference", rule.Type)
	}
	if rule.Constraints[0].Kind != model.KindAvoidDays {
		t.Errorf("约束种类 = %s, 期望 avoid_days", rule.Constraints[0].Kind)
	}
}

func TestParse_Hours(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		ruleType model.RuleType
		kind     model.ConstraintKind
		hours    float64
	}{
		{
			name:     "否定加工时按上限",
			text:     "Lisa can't work more than 30 hours per week",
			ruleType: model.RuleRestriction,
			kind:     model.KindMaxHours,
			hours:    30,
		},
		{
			name:     "要求加下限词",
			text:     "Sarah needs at least 20 hours per week",
			ruleType: model.RuleRequirement,
			kind:     model.KindMinHours,
			hours:    20,
		},
		{
			name:     "无标记按上限",
			text:     "Lisa maximum 40 hours weekly",
			ruleType: model.RuleRestriction,
			kind:     model.KindMaxHours,
			hours:    40,
		},
		{
			name:     "must 加上限词",
			text:     "Tom must work at most 25 hours a week",
			ruleType: model.RuleRestriction,
			kind:     model.KindMaxHours,
			hours:    25,
		},
		{
			name:     "小数工时",
			text:     "Pam can't work more than 37.5 hours",
			ruleType: model.RuleRestriction,
			kind:     model.KindMaxHours,
			hours:    37.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse(%q) 失败: %v", tt.text, err)
			}
			if rule.Type != tt.ruleType {
				t.Errorf("类型 = %s, 期望 %s", rule.Type, tt.ruleType)
			}
			c := rule.Constraints[0]
			if c.Kind != tt.kind {
				t.Errorf("约束种类 = %s, 期望 %s", c.Kind, tt.kind)
			}
			if c.MaxHours == nil || *c.MaxHours != tt.hours {
				t.Errorf("工时界限 = %v, 期望 %v", c.MaxHours, tt.hours)
			}
		})
	}
}

func TestParse_Requirement(t *testing.T) {
	rule, err := Parse("Amy must work weekends")
	if err != nil {
		t.Fatalf("Parse 失败: %v", err)
	}
	if rule.Type != model.RuleRequirement {
		t.Errorf("类型 = %s, 期望 requirement", rule.Type)
	}
	c := rule.Constraints[0]
	if c.Kind != model.KindWorkDays {
		t.Errorf("约束种类 = %s, 期望 work_days", c.Kind)
	}
	if len(c.Days) != 2 {
		t.Errorf("星期 = %v, 期望周六和周日", c.Days)
	}
}

func TestParse_MarkerPrecedence(t *testing.T) {
	// 同时出现要求与偏好语气时, 取更强的要求
	rule, err := Parse("Bob needs Mondays off but prefers mornings")
	if err != nil {
		t.Fatalf("Parse 失败: %v", err)
	}
	if rule.Type != model.RuleAvailability {
		t.Errorf("类型 = %s, 期望否定语气胜出为 availability", rule.Type)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"空文本", ""},
		{"纯空白", "   "},
		{"无任何可识别信息", "please handle this for me"},
		{"只有名字", "Jonathan Smith"},
		{"纯标点", "?!, ..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Parse(tt.text)
			if err == nil {
				t.Fatalf("Parse(%q) 应当失败, 实际得到 %+v", tt.text, rule)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("错误类型 = %T, 期望 *ParseError", err)
			}
			if tt.text != "" && parseErr.RawText == "" {
				t.Error("ParseError 应保留原文")
			}
			if parseErr.Reason == "" {
				t.Error("ParseError 应包含原因")
			}
		})
	}
}

func TestParse_Deterministic(t *testing.T) {
	text := "John can't work Fridays past 8pm"
	a, errA := Parse(text)
	b, errB := Parse(text)
	if errA != nil || errB != nil {
		t.Fatalf("Parse 失败: %v %v", errA, errB)
	}
	if a.Type != b.Type || len(a.Constraints) != len(b.Constraints) {
		t.Fatal("两次解析结果应一致")
	}
	for i := range a.Constraints {
		if a.Constraints[i].Kind != b.Constraints[i].Kind {
			t.Errorf("约束[%d] 种类不一致", i)
		}
	}
}
