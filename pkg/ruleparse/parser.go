// Package ruleparse 把自然语言排班规则解析为结构化约束
//
// 解析器是确定性的模式匹配, 不做开放式语义理解。支持的写法:
//
//	"John can't work Fridays"            -> availability / days_off
//	"Sarah needs Mondays off"            -> availability / days_off
//	"No one works past 8pm on Sundays"   -> availability / time_window
//	"Mike prefers morning shifts"        -> preference / preferred_time
//	"Lisa can't work more than 30 hours" -> restriction / max_hours
//	"Tom needs at least 20 hours a week" -> requirement / min_hours
//	"Amy must work weekends"             -> requirement / work_days
//
// 解析要么产出完整规则, 要么返回 *ParseError, 绝不部分成功。
package ruleparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// ParseError 规则文本无法解析
//
// 原文原样保留, 供用户修正后重新提交。
type ParseError struct {
	RawText string `json:"raw_text"`
	Reason  string `json:"reason"`
}

// Error 实现 error 接口
func (e *ParseError) Error() string {
	return fmt.Sprintf("规则解析失败: %s (原文: %q)", e.Reason, e.RawText)
}

// 语气标记词表, 归一化后比较, 撇号已删除
var (
	negationMarkers = []string{
		"cant", "can not", "cannot", "wont", "will not",
		"must not", "should not", "may not",
		"do not work", "dont work", "does not work", "doesnt work",
		"unable", "unavailable", "not available",
		"no one", "nobody", "never", "off",
	}
	requirementMarkers = []string{
		"needs", "need", "must", "has to", "have to",
		"required", "requires", "should",
	}
	preferenceMarkers = []string{
		"prefers", "prefer", "would like", "would love", "would rather",
		"likes", "like", "wants", "want", "enjoys",
		"avoid", "avoids", "hates", "dislikes",
	}
	avoidMarkers = []string{
		"would rather not", "prefers not", "prefer not",
		"doesnt like", "does not like", "dislikes", "hates",
		"avoid", "avoids",
	}
)

// hourSpec 工时数值及其方向
type hourSpec struct {
	value float64
	max   bool
}

// scanResult 词法扫描结果
type scanResult struct {
	days    []time.Weekday
	windows []timeutil.ClockRange
	hours   *hourSpec
}

// Parse 解析规则文本
//
// 返回的规则为草稿状态, 不绑定员工与组织, 由调用方补全归属后保存。
func Parse(text string) (*model.Rule, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, &ParseError{RawText: text, Reason: "规则文本为空"}
	}

	norm := normalizeText(raw)
	if norm == "" {
		return nil, &ParseError{RawText: raw, Reason: "规则文本没有可识别的内容"}
	}

	scan := scanTokens(norm)
	if len(scan.days) == 0 && len(scan.windows) == 0 && scan.hours == nil {
		return nil, &ParseError{RawText: raw, Reason: "未识别出任何星期、时段或工时信息"}
	}

	ruleType, constraints := classify(norm, scan)
	if len(constraints) == 0 {
		return nil, &ParseError{RawText: raw, Reason: "无法组装出有效的结构化约束"}
	}

	rule := &model.Rule{
		BaseModel:   model.NewBaseModel(),
		Type:        ruleType,
		RawText:     raw,
		Constraints: constraints,
		Priority:    priorityFor(ruleType),
		Status:      model.RuleDraft,
		Version:     1,
	}
	return rule, nil
}

// containsMarker 检查归一化文本是否含词表中的任一标记（按词边界）
func containsMarker(norm string, markers []string) bool {
	padded := " " + norm + " "
	for _, m := range markers {
		if strings.Contains(padded, " "+m+" ") {
			return true
		}
	}
	return false
}

// scanTokens 逐 token 抽取星期、时段窗口与工时数
func scanTokens(norm string) scanResult {
	var res scanResult
	tokens := strings.Fields(norm)
	daySeen := make(map[time.Weekday]bool)

	addDay := func(d time.Weekday) {
		if !daySeen[d] {
			daySeen[d] = true
			res.days = append(res.days, d)
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if set, ok := daySetTokens[tok]; ok {
			for _, d := range set {
				addDay(d)
			}
			continue
		}
		if d, ok := dayTokens[tok]; ok {
			addDay(d)
			continue
		}
		if wins, ok := namedWindows[tok]; ok {
			res.windows = append(res.windows, wins...)
			continue
		}

		// "past 8pm" / "after 8pm" -> 当日剩余时段
		if (tok == "past" || tok == "after") && i+1 < len(tokens) && clockLiteral(tokens[i+1]) {
			if c, ok := parseClockToken(tokens[i+1]); ok {
				res.windows = append(res.windows, timeutil.ClockRange{Start: c, End: timeutil.MinutesPerDay})
				i++
			}
			continue
		}

		// "before 9am" / "until 9am" -> 当日开头时段
		if (tok == "before" || tok == "until" || tok == "till" || tok == "by") && i+1 < len(tokens) && clockLiteral(tokens[i+1]) {
			if c, ok := parseClockToken(tokens[i+1]); ok && c > 0 {
				res.windows = append(res.windows, timeutil.ClockRange{Start: 0, End: c})
				i++
			}
			continue
		}

		// "9am to 5pm" / "9am until 5pm" / "between 9am and 5pm"
		if clockLiteral(tok) && i+2 < len(tokens) && isRangeJoiner(tokens[i+1]) {
			start, okStart := parseClockToken(tok)
			end, okEnd := parseClockToken(tokens[i+2])
			if okStart && okEnd {
				if !clockLiteral(tokens[i+2]) {
					end = adjustBareEnd(start, end)
				}
				res.windows = append(res.windows, splitOvernight(start, end)...)
				i += 2
				continue
			}
		}

		// "9am-5pm" 单 token 区间
		if strings.Contains(tok, "-") {
			parts := strings.SplitN(tok, "-", 2)
			if len(parts) == 2 && (clockLiteral(parts[0]) || clockLiteral(parts[1])) {
				start, okStart := parseClockToken(parts[0])
				end, okEnd := parseClockToken(parts[1])
				if okStart && okEnd {
					if !clockLiteral(parts[1]) {
						end = adjustBareEnd(start, end)
					}
					res.windows = append(res.windows, splitOvernight(start, end)...)
					continue
				}
			}
		}

		// "30 hours" 工时数
		if res.hours == nil {
			if v, ok := parseNumber(tok); ok && i+1 < len(tokens) && isHoursWord(tokens[i+1]) {
				res.hours = &hourSpec{value: v, max: maxQualifier(norm)}
				i++
				continue
			}
		}
	}
	return res
}

// isRangeJoiner 判断 token 是否为时间区间连接词
func isRangeJoiner(tok string) bool {
	switch tok {
	case "to", "until", "till", "and", "-":
		return true
	}
	return false
}

// adjustBareEnd 裸数字结束时间的 12 小时制推断
//
// "9am to 5" 的 5 按下午 17:00 理解; 推断后仍早于开始时间的按跨午夜处理。
func adjustBareEnd(start, end timeutil.Clock) timeutil.Clock {
	if end <= start && end+12*60 > start && end < 12*60 {
		return end + 12*60
	}
	return end
}

// maxQualifier 判断工时数的方向, true 表示上限
//
// 默认按上限理解; "at least" 等下限限定词显式出现时按下限。
func maxQualifier(norm string) bool {
	padded := " " + norm + " "
	maxPhrases := []string{"no more than", "not more than", "at most", "maximum", "max", "up to", "under", "less than", "fewer than"}
	for _, p := range maxPhrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	minPhrases := []string{"at least", "minimum", "min", "more than", "over"}
	for _, p := range minPhrases {
		if strings.Contains(padded, " "+p+" ") {
			return false
		}
	}
	return true
}

// classify 根据语气标记与扫描结果确定规则类型并组装约束
//
// 标记优先级: 否定 > 要求 > 偏好。
func classify(norm string, scan scanResult) (model.RuleType, []model.RuleConstraint) {
	hasNegation := containsMarker(norm, negationMarkers)
	hasRequirement := containsMarker(norm, requirementMarkers)
	hasPreference := containsMarker(norm, preferenceMarkers)
	isAvoid := containsMarker(norm, avoidMarkers)

	switch {
	case hasNegation:
		if scan.hours != nil {
			// 否定语气下的工时数一律按上限理解
			return model.RuleRestriction, []model.RuleConstraint{maxHoursConstraint(scan.hours.value)}
		}
		return model.RuleAvailability, availabilityConstraints(scan)

	case hasRequirement:
		if scan.hours != nil {
			if scan.hours.max {
				return model.RuleRestriction, []model.RuleConstraint{maxHoursConstraint(scan.hours.value)}
			}
			return model.RuleRequirement, []model.RuleConstraint{minHoursConstraint(scan.hours.value)}
		}
		return model.RuleRequirement, workDayConstraints(scan)

	case hasPreference:
		return model.RulePreference, preferenceConstraints(scan, isAvoid)

	default:
		if scan.hours != nil {
			if scan.hours.max {
				return model.RuleRestriction, []model.RuleConstraint{maxHoursConstraint(scan.hours.value)}
			}
			return model.RuleRequirement, []model.RuleConstraint{minHoursConstraint(scan.hours.value)}
		}
		// 无任何语气标记时按最弱的偏好理解
		return model.RulePreference, preferenceConstraints(scan, false)
	}
}

// availabilityConstraints 组装不可用性约束
func availabilityConstraints(scan scanResult) []model.RuleConstraint {
	if len(scan.windows) == 0 {
		return []model.RuleConstraint{{
			Kind: model.KindDaysOff,
			Days: scan.days,
			Note: dayNote(scan.days) + "不可排班",
		}}
	}

	constraints := make([]model.RuleConstraint, 0, len(scan.windows))
	for _, w := range scan.windows {
		window := w
		constraints = append(constraints, model.RuleConstraint{
			Kind:      model.KindTimeWindow,
			Days:      scan.days,
			TimeRange: &window,
			Note:      dayNote(scan.days) + window.String() + " 不可排班",
		})
	}
	return constraints
}

// workDayConstraints 组装必须排班约束
func workDayConstraints(scan scanResult) []model.RuleConstraint {
	if len(scan.windows) == 0 {
		return []model.RuleConstraint{{
			Kind: model.KindWorkDays,
			Days: scan.days,
			Note: dayNote(scan.days) + "必须排班",
		}}
	}

	constraints := make([]model.RuleConstraint, 0, len(scan.windows))
	for _, w := range scan.windows {
		window := w
		constraints = append(constraints, model.RuleConstraint{
			Kind:      model.KindWorkDays,
			Days:      scan.days,
			TimeRange: &window,
			Note:      dayNote(scan.days) + window.String() + " 必须排班",
		})
	}
	return constraints
}

// preferenceConstraints 组装偏好约束
func preferenceConstraints(scan scanResult, isAvoid bool) []model.RuleConstraint {
	var constraints []model.RuleConstraint

	if len(scan.days) > 0 {
		kind := model.KindPreferredDays
		note := dayNote(scan.days) + "优先排班"
		if isAvoid {
			kind = model.KindAvoidDays
			note = dayNote(scan.days) + "尽量不排班"
		}
		constraints = append(constraints, model.RuleConstraint{Kind: kind, Days: scan.days, Note: note})
	}

	for _, w := range scan.windows {
		window := w
		kind := model.KindPreferredTime
		note := window.String() + " 优先排班"
		if isAvoid {
			kind = model.KindAvoidTime
			note = window.String() + " 尽量不排班"
		}
		constraints = append(constraints, model.RuleConstraint{Kind: kind, TimeRange: &window, Note: note})
	}

	if scan.hours != nil {
		constraints = append(constraints, maxHoursConstraint(scan.hours.value))
	}
	return constraints
}

func maxHoursConstraint(v float64) model.RuleConstraint {
	hours := v
	return model.RuleConstraint{
		Kind:     model.KindMaxHours,
		MaxHours: &hours,
		Note:     fmt.Sprintf("每周最多 %.4g 小时", hours),
	}
}

func minHoursConstraint(v float64) model.RuleConstraint {
	hours := v
	return model.RuleConstraint{
		Kind:     model.KindMinHours,
		MaxHours: &hours,
		Note:     fmt.Sprintf("每周至少 %.4g 小时", hours),
	}
}

// weekdayNames 星期中文名
var weekdayNames = map[time.Weekday]string{
	time.Monday:    "周一",
	time.Tuesday:   "周二",
	time.Wednesday: "周三",
	time.Thursday:  "周四",
	time.Friday:    "周五",
	time.Saturday:  "周六",
	time.Sunday:    "周日",
}

// dayNote 生成星期集合的中文描述, 空集合表示每天
func dayNote(days []time.Weekday) string {
	if len(days) == 0 {
		return "每天 "
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = weekdayNames[d]
	}
	return strings.Join(names, "/") + " "
}

// priorityFor 规则类型的默认优先级
func priorityFor(t model.RuleType) int {
	switch t {
	case model.RuleAvailability, model.RuleRestriction:
		return 3
	case model.RuleRequirement:
		return 2
	default:
		return 1
	}
}
