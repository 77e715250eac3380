package ruleparse

import (
	"strconv"
	"strings"
	"time"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// dayTokens 星期词表, 含常见缩写
var dayTokens = map[string]time.Weekday{
	"monday":     time.Monday,
	"mon":        time.Monday,
	"mondays":    time.Monday,
	"tuesday":    time.Tuesday,
	"tue":        time.Tuesday,
	"tues":       time.Tuesday,
	"tuesdays":   time.Tuesday,
	"wednesday":  time.Wednesday,
	"wed":        time.Wednesday,
	"weds":       time.Wednesday,
	"wednesdays": time.Wednesday,
	"thursday":   time.Thursday,
	"thu":        time.Thursday,
	"thur":       time.Thursday,
	"thurs":      time.Thursday,
	"thursdays":  time.Thursday,
	"friday":     time.Friday,
	"fri":        time.Friday,
	"fridays":    time.Friday,
	"saturday":   time.Saturday,
	"sat":        time.Saturday,
	"saturdays":  time.Saturday,
	"sunday":     time.Sunday,
	"sun":        time.Sunday,
	"sundays":    time.Sunday,
}

// daySetTokens 星期集合简写
var daySetTokens = map[string][]time.Weekday{
	"weekday":  {time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	"weekdays": {time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	"weekend":  {time.Saturday, time.Sunday},
	"weekends": {time.Saturday, time.Sunday},
	"everyday": {time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
	"daily":    {time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
}

// namedWindows 时段名词表, 夜间窗口跨午夜, 拆成两段
var namedWindows = map[string][]timeutil.ClockRange{
	"morning":    {{Start: 6 * 60, End: 12 * 60}},
	"mornings":   {{Start: 6 * 60, End: 12 * 60}},
	"afternoon":  {{Start: 12 * 60, End: 18 * 60}},
	"afternoons": {{Start: 12 * 60, End: 18 * 60}},
	"evening":    {{Start: 18 * 60, End: 22 * 60}},
	"evenings":   {{Start: 18 * 60, End: 22 * 60}},
	"night":      {{Start: 22 * 60, End: 24 * 60}, {Start: 0, End: 6 * 60}},
	"nights":     {{Start: 22 * 60, End: 24 * 60}, {Start: 0, End: 6 * 60}},
	"overnight":  {{Start: 22 * 60, End: 24 * 60}, {Start: 0, End: 6 * 60}},
	"noon":       {{Start: 12 * 60, End: 13 * 60}},
}

// normalizeText 归一化规则文本
//
// 小写化; 撇号直接删除, "can't" 归一为 "cant"; 数字之间的小数点保留;
// 冒号与连字符保留给时间写法; 其余标点替换为空格。
func normalizeText(text string) string {
	lower := strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(lower))

	runes := []rune(lower)
	for i, r := range runes {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == ' ' || r == ':' || r == '-':
			b.WriteRune(r)
		case r == '\'':
			// 撇号删除
		case r == '.':
			if i > 0 && i+1 < len(runes) && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
				b.WriteRune(r)
			} else {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// clockLiteral 判断 token 是否为明确的钟点写法
//
// 裸数字（如 "20"）不算, 避免与工时数混淆; 必须带冒号或 am/pm 后缀。
func clockLiteral(tok string) bool {
	if strings.Contains(tok, ":") {
		_, err := timeutil.ParseClock(tok)
		return err == nil
	}
	if strings.HasSuffix(tok, "am") || strings.HasSuffix(tok, "pm") {
		_, err := timeutil.ParseClock(tok)
		return err == nil
	}
	return false
}

// parseClockToken 解析钟点 token, 裸数字按 24 小时制兜底
func parseClockToken(tok string) (timeutil.Clock, bool) {
	c, err := timeutil.ParseClock(tok)
	if err != nil {
		return 0, false
	}
	return c, true
}

// parseNumber 解析整数或小数 token
func parseNumber(tok string) (float64, bool) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// isHoursWord 判断 token 是否为工时单位词
func isHoursWord(tok string) bool {
	switch strings.TrimSuffix(tok, "s") {
	case "hour", "hr":
		return true
	}
	return false
}

// splitOvernight 把可能跨午夜的窗口拆成当日窗口列表
func splitOvernight(start, end timeutil.Clock) []timeutil.ClockRange {
	if end > start {
		return []timeutil.ClockRange{{Start: start, End: end}}
	}
	// 起止相同视为无效, 调用方忽略
	if end == start {
		return nil
	}
	return []timeutil.ClockRange{
		{Start: start, End: timeutil.MinutesPerDay},
		{Start: 0, End: end},
	}
}
