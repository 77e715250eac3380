// Package timeutil 提供排班引擎的时间计算基础
//
// 统一处理三类时间: 钟点 (一天内的时刻, 如 "14:30")、日期 ("2006-01-02")
// 以及归一化后的绝对时间区间。跨午夜的班次在归一化时把结束时间顺延到次日。
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// MinutesPerDay 一天的分钟数
const MinutesPerDay = 24 * 60

// Clock 一天内的时刻, 以自午夜起的分钟数表示
type Clock int

// ParseClock 解析钟点文本
//
// 支持 "15:04"、"9:00"、"9"、"9am"、"12pm"、"8:30pm" 等写法。
func ParseClock(s string) (Clock, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, fmt.Errorf("时间文本为空")
	}

	meridiem := ""
	switch {
	case strings.HasSuffix(raw, "am"):
		meridiem = "am"
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "am"))
	case strings.HasSuffix(raw, "pm"):
		meridiem = "pm"
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "pm"))
	}

	hourPart := raw
	minutePart := "0"
	if idx := strings.Index(raw, ":"); idx >= 0 {
		hourPart = raw[:idx]
		minutePart = raw[idx+1:]
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil {
		return 0, fmt.Errorf("无法解析时间 %q", s)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("无法解析时间 %q", s)
	}

	switch meridiem {
	case "am":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("无法解析时间 %q", s)
		}
		if hour == 12 {
			hour = 0
		}
	case "pm":
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("无法解析时间 %q", s)
		}
		if hour != 12 {
			hour += 12
		}
	default:
		if hour < 0 || hour > 24 {
			return 0, fmt.Errorf("无法解析时间 %q", s)
		}
	}

	total := hour*60 + minute
	if total > MinutesPerDay {
		return 0, fmt.Errorf("无法解析时间 %q", s)
	}
	return Clock(total), nil
}

// MustClock 解析钟点文本, 失败时 panic, 仅用于常量初始化与测试
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// String 格式化为 "15:04"
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Hours 换算为小时数
func (c Clock) Hours() float64 {
	return float64(c) / 60.0
}

// Minutes 换算为分钟数
func (c Clock) Minutes() int {
	return int(c)
}

// At 把钟点落到某个日期上, 得到绝对时间
func (c Clock) At(date time.Time) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return day.Add(time.Duration(c) * time.Minute)
}

// ClockRange 一天内的时间窗口, [Start, End) 左闭右开, End 最大可取 24:00
type ClockRange struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// ParseClockRange 解析 "09:00-17:00" 形式的窗口
func ParseClockRange(s string) (ClockRange, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return ClockRange{}, fmt.Errorf("无法解析时间窗口 %q", s)
	}
	start, err := ParseClock(parts[0])
	if err != nil {
		return ClockRange{}, err
	}
	end, err := ParseClock(parts[1])
	if err != nil {
		return ClockRange{}, err
	}
	if end <= start {
		return ClockRange{}, fmt.Errorf("时间窗口 %q 结束不晚于开始", s)
	}
	return ClockRange{Start: start, End: end}, nil
}

// String 格式化为 "09:00-17:00"
func (r ClockRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// Hours 窗口时长（小时）
func (r ClockRange) Hours() float64 {
	return float64(r.End-r.Start) / 60.0
}

// Contains 判断时刻是否落在窗口内
func (r ClockRange) Contains(c Clock) bool {
	return c >= r.Start && c < r.End
}

// Overlaps 判断两个窗口是否相交
func (r ClockRange) Overlaps(other ClockRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// ParseDate 解析 "2006-01-02" 日期, 统一使用 UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("无法解析日期 %q", s)
	}
	return t, nil
}

// FormatDate 格式化日期
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// NormalizeShift 把班次的日期与起止钟点归一化为绝对时间区间
//
// 结束钟点不晚于开始钟点时视为跨午夜班次, 结束时间顺延 24 小时。
func NormalizeShift(date time.Time, start, end Clock) (time.Time, time.Time) {
	absStart := start.At(date)
	absEnd := end.At(date)
	if !absEnd.After(absStart) {
		absEnd = absEnd.Add(24 * time.Hour)
	}
	return absStart, absEnd
}

// NormalizeEnd 对已是绝对时间的区间做跨午夜归一化
func NormalizeEnd(start, end time.Time) time.Time {
	if !end.After(start) {
		return end.Add(24 * time.Hour)
	}
	return end
}

// Overlaps 判断两个绝对时间区间是否相交, 严格不等式, 共享边界不算相交
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// OverlapHours 计算两个绝对时间区间的重叠小时数, 不相交时为 0
func OverlapHours(aStart, aEnd, bStart, bEnd time.Time) float64 {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start).Hours()
}

// Hours 区间时长（小时）
func Hours(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

// RestGap 计算两个班次之间的休息间隔（小时）, 重叠时为负
func RestGap(prevEnd, nextStart time.Time) float64 {
	return nextStart.Sub(prevEnd).Hours()
}

// WeekStart 返回所在 ISO 周的周一 00:00
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// SameWeek 判断两个时间是否落在同一个 ISO 周
func SameWeek(a, b time.Time) bool {
	return WeekStart(a).Equal(WeekStart(b))
}

// DaySlice 绝对时间区间落在单个自然日内的切片
type DaySlice struct {
	Day   time.Time  // 当日 00:00
	Range ClockRange // 当日内的钟点窗口
}

// SliceByDay 把绝对时间区间按自然日切片
//
// 跨午夜的班次得到两个切片, 供按星期配置的规则逐日检查。
func SliceByDay(start, end time.Time) []DaySlice {
	var slices []DaySlice
	cur := start
	for cur.Before(end) {
		day := time.Date(cur.Year(), cur.Month(), cur.Day(), 0, 0, 0, 0, cur.Location())
		next := day.AddDate(0, 0, 1)
		sliceEnd := end
		if next.Before(end) {
			sliceEnd = next
		}
		slices = append(slices, DaySlice{
			Day: day,
			Range: ClockRange{
				Start: Clock(cur.Sub(day) / time.Minute),
				End:   Clock(sliceEnd.Sub(day) / time.Minute),
			},
		})
		cur = next
	}
	return slices
}

// DominantSlice 返回区间中时长最长的自然日切片
//
// 跨午夜班次按主要落点归属星期, 供偏好与规则评分使用。
func DominantSlice(start, end time.Time) DaySlice {
	slices := SliceByDay(start, end)
	if len(slices) == 0 {
		day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		return DaySlice{Day: day}
	}
	best := slices[0]
	for _, s := range slices[1:] {
		if s.Range.Hours() > best.Range.Hours() {
			best = s
		}
	}
	return best
}

// Interval 绝对时间区间
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hours 区间时长（小时）
func (iv Interval) Hours() float64 {
	return iv.End.Sub(iv.Start).Hours()
}

// WeeklyHours 累计落在 ref 所在 ISO 周内的区间时长
//
// 区间按其开始时间所在日期归入周, 跨周班次不拆分。
func WeeklyHours(intervals []Interval, ref time.Time) float64 {
	weekStart := WeekStart(ref)
	weekEnd := weekStart.AddDate(0, 0, 7)

	total := 0.0
	for _, iv := range intervals {
		if iv.Start.Before(weekStart) || !iv.Start.Before(weekEnd) {
			continue
		}
		total += iv.Hours()
	}
	return total
}
