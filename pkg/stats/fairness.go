// Package stats 提供排班覆盖与公平性统计
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// FairnessMetrics 公平性指标
type FairnessMetrics struct {
	// 工时公平性
	WorkloadGini        float64 `json:"workload_gini"`          // 工时基尼系数 (0=完全公平, 1=完全不公平)
	WorkloadVariance    float64 `json:"workload_variance"`      // 工时方差
	WorkloadStdDev      float64 `json:"workload_std_dev"`       // 工时标准差
	AvgHoursPerEmployee float64 `json:"avg_hours_per_employee"` // 人均工时
	MaxHours            float64 `json:"max_hours"`              // 最大工时
	MinHours            float64 `json:"min_hours"`              // 最小工时
	HoursRange          float64 `json:"hours_range"`            // 工时极差

	// 班次类型公平性
	ShiftTypeDistribution map[string]float64 `json:"shift_type_distribution"` // 各班次类型占比 (%)
	NightShiftGini        float64            `json:"night_shift_gini"`        // 夜班分配基尼系数
	WeekendShiftGini      float64            `json:"weekend_shift_gini"`      // 周末班分配基尼系数

	// 员工级别统计
	EmployeeStats []EmployeeStat `json:"employee_stats"`

	// 综合评分
	OverallFairnessScore float64 `json:"overall_fairness_score"` // 综合公平性评分 (0-100)
}

// EmployeeStat 单个员工的排班统计
type EmployeeStat struct {
	EmployeeID    uuid.UUID `json:"employee_id"`
	EmployeeName  string    `json:"employee_name"`
	TotalHours    float64   `json:"total_hours"`
	ShiftCount    int       `json:"shift_count"`
	NightShifts   int       `json:"night_shifts"`
	WeekendShifts int       `json:"weekend_shifts"`
	OvertimeHours float64   `json:"overtime_hours"` // 超出个人周上限的累计小时数
	Deviation     float64   `json:"deviation"`      // 与平均值的偏差百分比
}

// FairnessAnalyzer 公平性分析器
type FairnessAnalyzer struct {
	nightShiftStart int // 夜班开始时间（小时）
	nightShiftEnd   int // 夜班结束时间（小时）
}

// NewFairnessAnalyzer 创建公平性分析器
func NewFairnessAnalyzer() *FairnessAnalyzer {
	return &FairnessAnalyzer{
		nightShiftStart: 22,
		nightShiftEnd:   6,
	}
}

// Analyze 分析一组排班分配的公平性
//
// 被取消的分配不参与统计, 加班时长按每名员工的周上限逐周累计。
func (f *FairnessAnalyzer) Analyze(assignments []*model.Assignment, employees []*model.Employee) *FairnessMetrics {
	active := make([]*model.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if a.Status != model.AssignmentCancelled {
			active = append(active, a)
		}
	}
	if len(active) == 0 || len(employees) == 0 {
		return &FairnessMetrics{
			ShiftTypeDistribution: make(map[string]float64),
			OverallFairnessScore:  100,
		}
	}

	employeeMap := make(map[uuid.UUID]*model.Employee)
	for _, e := range employees {
		employeeMap[e.ID] = e
	}

	employeeStats := f.employeeStats(active, employeeMap)

	hours := make([]float64, len(employeeStats))
	nightShifts := make([]float64, len(employeeStats))
	weekendShifts := make([]float64, len(employeeStats))
	for i, stat := range employeeStats {
		hours[i] = stat.TotalHours
		nightShifts[i] = float64(stat.NightShifts)
		weekendShifts[i] = float64(stat.WeekendShifts)
	}

	avgHours := mean(hours)
	variance := varianceOf(hours, avgHours)
	stdDev := math.Sqrt(variance)
	maxHours, minHours := extremes(hours)

	for i := range employeeStats {
		if avgHours > 0 {
			employeeStats[i].Deviation = (employeeStats[i].TotalHours - avgHours) / avgHours * 100
		}
	}

	workloadGini := gini(hours)
	nightGini := gini(nightShifts)
	weekendGini := gini(weekendShifts)

	return &FairnessMetrics{
		WorkloadGini:          workloadGini,
		WorkloadVariance:      variance,
		WorkloadStdDev:        stdDev,
		AvgHoursPerEmployee:   avgHours,
		MaxHours:              maxHours,
		MinHours:              minHours,
		HoursRange:            maxHours - minHours,
		ShiftTypeDistribution: f.shiftTypeDistribution(active),
		NightShiftGini:        nightGini,
		WeekendShiftGini:      weekendGini,
		EmployeeStats:         employeeStats,
		OverallFairnessScore:  f.overallScore(workloadGini, nightGini, weekendGini, stdDev, avgHours),
	}
}

type employeeWeek struct {
	employee uuid.UUID
	week     time.Time
}

// employeeStats 汇总每名员工的工时与班次分布
func (f *FairnessAnalyzer) employeeStats(assignments []*model.Assignment, employeeMap map[uuid.UUID]*model.Employee) []EmployeeStat {
	statMap := make(map[uuid.UUID]*EmployeeStat)
	weekHours := make(map[employeeWeek]float64)

	for _, a := range assignments {
		stat, exists := statMap[a.EmployeeID]
		if !exists {
			name := a.EmployeeID.String()
			if e, ok := employeeMap[a.EmployeeID]; ok {
				name = e.Name
			}
			stat = &EmployeeStat{
				EmployeeID:   a.EmployeeID,
				EmployeeName: name,
			}
			statMap[a.EmployeeID] = stat
		}

		stat.TotalHours += a.WorkingHours()
		stat.ShiftCount++

		if f.isNightShift(a.StartTime, a.EndTime) {
			stat.NightShifts++
		}
		if isWeekend(a.Date) {
			stat.WeekendShifts++
		}

		key := employeeWeek{employee: a.EmployeeID, week: timeutil.WeekStart(a.StartTime)}
		weekHours[key] += a.WorkingHours()
	}

	for key, total := range weekHours {
		limit := model.DefaultMaxHoursPerWeek
		if e, ok := employeeMap[key.employee]; ok {
			limit = e.EffectiveMaxHours()
		}
		if total > limit {
			statMap[key.employee].OvertimeHours += total - limit
		}
	}

	result := make([]EmployeeStat, 0, len(statMap))
	for _, stat := range statMap {
		result = append(result, *stat)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TotalHours != result[j].TotalHours {
			return result[i].TotalHours > result[j].TotalHours
		}
		return result[i].EmployeeID.String() < result[j].EmployeeID.String()
	})
	return result
}

// isNightShift 判断是否是夜班
func (f *FairnessAnalyzer) isNightShift(start, end time.Time) bool {
	return start.Hour() >= f.nightShiftStart || end.Hour() <= f.nightShiftEnd
}

// isWeekend 判断日期是否落在周末
func isWeekend(dateStr string) bool {
	date, err := timeutil.ParseDate(dateStr)
	if err != nil {
		return false
	}
	weekday := date.Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

// shiftTypeDistribution 统计早/午/夜班的占比
func (f *FairnessAnalyzer) shiftTypeDistribution(assignments []*model.Assignment) map[string]float64 {
	typeCounts := make(map[string]int)
	for _, a := range assignments {
		typeCounts[classifyShiftType(a.StartTime)]++
	}

	distribution := make(map[string]float64)
	total := len(assignments)
	if total > 0 {
		for shiftType, count := range typeCounts {
			distribution[shiftType] = float64(count) / float64(total) * 100
		}
	}
	return distribution
}

// classifyShiftType 按开始钟点分类班次
func classifyShiftType(start time.Time) string {
	hour := start.Hour()
	switch {
	case hour >= 6 && hour < 14:
		return "morning"
	case hour >= 14 && hour < 22:
		return "afternoon"
	default:
		return "night"
	}
}

// overallScore 计算综合公平性评分
func (f *FairnessAnalyzer) overallScore(workloadGini, nightGini, weekendGini, stdDev, avgHours float64) float64 {
	const (
		workloadWeight = 0.4
		nightWeight    = 0.25
		weekendWeight  = 0.25
		stdDevWeight   = 0.1
	)

	// 基尼系数转换为分数 (0=100分, 1=0分)
	workloadScore := (1 - workloadGini) * 100
	nightScore := (1 - nightGini) * 100
	weekendScore := (1 - weekendGini) * 100

	// 变异系数越低分数越高
	cvScore := 100.0
	if avgHours > 0 {
		cv := stdDev / avgHours
		cvScore = math.Max(0, 100-cv*200)
	}

	score := workloadWeight*workloadScore +
		nightWeight*nightScore +
		weekendWeight*weekendScore +
		stdDevWeight*cvScore
	return math.Max(0, math.Min(100, score))
}

// CompareSchedules 比较两个排班方案的公平性
func (f *FairnessAnalyzer) CompareSchedules(before, after []*model.Assignment, employees []*model.Employee) map[string]float64 {
	metricsBefore := f.Analyze(before, employees)
	metricsAfter := f.Analyze(after, employees)

	return map[string]float64{
		"workload_gini_diff": metricsAfter.WorkloadGini - metricsBefore.WorkloadGini,
		"night_gini_diff":    metricsAfter.NightShiftGini - metricsBefore.NightShiftGini,
		"weekend_gini_diff":  metricsAfter.WeekendShiftGini - metricsBefore.WeekendShiftGini,
		"overall_score_diff": metricsAfter.OverallFairnessScore - metricsBefore.OverallFairnessScore,
		"before_score":       metricsBefore.OverallFairnessScore,
		"after_score":        metricsAfter.OverallFairnessScore,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func varianceOf(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

func extremes(values []float64) (max, min float64) {
	if len(values) == 0 {
		return 0, 0
	}
	max, min = values[0], values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	return
}

// gini 计算基尼系数, 结果限制在 [0, 1]
func gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}

	g := 0.0
	for i, v := range sorted {
		g += (2*float64(i+1) - float64(n) - 1) * v
	}
	g = g / (float64(n) * sum)
	return math.Max(0, math.Min(1, g))
}
