// Package stats 提供排班覆盖与公平性统计
package stats

import (
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// CoverageMetrics 覆盖率指标
type CoverageMetrics struct {
	TotalShifts     int     `json:"total_shifts"`
	AssignedShifts  int     `json:"assigned_shifts"`
	OverallCoverage float64 `json:"overall_coverage"` // 整体覆盖率 (%)

	DailyCoverage    map[string]DayCoverage `json:"daily_coverage"`
	PositionCoverage map[string]float64     `json:"position_coverage"`
	HourlyCoverage   map[int]float64        `json:"hourly_coverage"` // 按小时覆盖率 (0-23)

	// 各时段人力需求被满足的比例
	DemandSatisfaction float64 `json:"demand_satisfaction"`

	UncoveredShifts []UncoveredSlot      `json:"uncovered_shifts,omitempty"`
	Understaffed    []UnderstaffedPeriod `json:"understaffed,omitempty"`
}

// DayCoverage 单日覆盖情况
type DayCoverage struct {
	Date         string  `json:"date"`
	TotalShifts  int     `json:"total_shifts"`
	Assigned     int     `json:"assigned"`
	CoverageRate float64 `json:"coverage_rate"`
	TotalHours   float64 `json:"total_hours"`
}

// UncoveredSlot 未覆盖的班次
type UncoveredSlot struct {
	ShiftID   uuid.UUID `json:"shift_id"`
	Date      string    `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Position  string    `json:"position,omitempty"`
}

// UnderstaffedPeriod 低于最低人力配置的时段
type UnderstaffedPeriod struct {
	Date     string `json:"date"`
	Hour     int    `json:"hour"`
	Required int    `json:"required"`
	Assigned int    `json:"assigned"`
	Shortage int    `json:"shortage"`
}

// CoverageAnalyzer 覆盖率分析器
type CoverageAnalyzer struct {
	minStaffPerHour map[int]int
}

// NewCoverageAnalyzer 创建覆盖率分析器
func NewCoverageAnalyzer() *CoverageAnalyzer {
	return &CoverageAnalyzer{
		minStaffPerHour: make(map[int]int),
	}
}

// SetMinStaffRequirements 设置各时段最低人力需求
func (c *CoverageAnalyzer) SetMinStaffRequirements(requirements map[int]int) {
	c.minStaffPerHour = requirements
}

// Analyze 统计班次覆盖情况
//
// 被取消的分配不计入覆盖, 跨午夜班次的时段归入其开始日期。
func (c *CoverageAnalyzer) Analyze(shifts []*model.Shift, assignments []*model.Assignment) *CoverageMetrics {
	metrics := &CoverageMetrics{
		DailyCoverage:    make(map[string]DayCoverage),
		PositionCoverage: make(map[string]float64),
		HourlyCoverage:   make(map[int]float64),
	}
	if len(shifts) == 0 {
		metrics.OverallCoverage = 100
		metrics.DemandSatisfaction = 100
		return metrics
	}

	assigned := make(map[uuid.UUID]bool)
	for _, a := range assignments {
		if a.Status != model.AssignmentCancelled {
			assigned[a.ShiftID] = true
		}
	}

	daily := make(map[string]*DayCoverage)
	positionTotals := make(map[string]int)
	positionAssigned := make(map[string]int)
	hourlyRequired := make(map[int]int)
	hourlyAssigned := make(map[int]int)
	staffByHour := make(map[hourKey]int)
	requiredByHour := make(map[hourKey]int)

	for _, shift := range shifts {
		metrics.TotalShifts++
		isAssigned := assigned[shift.ID]
		if isAssigned {
			metrics.AssignedShifts++
		} else {
			metrics.UncoveredShifts = append(metrics.UncoveredShifts, UncoveredSlot{
				ShiftID:   shift.ID,
				Date:      shift.Date,
				StartTime: shift.StartTime,
				EndTime:   shift.EndTime,
				Position:  shift.Position,
			})
		}

		day, ok := daily[shift.Date]
		if !ok {
			day = &DayCoverage{Date: shift.Date}
			daily[shift.Date] = day
		}
		day.TotalShifts++
		if isAssigned {
			day.Assigned++
			day.TotalHours += shift.Hours()
		}

		positionTotals[shift.Position]++
		if isAssigned {
			positionAssigned[shift.Position]++
		}

		for _, h := range shiftHours(shift) {
			hourlyRequired[h]++
			key := hourKey{date: shift.Date, hour: h}
			requiredByHour[key]++
			if isAssigned {
				hourlyAssigned[h]++
				staffByHour[key]++
			}
		}
	}

	metrics.OverallCoverage = percent(metrics.AssignedShifts, metrics.TotalShifts)

	for date, day := range daily {
		day.CoverageRate = percent(day.Assigned, day.TotalShifts)
		metrics.DailyCoverage[date] = *day
	}
	for position, total := range positionTotals {
		metrics.PositionCoverage[position] = percent(positionAssigned[position], total)
	}
	for hour := 0; hour < 24; hour++ {
		if hourlyRequired[hour] > 0 {
			metrics.HourlyCoverage[hour] = percent(hourlyAssigned[hour], hourlyRequired[hour])
		} else {
			metrics.HourlyCoverage[hour] = 100
		}
	}

	metrics.DemandSatisfaction = demandSatisfaction(hourlyRequired, hourlyAssigned)
	metrics.Understaffed = c.identifyUnderstaffed(requiredByHour, staffByHour)
	return metrics
}

type hourKey struct {
	date string
	hour int
}

// identifyUnderstaffed 找出在排人数低于最低配置的时段
func (c *CoverageAnalyzer) identifyUnderstaffed(required, staff map[hourKey]int) []UnderstaffedPeriod {
	var periods []UnderstaffedPeriod
	for key := range required {
		minRequired := c.minStaffPerHour[key.hour]
		assigned := staff[key]
		if minRequired > 0 && assigned < minRequired {
			periods = append(periods, UnderstaffedPeriod{
				Date:     key.date,
				Hour:     key.hour,
				Required: minRequired,
				Assigned: assigned,
				Shortage: minRequired - assigned,
			})
		}
	}

	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Date != periods[j].Date {
			return periods[i].Date < periods[j].Date
		}
		return periods[i].Hour < periods[j].Hour
	})
	return periods
}

// demandSatisfaction 按时段累计需求被满足的比例
func demandSatisfaction(required, assigned map[int]int) float64 {
	totalRequired := 0
	totalSatisfied := 0
	for hour, req := range required {
		totalRequired += req
		if got := assigned[hour]; got >= req {
			totalSatisfied += req
		} else {
			totalSatisfied += got
		}
	}
	if totalRequired == 0 {
		return 100
	}
	return float64(totalSatisfied) / float64(totalRequired) * 100
}

// shiftHours 返回班次跨越的小时桶 (0-23)
func shiftHours(shift *model.Shift) []int {
	start, end, err := shift.Window()
	if err != nil {
		return nil
	}
	span := int(math.Ceil(end.Sub(start).Hours()))

	hours := make([]int, 0, span)
	first := start.Hour()
	for h := first; h < first+span; h++ {
		hours = append(hours, h%24)
	}
	return hours
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
