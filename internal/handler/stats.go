package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/metrics"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/workspace"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/stats"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// StatsHandler 统计分析处理器
type StatsHandler struct{}

// NewStatsHandler 创建统计处理器
func NewStatsHandler() *StatsHandler {
	return &StatsHandler{}
}

// StatsRequest 统计请求, 分析对象随请求内联提交
type StatsRequest struct {
	OrgID       string              `json:"org_id" validate:"required,uuid"`
	StartDate   string              `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string              `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Employees   []*model.Employee   `json:"employees,omitempty"`
	Shifts      []*model.Shift      `json:"shifts,omitempty"`
	Assignments []*model.Assignment `json:"assignments"`

	// 各时段最低人力, 缺省时取工作区配置
	MinStaffPerHour map[int]int `json:"min_staff_per_hour,omitempty"`
}

// Fairness 公平性分析
func (h *StatsHandler) Fairness(w http.ResponseWriter, r *http.Request) {
	var req StatsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	analyzer := stats.NewFairnessAnalyzer()
	result := analyzer.Analyze(req.Assignments, req.Employees)

	metrics.SetFairnessGini(req.OrgID, "workload", result.WorkloadGini)
	metrics.SetFairnessGini(req.OrgID, "night_shift", result.NightShiftGini)
	metrics.SetFairnessGini(req.OrgID, "weekend_shift", result.WeekendShiftGini)
	respondJSON(w, http.StatusOK, result)
}

// Coverage 覆盖率分析
func (h *StatsHandler) Coverage(w http.ResponseWriter, r *http.Request) {
	var req StatsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	analyzer := stats.NewCoverageAnalyzer()
	switch {
	case len(req.MinStaffPerHour) > 0:
		analyzer.SetMinStaffRequirements(req.MinStaffPerHour)
	default:
		if ws, ok := workspace.FromContext(r.Context()); ok && len(ws.Settings.MinStaffPerHour) > 0 {
			analyzer.SetMinStaffRequirements(ws.Settings.MinStaffPerHour)
		}
	}
	result := analyzer.Analyze(req.Shifts, req.Assignments)

	metrics.SetCoverageRate(req.OrgID, result.OverallCoverage)
	respondJSON(w, http.StatusOK, result)
}

// WorkloadSummary 工作量汇总
type WorkloadSummary struct {
	Period            string                   `json:"period"`
	TotalHours        float64                  `json:"total_hours"`
	TotalAssignments  int                      `json:"total_assignments"`
	EmployeeCount     int                      `json:"employee_count"`
	AvgHoursPerPerson float64                  `json:"avg_hours_per_person"`
	OvertimeHours     float64                  `json:"overtime_hours"`
	ByEmployee        []EmployeeWorkload       `json:"by_employee"`
	ByDate            map[string]DailyWorkload `json:"by_date"`
	ByShiftType       map[string]float64       `json:"by_shift_type"`
}

// EmployeeWorkload 单个员工的工作量
type EmployeeWorkload struct {
	EmployeeID    uuid.UUID `json:"employee_id"`
	EmployeeName  string    `json:"employee_name"`
	TotalHours    float64   `json:"total_hours"`
	ShiftCount    int       `json:"shift_count"`
	OvertimeHours float64   `json:"overtime_hours"`
	Utilization   float64   `json:"utilization"` // 相对个人周上限的利用率 (%)
}

// DailyWorkload 单日工作量
type DailyWorkload struct {
	Date       string  `json:"date"`
	TotalHours float64 `json:"total_hours"`
	ShiftCount int     `json:"shift_count"`
	StaffCount int     `json:"staff_count"`
}

// Workload 工作量统计
//
// 加班与利用率按每名员工生效的周工时上限计算, 而不是统一的
// 标准工时。
func (h *StatsHandler) Workload(w http.ResponseWriter, r *http.Request) {
	var req StatsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summarizeWorkload(&req))
}

func summarizeWorkload(req *StatsRequest) *WorkloadSummary {
	summary := &WorkloadSummary{
		Period:      req.StartDate + " ~ " + req.EndDate,
		ByDate:      make(map[string]DailyWorkload),
		ByShiftType: make(map[string]float64),
	}

	employeeMap := make(map[uuid.UUID]*model.Employee, len(req.Employees))
	for _, e := range req.Employees {
		employeeMap[e.ID] = e
	}

	perEmployee := make(map[uuid.UUID]*EmployeeWorkload)
	staffSeen := make(map[string]map[uuid.UUID]bool)

	for _, a := range req.Assignments {
		if a.Status == model.AssignmentCancelled {
			continue
		}
		hours := a.WorkingHours()
		summary.TotalHours += hours
		summary.TotalAssignments++

		ew, ok := perEmployee[a.EmployeeID]
		if !ok {
			ew = &EmployeeWorkload{EmployeeID: a.EmployeeID}
			if emp := employeeMap[a.EmployeeID]; emp != nil {
				ew.EmployeeName = emp.Name
			}
			perEmployee[a.EmployeeID] = ew
		}
		ew.TotalHours += hours
		ew.ShiftCount++

		daily := summary.ByDate[a.Date]
		daily.Date = a.Date
		daily.TotalHours += hours
		daily.ShiftCount++
		if staffSeen[a.Date] == nil {
			staffSeen[a.Date] = make(map[uuid.UUID]bool)
		}
		if !staffSeen[a.Date][a.EmployeeID] {
			staffSeen[a.Date][a.EmployeeID] = true
			daily.StaffCount++
		}
		summary.ByDate[a.Date] = daily

		summary.ByShiftType[shiftTypeOf(a.StartTime)] += hours
	}

	summary.EmployeeCount = len(perEmployee)
	weeks := periodWeeks(req.StartDate, req.EndDate)

	for _, ew := range perEmployee {
		weeklyMax := model.DefaultMaxHoursPerWeek
		if emp := employeeMap[ew.EmployeeID]; emp != nil {
			weeklyMax = emp.EffectiveMaxHours()
		}
		expected := weeklyMax * weeks
		if ew.TotalHours > expected {
			ew.OvertimeHours = ew.TotalHours - expected
			summary.OvertimeHours += ew.OvertimeHours
		}
		if expected > 0 {
			ew.Utilization = ew.TotalHours / expected * 100
		}
		summary.ByEmployee = append(summary.ByEmployee, *ew)
	}
	sortWorkloads(summary.ByEmployee)

	if summary.EmployeeCount > 0 {
		summary.AvgHoursPerPerson = summary.TotalHours / float64(summary.EmployeeCount)
	}
	return summary
}

// periodWeeks 统计区间折算的周数, 不足一周按一周计
func periodWeeks(startDate, endDate string) float64 {
	start, err := timeutil.ParseDate(startDate)
	if err != nil {
		return 1
	}
	end, err := timeutil.ParseDate(endDate)
	if err != nil {
		return 1
	}
	weeks := end.Sub(start).Hours() / 24 / 7
	if weeks < 1 {
		return 1
	}
	return weeks
}

// shiftTypeOf 按开始时刻归类班次
func shiftTypeOf(start time.Time) string {
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

// sortWorkloads 按总工时降序, 并列时按员工ID保证输出稳定
func sortWorkloads(loads []EmployeeWorkload) {
	sort.Slice(loads, func(i, j int) bool {
		if loads[i].TotalHours != loads[j].TotalHours {
			return loads[i].TotalHours > loads[j].TotalHours
		}
		return loads[i].EmployeeID.String() < loads[j].EmployeeID.String()
	})
}
