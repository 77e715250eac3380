// Package scenario 用完整的行业场景驱动排班引擎
package scenario

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/scheduler"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/stats"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// restaurantWeek 五名服务员加一名厨师, 每天两个早班、一个晚班和一个厨房班
func restaurantWeek() ([]*model.Employee, *model.Employee, []*model.Shift) {
	employees := []*model.Employee{
		createEmployee("王艳", "服务员"),
		createEmployee("刘敏", "服务员"),
		createEmployee("陈浩", "服务员"),
		createEmployee("杨静", "服务员"),
		createEmployee("周磊", "服务员"),
	}
	cook := createEmployee("赵成", "厨师")
	employees = append(employees, cook)

	var shifts []*model.Shift
	for _, date := range weekDates() {
		shifts = append(shifts,
			createShift(date, "08:00", "16:00", "服务员"),
			createShift(date, "08:00", "16:00", "服务员"),
			createShift(date, "16:00", "22:00", "服务员"),
			createShift(date, "10:00", "14:00", "厨师"),
		)
	}
	return employees, cook, shifts
}

func TestRestaurantFullWeekCoverage(t *testing.T) {
	employees, cook, shifts := restaurantWeek()
	snap := buildSnapshot(employees, shifts, createSchedule("餐厅第 6 周排班"))

	gen := scheduler.NewGenerator(newDetector())
	result, err := gen.Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Statistics.TotalShifts != 28 {
		t.Fatalf("待排班次数 = %d, 期望 28", result.Statistics.TotalShifts)
	}
	if len(result.Uncovered) != 0 {
		t.Fatalf("未覆盖数 = %d, 期望人手充足时全覆盖: %+v", len(result.Uncovered), result.Uncovered)
	}
	if result.Statistics.FillRate != 100 {
		t.Errorf("覆盖率 = %.1f, 期望 100", result.Statistics.FillRate)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("警告数 = %d, 期望五人轮换下无休息警告: %+v", len(result.Warnings), result.Warnings)
	}

	// 岗位匹配: 厨房班只给厨师, 前厅班不给厨师
	shiftByID := make(map[uuid.UUID]*model.Shift)
	for _, s := range shifts {
		shiftByID[s.ID] = s
	}
	cookShifts := 0
	for _, a := range result.Assignments {
		shift := shiftByID[a.ShiftID]
		if shift.Position == "厨师" {
			cookShifts++
			if a.EmployeeID != cook.ID {
				t.Errorf("厨房班 %s 分给了 %s, 期望厨师", shift.Date, a.EmployeeID)
			}
		} else if a.EmployeeID == cook.ID {
			t.Errorf("厨师被排到了 %s 的前厅班次", shift.Date)
		}
	}
	if cookShifts != 7 {
		t.Errorf("厨房班分配数 = %d, 期望 7", cookShifts)
	}

	for _, emp := range employees {
		if hours := hoursByEmployee(result.Assignments)[emp.ID]; hours > emp.EffectiveMaxHours() {
			t.Errorf("员工 %s 周工时 %.1f 超过上限 %.1f", emp.Name, hours, emp.EffectiveMaxHours())
		}
	}
}

func TestRestaurantShortStaffed(t *testing.T) {
	employees := []*model.Employee{
		createEmployee("王艳", "服务员"),
		createEmployee("刘敏", "服务员"),
	}
	var shifts []*model.Shift
	for _, date := range weekDates() {
		shifts = append(shifts,
			createShift(date, "08:00", "16:00", "服务员"),
			createShift(date, "08:00", "16:00", "服务员"),
			createShift(date, "16:00", "22:00", "服务员"),
		)
	}
	snap := buildSnapshot(employees, shifts, createSchedule("餐厅缺人周排班"))

	result, err := scheduler.NewGenerator(newDetector()).Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Statistics.TotalShifts != 21 {
		t.Fatalf("待排班次数 = %d, 期望 21", result.Statistics.TotalShifts)
	}
	if got := result.Statistics.CoveredShifts + len(result.Uncovered); got != 21 {
		t.Errorf("覆盖数与未覆盖数之和 = %d, 期望 21", got)
	}
	if len(result.Uncovered) < 9 {
		t.Errorf("未覆盖数 = %d, 两人周上限共 80 小时, 期望至少 9 个班次排不出", len(result.Uncovered))
	}
	if result.Statistics.FillRate >= 60 {
		t.Errorf("覆盖率 = %.1f, 期望低于 60", result.Statistics.FillRate)
	}

	// 每个未覆盖班次都要携带最后一次阻断它的冲突
	for _, uc := range result.Uncovered {
		if uc.LastConflict == nil {
			t.Errorf("班次 %s %s 未覆盖但没有冲突记录", uc.Shift.Date, uc.Shift.StartTime)
			continue
		}
		if !uc.LastConflict.IsBlocking() {
			t.Errorf("班次 %s 的冲突 %s 不是阻断级", uc.Shift.Date, uc.LastConflict.Type)
		}
		if uc.Reason != uc.LastConflict.Message {
			t.Errorf("未覆盖原因 = %q, 期望取冲突消息", uc.Reason)
		}
	}

	// 超负荷也不能把人排过上限
	for empID, hours := range hoursByEmployee(result.Assignments) {
		if hours > model.DefaultMaxHoursPerWeek {
			t.Errorf("员工 %s 周工时 %.1f 超过 40 小时上限", empID, hours)
		}
	}
}

func TestRestaurantFairnessAndCoverage(t *testing.T) {
	employees, _, shifts := restaurantWeek()
	snap := buildSnapshot(employees, shifts, createSchedule("餐厅第 6 周排班"))

	result, err := scheduler.NewGenerator(newDetector()).Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	fairness := stats.NewFairnessAnalyzer().Analyze(result.Assignments, employees)
	if len(fairness.EmployeeStats) != 6 {
		t.Fatalf("参与统计的员工数 = %d, 期望 6", len(fairness.EmployeeStats))
	}
	if fairness.AvgHoursPerEmployee <= 0 {
		t.Error("人均工时应大于 0")
	}
	if fairness.MaxHours > model.DefaultMaxHoursPerWeek {
		t.Errorf("最大工时 = %.1f, 超过 40", fairness.MaxHours)
	}
	if fairness.WorkloadGini > 0.15 {
		t.Errorf("工时基尼系数 = %.3f, 贪心生成应把工时摊得更平", fairness.WorkloadGini)
	}
	if fairness.OverallFairnessScore < 70 {
		t.Errorf("综合公平性评分 = %.1f, 期望不低于 70", fairness.OverallFairnessScore)
	}

	analyzer := stats.NewCoverageAnalyzer()
	analyzer.SetMinStaffRequirements(map[int]int{12: 4})
	coverage := analyzer.Analyze(shifts, result.Assignments)

	if coverage.OverallCoverage != 100 {
		t.Errorf("整体覆盖率 = %.1f, 期望 100", coverage.OverallCoverage)
	}
	if coverage.DemandSatisfaction != 100 {
		t.Errorf("需求满足率 = %.1f, 期望 100", coverage.DemandSatisfaction)
	}
	if len(coverage.DailyCoverage) != 7 {
		t.Errorf("单日覆盖条目数 = %d, 期望 7", len(coverage.DailyCoverage))
	}
	for position, rate := range coverage.PositionCoverage {
		if rate != 100 {
			t.Errorf("岗位 %s 覆盖率 = %.1f, 期望 100", position, rate)
		}
	}

	// 午市 12 点仅有两个早班加厨房班共三人在岗, 按四人要求每天缺 1 人
	if len(coverage.Understaffed) != 7 {
		t.Fatalf("人力不足时段数 = %d, 期望 7: %+v", len(coverage.Understaffed), coverage.Understaffed)
	}
	for _, p := range coverage.Understaffed {
		if p.Hour != 12 || p.Shortage != 1 {
			t.Errorf("人力不足时段 %+v, 期望 12 点缺 1 人", p)
		}
	}
}

// 辅助函数

func createEmployee(name, position string) *model.Employee {
	return &model.Employee{
		BaseModel: model.NewBaseModel(),
		Name:      name,
		Position:  position,
		Status:    "active",
	}
}

func createShift(date, start, end, position string) *model.Shift {
	return &model.Shift{
		BaseModel: model.NewBaseModel(),
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Position:  position,
	}
}

func createSchedule(name string) *model.Schedule {
	return &model.Schedule{
		BaseModel: model.NewBaseModel(),
		Name:      name,
		Status:    model.ScheduleDraft,
		StartDate: "2024-02-05",
		EndDate:   "2024-02-11",
	}
}

func createAssignment(empID uuid.UUID, date, start, end string) *model.Assignment {
	d, err := timeutil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	absStart, absEnd := timeutil.NormalizeShift(d, timeutil.MustClock(start), timeutil.MustClock(end))
	return &model.Assignment{
		BaseModel:  model.NewBaseModel(),
		EmployeeID: empID,
		Date:       date,
		StartTime:  absStart,
		EndTime:    absEnd,
		Status:     model.AssignmentProposed,
	}
}

func buildSnapshot(emps []*model.Employee, shifts []*model.Shift, schedule *model.Schedule) *conflict.Snapshot {
	snap := conflict.NewSnapshot(uuid.New())
	snap.SetEmployees(emps)
	snap.SetShifts(shifts)
	snap.SetSchedule(schedule)
	return snap
}

func newDetector() *conflict.Detector {
	return conflict.NewDetector(conflict.Config{})
}

func mustClockRange(s string) timeutil.ClockRange {
	r, err := timeutil.ParseClockRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// weekDates 2024-02-05 所在周的七个日期, 周一起算
func weekDates() []string {
	return []string{
		"2024-02-05", "2024-02-06", "2024-02-07", "2024-02-08",
		"2024-02-09", "2024-02-10", "2024-02-11",
	}
}

func hoursByEmployee(assignments []*model.Assignment) map[uuid.UUID]float64 {
	hours := make(map[uuid.UUID]float64)
	for _, a := range assignments {
		hours[a.EmployeeID] += a.WorkingHours()
	}
	return hours
}
