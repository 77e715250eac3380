package stats

import (
	"math"
	"testing"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

func statEmployee(name string) *model.Employee {
	return &model.Employee{
		BaseModel: model.NewBaseModel(),
		Name:      name,
		Status:    "active",
	}
}

func workAssignment(emp *model.Employee, date, start, end string) *model.Assignment {
	day, err := timeutil.ParseDate(date)
	if err != nil {
		panic(err)
	}
	absStart, absEnd := timeutil.NormalizeShift(day, timeutil.MustClock(start), timeutil.MustClock(end))
	return &model.Assignment{
		BaseModel:  model.NewBaseModel(),
		EmployeeID: emp.ID,
		ShiftID:    uuid.New(),
		Date:       date,
		StartTime:  absStart,
		EndTime:    absEnd,
		Status:     model.AssignmentConfirmed,
	}
}

func statFor(t *testing.T, metrics *FairnessMetrics, name string) EmployeeStat {
	t.Helper()
	for _, s := range metrics.EmployeeStats {
		if s.EmployeeName == name {
			return s
		}
	}
	t.Fatalf("缺少 %s 的员工统计", name)
	return EmployeeStat{}
}

func TestFairness_WorkloadSpread(t *testing.T) {
	zhangsan := statEmployee("张三")
	lisi := statEmployee("李四")

	assignments := []*model.Assignment{
		workAssignment(zhangsan, "2024-02-05", "09:00", "17:00"),
		workAssignment(zhangsan, "2024-02-06", "09:00", "17:00"),
		workAssignment(lisi, "2024-02-05", "09:00", "17:00"),
	}

	metrics := NewFairnessAnalyzer().Analyze(assignments, []*model.Employee{zhangsan, lisi})

	if !closeTo(metrics.AvgHoursPerEmployee, 12) {
		t.Errorf("预期人均 12 小时，实际 %.2f", metrics.AvgHoursPerEmployee)
	}
	if !closeTo(metrics.MaxHours, 16) || !closeTo(metrics.MinHours, 8) || !closeTo(metrics.HoursRange, 8) {
		t.Errorf("工时极值不对: max=%.1f min=%.1f range=%.1f",
			metrics.MaxHours, metrics.MinHours, metrics.HoursRange)
	}
	if !closeTo(metrics.WorkloadVariance, 16) || !closeTo(metrics.WorkloadStdDev, 4) {
		t.Errorf("方差/标准差不对: %.2f / %.2f", metrics.WorkloadVariance, metrics.WorkloadStdDev)
	}

	// 工时 [8, 16] 的基尼系数为 8/48
	if !closeTo(metrics.WorkloadGini, 8.0/48.0) {
		t.Errorf("预期基尼系数 %.4f，实际 %.4f", 8.0/48.0, metrics.WorkloadGini)
	}

	if len(metrics.EmployeeStats) != 2 || metrics.EmployeeStats[0].EmployeeName != "张三" {
		t.Fatalf("员工统计应按工时降序: %+v", metrics.EmployeeStats)
	}
	if !closeTo(statFor(t, metrics, "张三").Deviation, 100.0/3) {
		t.Errorf("张三偏差应为 +33.33%%，实际 %.2f%%", statFor(t, metrics, "张三").Deviation)
	}
	if !closeTo(statFor(t, metrics, "李四").Deviation, -100.0/3) {
		t.Errorf("李四偏差应为 -33.33%%，实际 %.2f%%", statFor(t, metrics, "李四").Deviation)
	}

	if math.Abs(metrics.OverallFairnessScore-86.6667) > 0.01 {
		t.Errorf("综合评分不对: %.4f", metrics.OverallFairnessScore)
	}
}

func TestFairness_NightAndWeekend(t *testing.T) {
	zhangsan := statEmployee("张三")
	lisi := statEmployee("李四")

	assignments := []*model.Assignment{
		// 周五跨午夜的夜班
		workAssignment(zhangsan, "2024-02-09", "22:00", "02:00"),
		// 周日午班
		workAssignment(zhangsan, "2024-02-11", "14:00", "18:00"),
		// 周六早班
		workAssignment(lisi, "2024-02-10", "09:00", "17:00"),
	}

	metrics := NewFairnessAnalyzer().Analyze(assignments, []*model.Employee{zhangsan, lisi})

	zs := statFor(t, metrics, "张三")
	if zs.NightShifts != 1 || zs.WeekendShifts != 1 || zs.ShiftCount != 2 {
		t.Errorf("张三统计不对: %+v", zs)
	}
	ls := statFor(t, metrics, "李四")
	if ls.NightShifts != 0 || ls.WeekendShifts != 1 {
		t.Errorf("李四统计不对: %+v", ls)
	}

	for _, shiftType := range []string{"morning", "afternoon", "night"} {
		if !closeTo(metrics.ShiftTypeDistribution[shiftType], 100.0/3) {
			t.Errorf("%s 占比应为三分之一，实际 %.2f%%",
				shiftType, metrics.ShiftTypeDistribution[shiftType])
		}
	}

	if !closeTo(metrics.NightShiftGini, 0.5) {
		t.Errorf("夜班集中在一人时基尼系数应为 0.5，实际 %.4f", metrics.NightShiftGini)
	}
	if !closeTo(metrics.WeekendShiftGini, 0) {
		t.Errorf("周末班均分时基尼系数应为 0，实际 %.4f", metrics.WeekendShiftGini)
	}
}

func TestFairness_OvertimePerWeek(t *testing.T) {
	lisi := statEmployee("李四")
	lisi.MaxHoursPerWeek = 8
	wangwu := statEmployee("王五")
	wangwu.MaxHoursPerWeek = 8

	assignments := []*model.Assignment{
		// 李四同一周内排了 16 小时
		workAssignment(lisi, "2024-02-05", "09:00", "17:00"),
		workAssignment(lisi, "2024-02-06", "09:00", "17:00"),
		// 王五两周各 8 小时
		workAssignment(wangwu, "2024-02-05", "09:00", "17:00"),
		workAssignment(wangwu, "2024-02-12", "09:00", "17:00"),
	}

	metrics := NewFairnessAnalyzer().Analyze(assignments, []*model.Employee{lisi, wangwu})

	if got := statFor(t, metrics, "李四").OvertimeHours; !closeTo(got, 8) {
		t.Errorf("预期李四加班 8 小时，实际 %.1f", got)
	}
	if got := statFor(t, metrics, "王五").OvertimeHours; !closeTo(got, 0) {
		t.Errorf("跨周工时不应累计为加班，实际 %.1f", got)
	}
}

func TestFairness_CancelledSkipped(t *testing.T) {
	zhangsan := statEmployee("张三")
	lisi := statEmployee("李四")
	employees := []*model.Employee{zhangsan, lisi}

	active := workAssignment(zhangsan, "2024-02-05", "09:00", "17:00")
	cancelled := workAssignment(lisi, "2024-02-05", "09:00", "17:00")
	cancelled.Status = model.AssignmentCancelled

	metrics := NewFairnessAnalyzer().Analyze([]*model.Assignment{active, cancelled}, employees)
	if len(metrics.EmployeeStats) != 1 || metrics.EmployeeStats[0].EmployeeName != "张三" {
		t.Errorf("被取消的分配不应产生员工统计: %+v", metrics.EmployeeStats)
	}

	metrics = NewFairnessAnalyzer().Analyze([]*model.Assignment{cancelled}, employees)
	if !closeTo(metrics.OverallFairnessScore, 100) || len(metrics.EmployeeStats) != 0 {
		t.Errorf("全部取消时应返回空统计: %+v", metrics)
	}
}

func TestFairness_EmptyInputs(t *testing.T) {
	zhangsan := statEmployee("张三")

	metrics := NewFairnessAnalyzer().Analyze(nil, []*model.Employee{zhangsan})
	if !closeTo(metrics.OverallFairnessScore, 100) {
		t.Errorf("无分配时评分应为 100，实际 %.1f", metrics.OverallFairnessScore)
	}

	metrics = NewFairnessAnalyzer().Analyze(
		[]*model.Assignment{workAssignment(zhangsan, "2024-02-05", "09:00", "17:00")}, nil)
	if !closeTo(metrics.OverallFairnessScore, 100) {
		t.Errorf("无员工名单时评分应为 100，实际 %.1f", metrics.OverallFairnessScore)
	}
}

func TestFairness_BalancedIsFullScore(t *testing.T) {
	zhangsan := statEmployee("张三")
	lisi := statEmployee("李四")

	assignments := []*model.Assignment{
		workAssignment(zhangsan, "2024-02-05", "09:00", "17:00"),
		workAssignment(lisi, "2024-02-05", "09:00", "17:00"),
	}

	metrics := NewFairnessAnalyzer().Analyze(assignments, []*model.Employee{zhangsan, lisi})

	if !closeTo(metrics.WorkloadGini, 0) || !closeTo(metrics.OverallFairnessScore, 100) {
		t.Errorf("完全均衡时应满分: gini=%.4f score=%.1f",
			metrics.WorkloadGini, metrics.OverallFairnessScore)
	}
	for _, s := range metrics.EmployeeStats {
		if !closeTo(s.Deviation, 0) {
			t.Errorf("%s 偏差应为 0，实际 %.2f%%", s.EmployeeName, s.Deviation)
		}
	}
}

func TestFairness_CompareSchedules(t *testing.T) {
	zhangsan := statEmployee("张三")
	lisi := statEmployee("李四")
	employees := []*model.Employee{zhangsan, lisi}

	before := []*model.Assignment{
		workAssignment(zhangsan, "2024-02-05", "09:00", "17:00"),
		workAssignment(zhangsan, "2024-02-06", "09:00", "17:00"),
		workAssignment(zhangsan, "2024-02-07", "09:00", "17:00"),
		workAssignment(lisi, "2024-02-08", "09:00", "17:00"),
	}
	after := []*model.Assignment{
		workAssignment(zhangsan, "2024-02-05", "09:00", "17:00"),
		workAssignment(zhangsan, "2024-02-06", "09:00", "17:00"),
		workAssignment(lisi, "2024-02-07", "09:00", "17:00"),
		workAssignment(lisi, "2024-02-08", "09:00", "17:00"),
	}

	diff := NewFairnessAnalyzer().CompareSchedules(before, after, employees)

	if diff["overall_score_diff"] <= 0 {
		t.Errorf("均衡后的方案评分应提升，实际变化 %.2f", diff["overall_score_diff"])
	}
	if diff["workload_gini_diff"] >= 0 {
		t.Errorf("均衡后的基尼系数应下降，实际变化 %.4f", diff["workload_gini_diff"])
	}
	if diff["after_score"] <= diff["before_score"] {
		t.Errorf("评分对比不对: before=%.1f after=%.1f", diff["before_score"], diff["after_score"])
	}
}
