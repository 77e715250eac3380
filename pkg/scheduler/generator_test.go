package scheduler

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

func testEmployee(name string) *model.Employee {
	return &model.Employee{
		BaseModel:  model.NewBaseModel(),
		Name:       name,
		Status:     "active",
		Department: "门店",
	}
}

func shiftOn(date, start, end string) *model.Shift {
	return &model.Shift{
		BaseModel: model.NewBaseModel(),
		Date:      date,
		StartTime: start,
		EndTime:   end,
	}
}

func draftSchedule() *model.Schedule {
	return &model.Schedule{
		BaseModel: model.NewBaseModel(),
		Name:      "第 6 周排班",
		Status:    model.ScheduleDraft,
		StartDate: "2024-02-05",
		EndDate:   "2024-02-11",
	}
}

func assignmentAt(empID uuid.UUID, date, start, end string) *model.Assignment {
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

func mustRange(s string) timeutil.ClockRange {
	r, err := timeutil.ParseClockRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func genSnapshot(emps []*model.Employee, shifts []*model.Shift, schedule *model.Schedule) *conflict.Snapshot {
	snap := conflict.NewSnapshot(uuid.New())
	snap.SetEmployees(emps)
	snap.SetShifts(shifts)
	snap.SetSchedule(schedule)
	return snap
}

func newGenerator() *Generator {
	return NewGenerator(conflict.NewDetector(conflict.Config{}))
}

func byShift(assignments []*model.Assignment) map[uuid.UUID]uuid.UUID {
	m := make(map[uuid.UUID]uuid.UUID)
	for _, a := range assignments {
		m[a.ShiftID] = a.EmployeeID
	}
	return m
}

func TestGenerate_CoversAllShifts(t *testing.T) {
	emps := []*model.Employee{testEmployee("张三"), testEmployee("李四")}
	shifts := []*model.Shift{
		shiftOn("2024-02-05", "09:00", "13:00"),
		shiftOn("2024-02-05", "14:00", "18:00"),
	}
	snap := genSnapshot(emps, shifts, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(result.Assignments) != 2 {
		t.Fatalf("分配数 = %d, 期望 2", len(result.Assignments))
	}
	if len(result.Uncovered) != 0 {
		t.Fatalf("未覆盖数 = %d, 期望 0: %+v", len(result.Uncovered), result.Uncovered)
	}
	if result.Assignments[0].EmployeeID == result.Assignments[1].EmployeeID {
		t.Error("两个班次应分给不同员工以平衡工时")
	}
	if result.Statistics.FillRate != 100 {
		t.Errorf("覆盖率 = %.1f, 期望 100", result.Statistics.FillRate)
	}
	if !strings.Contains(result.Message, "排班成功") {
		t.Errorf("结果消息 = %q", result.Message)
	}
}

func TestGenerate_FairnessSpreadsHours(t *testing.T) {
	emps := []*model.Employee{testEmployee("张三"), testEmployee("李四")}
	shifts := []*model.Shift{
		shiftOn("2024-02-05", "09:00", "17:00"),
		shiftOn("2024-02-06", "09:00", "17:00"),
		shiftOn("2024-02-07", "09:00", "17:00"),
	}
	snap := genSnapshot(emps, shifts, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Assignments) != 3 {
		t.Fatalf("分配数 = %d, 期望 3", len(result.Assignments))
	}

	counts := make(map[uuid.UUID]int)
	for _, a := range result.Assignments {
		counts[a.EmployeeID]++
	}
	if len(counts) != 2 {
		t.Fatalf("参与员工数 = %d, 期望 2", len(counts))
	}
	for id, n := range counts {
		if n < 1 || n > 2 {
			t.Errorf("员工 %s 分到 %d 个班次, 期望 1 或 2", id, n)
		}
	}
}

func TestGenerate_PrefersCleanCandidate(t *testing.T) {
	low := testEmployee("张三")
	high := testEmployee("李四")
	schedule := draftSchedule()
	// 张三工时更少会排在前面, 但接班间隔只有 1 小时会触发休息警告
	schedule.Assignments = []*model.Assignment{
		assignmentAt(low.ID, "2024-02-05", "09:00", "13:00"),
		assignmentAt(high.ID, "2024-02-06", "09:00", "17:00"),
	}

	shift := shiftOn("2024-02-05", "14:00", "18:00")
	snap := genSnapshot([]*model.Employee{low, high}, []*model.Shift{shift}, schedule)

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Assignments) != 1 {
		t.Fatalf("分配数 = %d, 期望 1", len(result.Assignments))
	}
	if result.Assignments[0].EmployeeID != high.ID {
		t.Errorf("班次分给了 %s, 期望无警告的李四", result.Assignments[0].EmployeeID)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("警告数 = %d, 期望 0", len(result.Warnings))
	}
}

func TestGenerate_BacktrackReassigns(t *testing.T) {
	flexible := testEmployee("张三")
	flexible.MaxHoursPerWeek = 8
	flexible.Preferences = &model.EmployeePreferences{PreferredTimes: []timeutil.ClockRange{mustRange("09:00-13:00")}}
	limited := testEmployee("李四")
	limited.MaxHoursPerWeek = 4

	short := shiftOn("2024-02-05", "09:00", "13:00")
	long := shiftOn("2024-02-06", "09:00", "17:00")
	snap := genSnapshot([]*model.Employee{flexible, limited}, []*model.Shift{short, long}, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Uncovered) != 0 {
		t.Fatalf("未覆盖数 = %d, 期望回溯后全覆盖: %+v", len(result.Uncovered), result.Uncovered)
	}

	got := byShift(result.Assignments)
	if got[short.ID] != limited.ID {
		t.Errorf("短班次分给了 %s, 期望回溯后改派李四", got[short.ID])
	}
	if got[long.ID] != flexible.ID {
		t.Errorf("长班次分给了 %s, 期望张三", got[long.ID])
	}
	if result.Statistics.Backtracks != 1 {
		t.Errorf("回溯次数 = %d, 期望 1", result.Statistics.Backtracks)
	}
}

func TestGenerate_NoBacktrackWhenDisabled(t *testing.T) {
	flexible := testEmployee("张三")
	flexible.MaxHoursPerWeek = 8
	flexible.Preferences = &model.EmployeePreferences{PreferredTimes: []timeutil.ClockRange{mustRange("09:00-13:00")}}
	limited := testEmployee("李四")
	limited.MaxHoursPerWeek = 4

	short := shiftOn("2024-02-05", "09:00", "13:00")
	long := shiftOn("2024-02-06", "09:00", "17:00")
	snap := genSnapshot([]*model.Employee{flexible, limited}, []*model.Shift{short, long}, draftSchedule())

	gen := newGenerator()
	gen.SetBacktrackDepth(0)
	result, err := gen.Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Uncovered) != 1 {
		t.Fatalf("未覆盖数 = %d, 期望关闭回溯后为 1", len(result.Uncovered))
	}
	if result.Uncovered[0].Shift.ID != long.ID {
		t.Errorf("未覆盖班次 = %s, 期望长班次", result.Uncovered[0].Shift.ID)
	}
	if result.Statistics.Backtracks != 0 {
		t.Errorf("回溯次数 = %d, 期望 0", result.Statistics.Backtracks)
	}
}

func TestGenerate_UncoveredCarriesConflict(t *testing.T) {
	emp := testEmployee("张三")
	shifts := []*model.Shift{
		shiftOn("2024-02-05", "09:00", "17:00"),
		shiftOn("2024-02-05", "09:00", "17:00"),
	}
	snap := genSnapshot([]*model.Employee{emp}, shifts, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Assignments) != 1 || len(result.Uncovered) != 1 {
		t.Fatalf("分配/未覆盖 = %d/%d, 期望 1/1", len(result.Assignments), len(result.Uncovered))
	}

	uc := result.Uncovered[0]
	if uc.LastConflict == nil {
		t.Fatal("未覆盖班次应携带最后一次阻断的冲突")
	}
	if uc.LastConflict.Type != model.ConflictDoubleBooking {
		t.Errorf("冲突类型 = %s, 期望 double_booking", uc.LastConflict.Type)
	}
	if uc.Reason != uc.LastConflict.Message {
		t.Errorf("未覆盖原因 = %q, 期望取冲突消息", uc.Reason)
	}
}

func TestGenerate_MoreEmployeesNeverReducesCoverage(t *testing.T) {
	emps := []*model.Employee{testEmployee("张三"), testEmployee("李四"), testEmployee("王五")}
	shifts := []*model.Shift{
		shiftOn("2024-02-05", "09:00", "17:00"),
		shiftOn("2024-02-05", "09:00", "17:00"),
		shiftOn("2024-02-05", "09:00", "17:00"),
	}

	prev := len(shifts) + 1
	for n := 1; n <= len(emps); n++ {
		snap := genSnapshot(emps[:n], shifts, draftSchedule())
		result, err := newGenerator().Generate(context.Background(), snap)
		if err != nil {
			t.Fatalf("Generate(%d 名员工): %v", n, err)
		}
		if len(result.Uncovered) > prev {
			t.Errorf("%d 名员工时未覆盖 %d 个, 多于 %d 名员工时的 %d 个",
				n, len(result.Uncovered), n-1, prev)
		}
		prev = len(result.Uncovered)
	}
	if prev != 0 {
		t.Errorf("3 名员工 3 个班次仍有 %d 个未覆盖", prev)
	}
}

func TestGenerate_IterationCapPartial(t *testing.T) {
	emp := testEmployee("张三")
	shifts := []*model.Shift{
		shiftOn("2024-02-05", "09:00", "13:00"),
		shiftOn("2024-02-06", "09:00", "13:00"),
	}
	snap := genSnapshot([]*model.Employee{emp}, shifts, draftSchedule())

	gen := newGenerator()
	gen.SetMaxIterations(1)
	result, err := gen.Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(result.Assignments) != 1 {
		t.Fatalf("分配数 = %d, 期望达到上限前完成 1 个", len(result.Assignments))
	}
	if len(result.Uncovered) != 1 || result.Uncovered[0].Reason != "试探次数达到上限" {
		t.Fatalf("未覆盖 = %+v, 期望试探次数上限原因", result.Uncovered)
	}
	if !strings.Contains(result.Message, "部分完成") {
		t.Errorf("结果消息 = %q", result.Message)
	}
}

func TestGenerate_CancelledContextPartial(t *testing.T) {
	emp := testEmployee("张三")
	shifts := []*model.Shift{shiftOn("2024-02-05", "09:00", "13:00")}
	snap := genSnapshot([]*model.Employee{emp}, shifts, draftSchedule())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newGenerator().Generate(ctx, snap)
	if err != nil {
		t.Fatalf("取消后仍应返回部分结果, got %v", err)
	}
	if len(result.Assignments) != 0 {
		t.Errorf("分配数 = %d, 期望 0", len(result.Assignments))
	}
	if len(result.Uncovered) != 1 || result.Uncovered[0].Reason != "生成超时中止" {
		t.Errorf("未覆盖 = %+v, 期望超时中止原因", result.Uncovered)
	}
}

func TestGenerate_WarningsTolerated(t *testing.T) {
	emp := testEmployee("张三")
	shifts := []*model.Shift{
		shiftOn("2024-02-05", "09:00", "13:00"),
		shiftOn("2024-02-05", "14:00", "18:00"),
	}
	snap := genSnapshot([]*model.Employee{emp}, shifts, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(result.Assignments) != 2 || len(result.Uncovered) != 0 {
		t.Fatalf("分配/未覆盖 = %d/%d, 期望警告被容忍后全覆盖", len(result.Assignments), len(result.Uncovered))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("警告数 = %d, 期望 1: %+v", len(result.Warnings), result.Warnings)
	}
	if result.Warnings[0].Type != model.ConflictInsufficientRest {
		t.Errorf("警告类型 = %s, 期望 insufficient_rest", result.Warnings[0].Type)
	}
	if result.Statistics.WarningCount != 1 {
		t.Errorf("统计警告数 = %d, 期望 1", result.Statistics.WarningCount)
	}
}

func TestGenerate_SkipsCoveredShifts(t *testing.T) {
	emp := testEmployee("张三")
	covered := shiftOn("2024-02-05", "09:00", "13:00")
	pending := shiftOn("2024-02-06", "09:00", "13:00")

	schedule := draftSchedule()
	existing := assignmentAt(emp.ID, "2024-02-05", "09:00", "13:00")
	existing.ShiftID = covered.ID
	schedule.Assignments = []*model.Assignment{existing}

	snap := genSnapshot([]*model.Employee{emp}, []*model.Shift{covered, pending}, schedule)

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Assignments) != 1 {
		t.Fatalf("分配数 = %d, 期望只补排未覆盖的班次", len(result.Assignments))
	}
	if result.Assignments[0].ShiftID != pending.ID {
		t.Errorf("补排班次 = %s, 期望 %s", result.Assignments[0].ShiftID, pending.ID)
	}
	if result.Statistics.TotalShifts != 1 {
		t.Errorf("待排班次数 = %d, 期望 1", result.Statistics.TotalShifts)
	}
}

func TestGenerate_NoEmployees(t *testing.T) {
	shifts := []*model.Shift{shiftOn("2024-02-05", "09:00", "13:00")}
	snap := genSnapshot(nil, shifts, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Uncovered) != 1 || result.Uncovered[0].Reason != "没有可用员工" {
		t.Errorf("未覆盖 = %+v, 期望无可用员工原因", result.Uncovered)
	}
}

func TestGenerate_NoShifts(t *testing.T) {
	snap := genSnapshot([]*model.Employee{testEmployee("张三")}, nil, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Message != "没有待排班次" {
		t.Errorf("结果消息 = %q", result.Message)
	}
}

func TestGenerate_InvalidShiftDate(t *testing.T) {
	emp := testEmployee("张三")
	bad := shiftOn("02/05/2024", "09:00", "13:00")
	good := shiftOn("2024-02-05", "09:00", "13:00")
	snap := genSnapshot([]*model.Employee{emp}, []*model.Shift{bad, good}, draftSchedule())

	result, err := newGenerator().Generate(context.Background(), snap)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(result.Assignments) != 1 || result.Assignments[0].ShiftID != good.ID {
		t.Fatalf("应只覆盖日期合法的班次: %+v", result.Assignments)
	}
	if len(result.Uncovered) != 1 || !strings.Contains(result.Uncovered[0].Reason, "无效") {
		t.Errorf("未覆盖 = %+v, 期望日期无效原因", result.Uncovered)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	emps := []*model.Employee{testEmployee("张三"), testEmployee("李四")}
	shifts := []*model.Shift{
		shiftOn("2024-02-05", "09:00", "17:00"),
		shiftOn("2024-02-06", "09:00", "17:00"),
		shiftOn("2024-02-07", "09:00", "17:00"),
	}

	first, err := newGenerator().Generate(context.Background(), genSnapshot(emps, shifts, draftSchedule()))
	if err != nil {
		t.Fatalf("第一次 Generate: %v", err)
	}
	second, err := newGenerator().Generate(context.Background(), genSnapshot(emps, shifts, draftSchedule()))
	if err != nil {
		t.Fatalf("第二次 Generate: %v", err)
	}

	a, b := byShift(first.Assignments), byShift(second.Assignments)
	if len(a) != len(b) {
		t.Fatalf("两次生成的分配数不同: %d vs %d", len(a), len(b))
	}
	for shiftID, empID := range a {
		if b[shiftID] != empID {
			t.Errorf("班次 %s 两次分给了不同员工: %s vs %s", shiftID, empID, b[shiftID])
		}
	}
}
