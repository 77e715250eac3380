package suggest

import (
	"testing"
	"time"

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

func snapshotWith(emps []*model.Employee, existing ...*model.Assignment) *conflict.Snapshot {
	snap := conflict.NewSnapshot(uuid.New())
	snap.SetEmployees(emps)
	snap.SetAssignments(existing)
	return snap
}

func newSuggester() *Suggester {
	return NewSuggester(conflict.NewDetector(conflict.Config{}), 0)
}

func TestAlternativeEmployees_RankByHours(t *testing.T) {
	owner := testEmployee("张三")
	busy := testEmployee("李四")
	medium := testEmployee("王五")
	light := testEmployee("赵六")

	snap := snapshotWith(
		[]*model.Employee{owner, busy, medium, light},
		assignmentAt(busy.ID, "2024-02-07", "14:00", "22:00"),
		assignmentAt(medium.ID, "2024-02-05", "09:00", "17:00"),
		assignmentAt(medium.ID, "2024-02-06", "09:00", "17:00"),
		assignmentAt(light.ID, "2024-02-05", "09:00", "17:00"),
	)

	candidate := assignmentAt(owner.ID, "2024-02-07", "09:00", "17:00")
	suggestions := newSuggester().AlternativeEmployees(snap, candidate)

	if len(suggestions) != 2 {
		t.Fatalf("建议数 = %d, 期望 2（重叠员工应被排除）: %+v", len(suggestions), suggestions)
	}
	if suggestions[0].EmployeeName != "赵六" || suggestions[0].WeeklyHours != 8 {
		t.Errorf("第一名 = %s/%v 小时, 期望工时最少的 赵六/8", suggestions[0].EmployeeName, suggestions[0].WeeklyHours)
	}
	if suggestions[1].EmployeeName != "王五" || suggestions[1].WeeklyHours != 16 {
		t.Errorf("第二名 = %s/%v 小时, 期望 王五/16", suggestions[1].EmployeeName, suggestions[1].WeeklyHours)
	}
	if suggestions[0].Rank != 1 || suggestions[1].Rank != 2 {
		t.Error("建议序号应从 1 连续编号")
	}
}

func TestAlternativeEmployees_PreferenceTieBreak(t *testing.T) {
	owner := testEmployee("张三")
	plain := testEmployee("李四")
	keen := testEmployee("王五")
	keen.Preferences = &model.EmployeePreferences{
		PreferredDays: []time.Weekday{time.Wednesday},
	}

	snap := snapshotWith([]*model.Employee{owner, plain, keen})

	// 2024-02-07 是周三
	candidate := assignmentAt(owner.ID, "2024-02-07", "09:00", "17:00")
	suggestions := newSuggester().AlternativeEmployees(snap, candidate)

	if len(suggestions) != 2 {
		t.Fatalf("建议数 = %d, 期望 2", len(suggestions))
	}
	if suggestions[0].EmployeeName != "王五" {
		t.Errorf("工时相同时应按偏好排序, 第一名 = %s", suggestions[0].EmployeeName)
	}
	if suggestions[0].Score != 1 {
		t.Errorf("偏好得分 = %v, 期望 1", suggestions[0].Score)
	}
}

func TestAlternativeEmployees_DeterministicOnFullTie(t *testing.T) {
	owner := testEmployee("张三")
	a := testEmployee("李四")
	b := testEmployee("王五")
	snap := snapshotWith([]*model.Employee{owner, a, b})

	candidate := assignmentAt(owner.ID, "2024-02-07", "09:00", "17:00")
	s := newSuggester()

	first := s.AlternativeEmployees(snap, candidate)
	second := s.AlternativeEmployees(snap, candidate)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("建议数 = %d/%d, 期望各 2", len(first), len(second))
	}
	for i := range first {
		if *first[i].EmployeeID != *second[i].EmployeeID {
			t.Fatal("完全平手时两次排序结果应一致")
		}
	}
	wantFirst := a.ID.String()
	if b.ID.String() < wantFirst {
		wantFirst = b.ID.String()
	}
	if first[0].EmployeeID.String() != wantFirst {
		t.Error("平手时应按员工 ID 升序")
	}
}

func TestAlternativeEmployees_SkipsUnavailable(t *testing.T) {
	owner := testEmployee("张三")
	offSunday := testEmployee("李四")
	offSunday.Availability = model.WeekAvailability{
		time.Sunday: {Available: false},
	}
	free := testEmployee("王五")

	snap := snapshotWith([]*model.Employee{owner, offSunday, free})

	// 2024-02-11 是周日
	candidate := assignmentAt(owner.ID, "2024-02-11", "09:00", "17:00")
	suggestions := newSuggester().AlternativeEmployees(snap, candidate)

	if len(suggestions) != 1 {
		t.Fatalf("建议数 = %d, 期望 1（周日不可用的员工应被排除）", len(suggestions))
	}
	if suggestions[0].EmployeeName != "王五" {
		t.Errorf("第一名 = %s, 期望 王五", suggestions[0].EmployeeName)
	}
}

func TestForConflict_MaxHoursReduce(t *testing.T) {
	emp := testEmployee("张三")
	existing := []*model.Assignment{
		assignmentAt(emp.ID, "2024-02-05", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-06", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-07", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-08", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-09", "09:00", "13:00"),
	}
	snap := snapshotWith([]*model.Employee{emp}, existing...)
	s := newSuggester()

	candidate := assignmentAt(emp.ID, "2024-02-10", "09:00", "17:00")
	conflicts := s.detector.Detect(snap, candidate)
	c := conflicts[0]
	if c.Type != model.ConflictMaxHoursExceeded {
		t.Fatalf("前置条件不成立, 冲突 = %s", c.Type)
	}

	suggestions := s.ForConflict(snap, c, candidate)
	var reduce *model.Suggestion
	for i := range suggestions {
		if suggestions[i].Type == model.SuggestReduceHours {
			reduce = &suggestions[i]
		}
	}
	if reduce == nil {
		t.Fatalf("缺少缩时建议: %+v", suggestions)
	}
	wantEnd := candidate.StartTime.Add(4 * time.Hour)
	if reduce.NewEnd == nil || !reduce.NewEnd.Equal(wantEnd) {
		t.Errorf("缩时后的结束 = %v, 期望剩余额度 4 小时到 %v", reduce.NewEnd, wantEnd)
	}
}

func TestForConflict_MaxHoursNoRoom(t *testing.T) {
	emp := testEmployee("张三")
	existing := []*model.Assignment{
		assignmentAt(emp.ID, "2024-02-05", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-06", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-07", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-08", "09:00", "17:00"),
		assignmentAt(emp.ID, "2024-02-09", "09:00", "15:00"),
	}
	snap := snapshotWith([]*model.Employee{emp}, existing...)
	s := newSuggester()

	candidate := assignmentAt(emp.ID, "2024-02-10", "09:00", "17:00")
	conflicts := s.detector.Detect(snap, candidate)
	if len(conflicts) == 0 {
		t.Fatal("前置条件不成立, 应检出周工时冲突")
	}

	suggestions := s.ForConflict(snap, conflicts[0], candidate)
	for _, sug := range suggestions {
		if sug.Type == model.SuggestReduceHours {
			t.Error("剩余额度不足单班下限时不应给出缩时建议")
		}
	}
}

func TestForConflict_RestAdjustFirst(t *testing.T) {
	emp := testEmployee("张三")
	free := testEmployee("李四")
	existing := assignmentAt(emp.ID, "2024-02-05", "14:00", "22:00")
	snap := snapshotWith([]*model.Employee{emp, free}, existing)
	s := newSuggester()

	candidate := assignmentAt(emp.ID, "2024-02-06", "06:00", "14:00")
	conflicts := s.detector.Detect(snap, candidate)
	if len(conflicts) != 1 || conflicts[0].Type != model.ConflictInsufficientRest {
		t.Fatalf("前置条件不成立: %+v", conflicts)
	}

	suggestions := s.ForConflict(snap, conflicts[0], candidate)
	if len(suggestions) < 2 {
		t.Fatalf("建议数 = %d, 期望时间调整加改派", len(suggestions))
	}
	if suggestions[0].Type != model.SuggestAdjustTime {
		t.Errorf("第一条 = %s, 期望 adjust_time", suggestions[0].Type)
	}
	if suggestions[1].Type != model.SuggestAlternativeEmployee || suggestions[1].EmployeeName != "李四" {
		t.Errorf("第二条 = %+v, 期望改派给 李四", suggestions[1])
	}
}

func TestEnrich(t *testing.T) {
	emp := testEmployee("张三")
	free := testEmployee("李四")
	existing := assignmentAt(emp.ID, "2024-02-05", "09:00", "17:00")
	snap := snapshotWith([]*model.Employee{emp, free}, existing)

	candidate := assignmentAt(emp.ID, "2024-02-05", "14:00", "22:00")
	conflicts := newSuggester().Enrich(snap, candidate)

	if len(conflicts) != 1 || conflicts[0].Type != model.ConflictOverlap {
		t.Fatalf("冲突 = %+v, 期望单条重叠", conflicts)
	}
	if len(conflicts[0].Suggestions) == 0 {
		t.Fatal("补全后应携带改派建议")
	}
	if conflicts[0].Suggestions[0].EmployeeName != "李四" {
		t.Errorf("建议改派给 = %s, 期望 李四", conflicts[0].Suggestions[0].EmployeeName)
	}
}
