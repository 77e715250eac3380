// Package conflict 实现排班冲突检测
package conflict

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/rules"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// Snapshot 一次检测所依赖的只读数据快照
//
// 检测本身不读写外部状态, 调用方先把员工、班次、既有分配和
// 编译后的规则装入快照, 再对候选分配执行检测。装载完成后的
// 快照可被多个检测并发读取, 但装载与 Add/Remove 不可并发。
type Snapshot struct {
	OrgID    uuid.UUID
	Schedule *model.Schedule // 候选所属计划, 单次校验时可为 nil

	Employees   []*model.Employee
	Shifts      []*model.Shift
	Assignments []*model.Assignment // 当前计划范围内的既有分配

	employeeMap map[uuid.UUID]*model.Employee
	shiftMap    map[uuid.UUID]*model.Shift
	byEmployee  map[uuid.UUID][]*model.Assignment // 按开始时间排序
	crossByEmp  map[uuid.UUID][]CrossAssignment
	compiled    map[uuid.UUID]*rules.CompiledRules
}

// CrossAssignment 其他活动计划中的分配, 跨计划重叠检查用
type CrossAssignment struct {
	ScheduleID   uuid.UUID
	ScheduleName string
	Assignment   *model.Assignment
}

// NewSnapshot 创建空快照
func NewSnapshot(orgID uuid.UUID) *Snapshot {
	return &Snapshot{
		OrgID:       orgID,
		employeeMap: make(map[uuid.UUID]*model.Employee),
		shiftMap:    make(map[uuid.UUID]*model.Shift),
		byEmployee:  make(map[uuid.UUID][]*model.Assignment),
		crossByEmp:  make(map[uuid.UUID][]CrossAssignment),
		compiled:    make(map[uuid.UUID]*rules.CompiledRules),
	}
}

// SetEmployees 装入员工列表
func (s *Snapshot) SetEmployees(employees []*model.Employee) {
	s.Employees = employees
	s.employeeMap = make(map[uuid.UUID]*model.Employee, len(employees))
	for _, e := range employees {
		s.employeeMap[e.ID] = e
	}
}

// SetShifts 装入班次列表
func (s *Snapshot) SetShifts(shifts []*model.Shift) {
	s.Shifts = shifts
	s.shiftMap = make(map[uuid.UUID]*model.Shift, len(shifts))
	for _, sh := range shifts {
		s.shiftMap[sh.ID] = sh
	}
}

// SetSchedule 装入当前计划及其既有分配
func (s *Snapshot) SetSchedule(schedule *model.Schedule) {
	s.Schedule = schedule
	if schedule != nil {
		s.SetAssignments(schedule.Assignments)
	}
}

// SetAssignments 装入当前计划范围内的既有分配
//
// 内部持有独立副本, 之后的增删不回写调用方切片。
func (s *Snapshot) SetAssignments(assignments []*model.Assignment) {
	s.Assignments = append([]*model.Assignment(nil), assignments...)
	s.byEmployee = make(map[uuid.UUID][]*model.Assignment)
	for _, a := range assignments {
		s.byEmployee[a.EmployeeID] = append(s.byEmployee[a.EmployeeID], a)
	}
	for id := range s.byEmployee {
		sortAssignments(s.byEmployee[id])
	}
}

// SetOtherSchedules 装入其他计划, 非活动计划和当前计划本身被忽略
func (s *Snapshot) SetOtherSchedules(schedules []*model.Schedule) {
	s.crossByEmp = make(map[uuid.UUID][]CrossAssignment)
	for _, sch := range schedules {
		if sch == nil || !sch.IsActive() {
			continue
		}
		if s.Schedule != nil && sch.ID == s.Schedule.ID {
			continue
		}
		for _, a := range sch.Assignments {
			s.crossByEmp[a.EmployeeID] = append(s.crossByEmp[a.EmployeeID], CrossAssignment{
				ScheduleID:   sch.ID,
				ScheduleName: sch.Name,
				Assignment:   a,
			})
		}
	}
	for id := range s.crossByEmp {
		entries := s.crossByEmp[id]
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i].Assignment, entries[j].Assignment
			if !a.StartTime.Equal(b.StartTime) {
				return a.StartTime.Before(b.StartTime)
			}
			return a.ID.String() < b.ID.String()
		})
	}
}

// SetRules 按适用性把规则编译到每个已装入的员工上
//
// 规则既可指向单个员工, 也可按部门或全局生效, 这里展开成
// 每员工一份编译结果。需要自定义编译结果时用 SetCompiledRules。
func (s *Snapshot) SetRules(ruleList []*model.Rule) {
	s.compiled = make(map[uuid.UUID]*rules.CompiledRules, len(s.Employees))
	for _, emp := range s.Employees {
		var applicable []*model.Rule
		for _, r := range ruleList {
			if r != nil && r.AppliesTo(emp) {
				applicable = append(applicable, r)
			}
		}
		s.compiled[emp.ID] = rules.Compile(emp.ID, applicable)
	}
}

// SetCompiledRules 直接装入预编译的规则, 通常来自规则缓存
func (s *Snapshot) SetCompiledRules(compiled map[uuid.UUID]*rules.CompiledRules) {
	if compiled == nil {
		compiled = make(map[uuid.UUID]*rules.CompiledRules)
	}
	s.compiled = compiled
}

// AddAssignment 向当前计划追加一条分配, 生成器逐班构建方案时使用
func (s *Snapshot) AddAssignment(a *model.Assignment) {
	s.Assignments = append(s.Assignments, a)
	list := append(s.byEmployee[a.EmployeeID], a)
	sortAssignments(list)
	s.byEmployee[a.EmployeeID] = list
}

// RemoveAssignment 从当前计划移除一条分配, 回溯时撤销使用
func (s *Snapshot) RemoveAssignment(id uuid.UUID) *model.Assignment {
	var removed *model.Assignment
	for i, a := range s.Assignments {
		if a.ID == id {
			removed = a
			s.Assignments = append(s.Assignments[:i], s.Assignments[i+1:]...)
			break
		}
	}
	if removed == nil {
		return nil
	}
	list := s.byEmployee[removed.EmployeeID]
	for i, a := range list {
		if a.ID == id {
			s.byEmployee[removed.EmployeeID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return removed
}

// Employee 按 ID 查找员工, 未装入时为 nil
func (s *Snapshot) Employee(id uuid.UUID) *model.Employee {
	return s.employeeMap[id]
}

// Shift 按 ID 查找班次, 未装入时为 nil
func (s *Snapshot) Shift(id uuid.UUID) *model.Shift {
	return s.shiftMap[id]
}

// EmployeeAssignments 返回员工在当前计划内的分配, 按开始时间排序
func (s *Snapshot) EmployeeAssignments(empID uuid.UUID) []*model.Assignment {
	return s.byEmployee[empID]
}

// CrossAssignments 返回员工在其他活动计划中的分配
func (s *Snapshot) CrossAssignments(empID uuid.UUID) []CrossAssignment {
	return s.crossByEmp[empID]
}

// RulesFor 返回员工的编译规则, 未装入时为 nil
func (s *Snapshot) RulesFor(empID uuid.UUID) *rules.CompiledRules {
	return s.compiled[empID]
}

// WeeklyHours 计算员工在 ref 所在周的已排工时
//
// 同时计入当前计划和其他活动计划的分配; exclude 指定要剔除的
// 分配 ID, 对已在快照内的候选重新检测时用来避免重复计算。
func (s *Snapshot) WeeklyHours(empID uuid.UUID, ref time.Time, exclude uuid.UUID) float64 {
	var intervals []timeutil.Interval
	for _, a := range s.byEmployee[empID] {
		if a.ID == exclude {
			continue
		}
		intervals = append(intervals, a.Interval())
	}
	for _, ca := range s.crossByEmp[empID] {
		if ca.Assignment.ID == exclude {
			continue
		}
		intervals = append(intervals, ca.Assignment.Interval())
	}
	return timeutil.WeeklyHours(intervals, ref)
}

// AssignedHours 计算员工当前已排的总工时, 生成器排序候选时使用
func (s *Snapshot) AssignedHours(empID uuid.UUID) float64 {
	total := 0.0
	for _, a := range s.byEmployee[empID] {
		total += a.WorkingHours()
	}
	return total
}

func sortAssignments(list []*model.Assignment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartTime.Equal(list[j].StartTime) {
			return list[i].StartTime.Before(list[j].StartTime)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
