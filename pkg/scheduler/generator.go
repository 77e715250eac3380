// Package scheduler 基于冲突检测生成排班方案
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// Result 生成结果
//
// 生成器从不因排不满而报错: 无法覆盖的班次连同最后一次
// 阻断它的冲突一起返回, 由调用方决定补充人手还是放宽规则。
type Result struct {
	Assignments []*model.Assignment `json:"assignments"`
	Uncovered   []*UncoveredShift   `json:"uncovered,omitempty"`
	Warnings    []*model.Conflict   `json:"warnings,omitempty"`
	Statistics  *Statistics         `json:"statistics"`
	Duration    time.Duration       `json:"duration"`
	Message     string              `json:"message,omitempty"`
}

// UncoveredShift 未能覆盖的班次及原因
type UncoveredShift struct {
	Shift        *model.Shift    `json:"shift"`
	Reason       string          `json:"reason"`
	LastConflict *model.Conflict `json:"last_conflict,omitempty"`
}

// Statistics 生成统计
type Statistics struct {
	TotalShifts   int     `json:"total_shifts"`
	CoveredShifts int     `json:"covered_shifts"`
	FillRate      float64 `json:"fill_rate"`
	TotalHours    float64 `json:"total_hours"`
	WarningCount  int     `json:"warning_count"`
	Iterations    int     `json:"iterations"`
	Backtracks    int     `json:"backtracks"`
}

// Generator 贪心排班生成器
//
// 按时间顺序逐班寻找无阻断冲突的员工, 警告级冲突容忍并记录。
// 直接分配失败时在有限深度内回溯: 撤销一条此前的分配, 先覆盖
// 当前班次, 再为被撤销的班次另寻人选, 仅当两边都成功时保留。
type Generator struct {
	detector       *conflict.Detector
	logger         *logger.EngineLogger
	backtrackDepth int
	maxIterations  int
}

// NewGenerator 创建生成器
func NewGenerator(detector *conflict.Detector) *Generator {
	return &Generator{
		detector:       detector,
		logger:         logger.NewEngineLogger(),
		backtrackDepth: 1,
		maxIterations:  10000,
	}
}

// SetBacktrackDepth 设置回溯深度, 0 表示关闭回溯
func (g *Generator) SetBacktrackDepth(depth int) {
	g.backtrackDepth = depth
}

// SetMaxIterations 设置试探分配次数上限
func (g *Generator) SetMaxIterations(max int) {
	g.maxIterations = max
}

// genState 单次生成的运行状态, 回溯只撤销本次生成的分配
type genState struct {
	snap       *conflict.Snapshot
	placed     []*model.Assignment
	shiftOf    map[uuid.UUID]*model.Shift
	warnings   map[uuid.UUID][]*model.Conflict
	iterations int
	backtracks int
}

func (st *genState) place(a *model.Assignment, shift *model.Shift, warns []*model.Conflict) {
	st.snap.AddAssignment(a)
	st.placed = append(st.placed, a)
	st.shiftOf[a.ID] = shift
	if len(warns) > 0 {
		st.warnings[a.ID] = warns
	}
}

func (st *genState) unplace(id uuid.UUID) (*model.Assignment, *model.Shift, []*model.Conflict) {
	a := st.snap.RemoveAssignment(id)
	if a == nil {
		return nil, nil, nil
	}
	shift := st.shiftOf[id]
	delete(st.shiftOf, id)
	warns := st.warnings[id]
	delete(st.warnings, id)
	for i, p := range st.placed {
		if p.ID == id {
			st.placed = append(st.placed[:i], st.placed[i+1:]...)
			break
		}
	}
	return a, shift, warns
}

// Generate 为快照中尚未分配的班次生成排班
//
// 超出时限或试探预算时返回当前最优的部分结果, 不视为失败。
func (g *Generator) Generate(ctx context.Context, snap *conflict.Snapshot) (*Result, error) {
	startTime := time.Now()

	if snap == nil || snap.Schedule == nil {
		return nil, errors.New(errors.CodeInvalidInput, "缺少目标排班计划")
	}
	schedule := snap.Schedule

	result := &Result{
		Assignments: make([]*model.Assignment, 0),
		Statistics:  &Statistics{},
	}

	pending, invalid := g.pendingShifts(snap)
	result.Statistics.TotalShifts = len(pending) + len(invalid)
	for _, uc := range invalid {
		result.Uncovered = append(result.Uncovered, uc)
	}

	g.logger.StartGeneration(schedule.ID.String(), len(snap.Employees), len(pending))

	if len(pending) == 0 {
		result.Message = "没有待排班次"
		result.Duration = time.Since(startTime)
		return result, nil
	}
	if len(snap.Employees) == 0 {
		for _, ps := range pending {
			result.Uncovered = append(result.Uncovered, &UncoveredShift{Shift: ps.shift, Reason: "没有可用员工"})
		}
		result.Message = "没有可用员工，全部班次未覆盖"
		result.Duration = time.Since(startTime)
		return result, nil
	}

	st := &genState{
		snap:     snap,
		shiftOf:  make(map[uuid.UUID]*model.Shift),
		warnings: make(map[uuid.UUID][]*model.Conflict),
	}

	for i, ps := range pending {
		if ctx.Err() != nil {
			for _, rest := range pending[i:] {
				result.Uncovered = append(result.Uncovered, &UncoveredShift{Shift: rest.shift, Reason: "生成超时中止"})
			}
			break
		}
		if st.iterations >= g.maxIterations {
			for _, rest := range pending[i:] {
				result.Uncovered = append(result.Uncovered, &UncoveredShift{Shift: rest.shift, Reason: "试探次数达到上限"})
			}
			break
		}

		_, last, ok := g.assignShift(st, ps.shift, ps.start, ps.end)
		if !ok && g.backtrackDepth > 0 {
			var btLast *model.Conflict
			btLast, ok = g.backtrack(st, ps, g.backtrackDepth)
			if btLast != nil {
				last = btLast
			}
		}
		if !ok {
			uc := &UncoveredShift{Shift: ps.shift, Reason: "没有满足约束的员工", LastConflict: last}
			if last != nil {
				uc.Reason = last.Message
			}
			result.Uncovered = append(result.Uncovered, uc)
		}
	}

	result.Assignments = append(result.Assignments, st.placed...)
	sort.Slice(result.Assignments, func(i, j int) bool {
		a, b := result.Assignments[i], result.Assignments[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.EmployeeID.String() < b.EmployeeID.String()
	})
	for _, a := range result.Assignments {
		result.Warnings = append(result.Warnings, st.warnings[a.ID]...)
		result.Statistics.TotalHours += a.WorkingHours()
	}

	result.Statistics.CoveredShifts = result.Statistics.TotalShifts - len(result.Uncovered)
	if result.Statistics.TotalShifts > 0 {
		result.Statistics.FillRate = float64(result.Statistics.CoveredShifts) / float64(result.Statistics.TotalShifts) * 100
	}
	result.Statistics.WarningCount = len(result.Warnings)
	result.Statistics.Iterations = st.iterations
	result.Statistics.Backtracks = st.backtracks
	result.Duration = time.Since(startTime)

	if len(result.Uncovered) == 0 {
		result.Message = fmt.Sprintf("排班成功，覆盖率 %.1f%%", result.Statistics.FillRate)
	} else {
		result.Message = fmt.Sprintf("排班部分完成，%d 个班次未覆盖", len(result.Uncovered))
	}

	g.logger.GenerationComplete(schedule.ID.String(), len(result.Assignments), len(result.Uncovered), result.Duration)
	return result, nil
}

// pendingShift 待覆盖的班次及预先归一化的时间区间
type pendingShift struct {
	shift *model.Shift
	start time.Time
	end   time.Time
}

// pendingShifts 挑出尚无分配的班次, 按开始时间排序保证结果确定
func (g *Generator) pendingShifts(snap *conflict.Snapshot) ([]*pendingShift, []*UncoveredShift) {
	covered := make(map[uuid.UUID]bool)
	if snap.Schedule != nil {
		for _, a := range snap.Schedule.Assignments {
			if a.Status != model.AssignmentCancelled {
				covered[a.ShiftID] = true
			}
		}
	}

	var pending []*pendingShift
	var invalid []*UncoveredShift
	for _, shift := range snap.Shifts {
		if covered[shift.ID] {
			continue
		}
		start, end, err := shift.Window()
		if err != nil {
			invalid = append(invalid, &UncoveredShift{Shift: shift, Reason: err.Error()})
			continue
		}
		pending = append(pending, &pendingShift{shift: shift, start: start, end: end})
	}

	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].start.Equal(pending[j].start) {
			return pending[i].start.Before(pending[j].start)
		}
		return pending[i].shift.ID.String() < pending[j].shift.ID.String()
	})
	return pending, invalid
}

// assignShift 在候选员工中寻找无阻断冲突的一位并落位
//
// 无警告的候选直接采用, 全部带警告时取警告最少的一位。
// 返回最后一次阻断的冲突, 供未覆盖报告使用。
func (g *Generator) assignShift(st *genState, shift *model.Shift, start, end time.Time) (*model.Assignment, *model.Conflict, bool) {
	candidates := g.rankCandidates(st.snap, shift, start, end)

	var last *model.Conflict
	var best *model.Assignment
	var bestWarns []*model.Conflict
	for _, emp := range candidates {
		if st.iterations >= g.maxIterations {
			break
		}
		st.iterations++

		trial := newAssignment(st.snap.OrgID, st.snap.Schedule.ID, emp, shift, start, end)
		conflicts := g.detector.Detect(st.snap, trial)
		if conflict.HasBlocking(conflicts) {
			if blocking := conflict.Blocking(conflicts); len(blocking) > 0 {
				last = blocking[0]
			}
			continue
		}

		warns := conflict.Warnings(conflicts)
		if len(warns) == 0 {
			st.place(trial, shift, nil)
			return trial, nil, true
		}
		if best == nil || len(warns) < len(bestWarns) {
			best = trial
			bestWarns = warns
		}
	}

	if best != nil {
		st.place(best, shift, bestWarns)
		return best, nil, true
	}
	return nil, last, false
}

// backtrack 撤销一条此前的分配为当前班次腾出空间
//
// 先覆盖当前班次, 再为被撤销的班次另寻人选, 两边都成功才保留,
// 否则恢复原状继续尝试下一条。总未覆盖数只减不增。
func (g *Generator) backtrack(st *genState, ps *pendingShift, depth int) (*model.Conflict, bool) {
	priors := make([]*model.Assignment, len(st.placed))
	copy(priors, st.placed)

	var last *model.Conflict
	for i := len(priors) - 1; i >= 0; i-- {
		if st.iterations >= g.maxIterations {
			break
		}
		prior := priors[i]
		priorShift := st.shiftOf[prior.ID]
		if priorShift == nil || priorShift.ID == ps.shift.ID {
			continue
		}

		removed, removedShift, removedWarns := st.unplace(prior.ID)
		if removed == nil {
			continue
		}

		cur, lc, ok := g.assignShift(st, ps.shift, ps.start, ps.end)
		if !ok {
			if lc != nil {
				last = lc
			}
			st.place(removed, removedShift, removedWarns)
			continue
		}

		priorStart, priorEnd, err := priorShift.Window()
		if err == nil {
			if _, _, reok := g.assignShift(st, priorShift, priorStart, priorEnd); reok {
				st.backtracks++
				return nil, true
			}
			if depth > 1 {
				priorPending := &pendingShift{shift: priorShift, start: priorStart, end: priorEnd}
				if _, reok := g.backtrack(st, priorPending, depth-1); reok {
					st.backtracks++
					return nil, true
				}
			}
		}

		// 被撤销的班次无法重排, 恢复原状
		st.unplace(cur.ID)
		st.place(removed, removedShift, removedWarns)
	}
	return last, false
}

// rankCandidates 按已排工时升序、偏好降序、员工 ID 排序候选
//
// 工时最少者优先保证公平, 同工时下尊重员工偏好, 最后以 ID
// 定序使同样的输入总产出同样的方案。
func (g *Generator) rankCandidates(snap *conflict.Snapshot, shift *model.Shift, start, end time.Time) []*model.Employee {
	slice := timeutil.DominantSlice(start, end)
	day, window := slice.Day.Weekday(), slice.Range

	var candidates []*model.Employee
	hours := make(map[uuid.UUID]float64)
	prefs := make(map[uuid.UUID]float64)
	for _, emp := range snap.Employees {
		if !emp.IsActive() {
			continue
		}
		if shift.Department != "" && emp.Department != "" && emp.Department != shift.Department {
			continue
		}
		if shift.Position != "" && emp.Position != "" && emp.Position != shift.Position {
			continue
		}

		pref := emp.Preferences.Score(day, window)
		if compiled := snap.RulesFor(emp.ID); compiled != nil {
			pref += compiled.PreferenceScore(day, window)
		}
		candidates = append(candidates, emp)
		hours[emp.ID] = snap.AssignedHours(emp.ID)
		prefs[emp.ID] = pref
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if hours[a.ID] != hours[b.ID] {
			return hours[a.ID] < hours[b.ID]
		}
		if prefs[a.ID] != prefs[b.ID] {
			return prefs[a.ID] > prefs[b.ID]
		}
		return a.ID.String() < b.ID.String()
	})
	return candidates
}

// newAssignment 按班次构造一条待检测的分配
func newAssignment(orgID, scheduleID uuid.UUID, emp *model.Employee, shift *model.Shift, start, end time.Time) *model.Assignment {
	return &model.Assignment{
		BaseModel:  model.NewBaseModel(),
		OrgID:      orgID,
		ScheduleID: scheduleID,
		EmployeeID: emp.ID,
		ShiftID:    shift.ID,
		Date:       shift.Date,
		StartTime:  start,
		EndTime:    end,
		Position:   shift.Position,
		Status:     model.AssignmentProposed,
		Version:    1,
	}
}
