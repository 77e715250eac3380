// Package swap 评估班次交接与互换的可行性
package swap

import (
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// Evaluator 换班评估器
//
// 评估时在快照上临时改写分配再重新检测, 返回前恢复原状;
// 评估期间快照不能被其他读写并发访问。
type Evaluator struct {
	detector *conflict.Detector
}

// NewEvaluator 创建换班评估器
func NewEvaluator(detector *conflict.Detector) *Evaluator {
	if detector == nil {
		detector = conflict.NewDetector(conflict.Config{})
	}
	return &Evaluator{detector: detector}
}

// Request 换班请求
//
// Exchange 为空表示目标员工单方面接手 Source; 给出 Exchange
// 时为互换, 源员工同时接下目标员工让出的这条分配。
type Request struct {
	Source   *model.Assignment `json:"source"`
	Target   *model.Employee   `json:"target"`
	Exchange *model.Assignment `json:"exchange,omitempty"`
}

// Evaluation 换班评估结果
type Evaluation struct {
	Feasible       bool              `json:"feasible"`
	Score          float64           `json:"score"` // 0-100
	Conflicts      []*model.Conflict `json:"conflicts,omitempty"`
	Impact         *Impact           `json:"impact,omitempty"`
	Recommendation string            `json:"recommendation"`
}

// Impact 换班对双方周工时的影响, 以源分配所在周为准
type Impact struct {
	Source HoursImpact `json:"source"`
	Target HoursImpact `json:"target"`
}

// HoursImpact 单个员工的周工时变化
type HoursImpact struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	Before     float64   `json:"weekly_hours_before"`
	After      float64   `json:"weekly_hours_after"`
}

// Evaluate 评估一次换班
//
// 先把源分配(互换时连同对方的分配)从快照中摘除, 再以新的归属
// 关系逐条检测; 存在阻断级冲突时判定不可行, 警告只扣分。
func (e *Evaluator) Evaluate(snap *conflict.Snapshot, req *Request) *Evaluation {
	if req == nil || req.Source == nil || req.Target == nil {
		return infeasible("无效的换班请求")
	}
	if !req.Target.IsActive() {
		return infeasible("目标员工不在职")
	}
	if req.Target.ID == req.Source.EmployeeID {
		return infeasible("目标员工与当前员工相同")
	}
	if req.Exchange != nil && req.Exchange.EmployeeID != req.Target.ID {
		return infeasible("互换班次不属于目标员工")
	}

	impact := e.measureImpact(snap, req)
	conflicts := e.simulate(snap, req)

	blocking := 0
	warnings := 0
	for _, c := range conflicts {
		if c.IsBlocking() {
			blocking++
		} else {
			warnings++
		}
	}
	score := 100 - 40*float64(blocking) - 10*float64(warnings)
	if score < 0 {
		score = 0
	}

	ev := &Evaluation{
		Feasible:  blocking == 0,
		Score:     score,
		Conflicts: conflicts,
		Impact:    impact,
	}
	ev.Recommendation = recommendation(ev)
	return ev
}

// simulate 试算换班后的冲突, 返回前把快照恢复原状
func (e *Evaluator) simulate(snap *conflict.Snapshot, req *Request) []*model.Conflict {
	removedSource := snap.RemoveAssignment(req.Source.ID)
	var removedExchange *model.Assignment
	if req.Exchange != nil {
		removedExchange = snap.RemoveAssignment(req.Exchange.ID)
	}
	defer func() {
		if removedSource != nil {
			snap.AddAssignment(removedSource)
		}
		if removedExchange != nil {
			snap.AddAssignment(removedExchange)
		}
	}()

	trial := *req.Source
	trial.BaseModel = model.NewBaseModel()
	trial.EmployeeID = req.Target.ID
	conflicts := e.detector.Detect(snap, &trial)

	if req.Exchange != nil {
		snap.AddAssignment(&trial)
		back := *req.Exchange
		back.BaseModel = model.NewBaseModel()
		back.EmployeeID = req.Source.EmployeeID
		conflicts = append(conflicts, e.detector.Detect(snap, &back)...)
		snap.RemoveAssignment(trial.ID)
	}
	return conflicts
}

// measureImpact 计算换班前后双方在源分配所在周的已排工时
func (e *Evaluator) measureImpact(snap *conflict.Snapshot, req *Request) *Impact {
	ref := req.Source.StartTime
	sourceHours := req.Source.WorkingHours()

	var exchangeID uuid.UUID
	exchangeHours := 0.0
	if req.Exchange != nil {
		exchangeID = req.Exchange.ID
		exchangeHours = hoursInWeek(req.Exchange, ref)
	}

	srcBase := snap.WeeklyHours(req.Source.EmployeeID, ref, req.Source.ID)
	tgtBase := snap.WeeklyHours(req.Target.ID, ref, exchangeID)

	return &Impact{
		Source: HoursImpact{
			EmployeeID: req.Source.EmployeeID,
			Before:     srcBase + sourceHours,
			After:      srcBase + exchangeHours,
		},
		Target: HoursImpact{
			EmployeeID: req.Target.ID,
			Before:     tgtBase + exchangeHours,
			After:      tgtBase + sourceHours,
		},
	}
}

// hoursInWeek 返回分配计入 ref 所在周的工时, 按开始时间归周
func hoursInWeek(a *model.Assignment, ref time.Time) float64 {
	if !timeutil.SameWeek(a.StartTime, ref) {
		return 0
	}
	return a.WorkingHours()
}

func infeasible(reason string) *Evaluation {
	return &Evaluation{Recommendation: reason}
}

// recommendation 按可行性与得分给出处置建议
func recommendation(ev *Evaluation) string {
	switch {
	case !ev.Feasible:
		return "不建议换班，存在阻断性冲突"
	case ev.Score >= 90:
		return "推荐换班，换班后安排良好"
	case ev.Score >= 70:
		return "可以换班，存在少量警告"
	default:
		return "谨慎换班，警告较多"
	}
}
