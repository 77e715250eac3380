package suggest

import (
	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// Evaluation 改派评估结果
type Evaluation struct {
	Feasible       bool              `json:"feasible"`
	Score          float64           `json:"score"` // 0-100
	Conflicts      []*model.Conflict `json:"conflicts,omitempty"`
	Source         HoursImpact       `json:"source"`
	Target         HoursImpact       `json:"target"`
	Recommendation string            `json:"recommendation"`
}

// HoursImpact 改派前后的周工时变化
type HoursImpact struct {
	EmployeeID uuid.UUID `json:"employee_id"`
	Before     float64   `json:"before"`
	After      float64   `json:"after"`
}

// EvaluateReassign 评估把一条分配改派给目标员工的效果
//
// 不修改快照: 以目标员工试算一份同时段分配并执行完整检测,
// 调用方确认后再走正常的提交流程。
func (s *Suggester) EvaluateReassign(snap *conflict.Snapshot, assignment *model.Assignment, target *model.Employee) *Evaluation {
	if assignment == nil || target == nil {
		return &Evaluation{Recommendation: "无效的改派请求"}
	}
	if !target.IsActive() {
		return &Evaluation{Recommendation: "目标员工不在职"}
	}
	if target.ID == assignment.EmployeeID {
		return &Evaluation{Recommendation: "目标员工与当前员工相同"}
	}

	trial := *assignment
	trial.BaseModel = model.NewBaseModel()
	trial.EmployeeID = target.ID
	conflicts := s.detector.Detect(snap, &trial)

	hours := assignment.WorkingHours()
	sourceBefore := snap.WeeklyHours(assignment.EmployeeID, assignment.StartTime, uuid.Nil)
	targetBefore := snap.WeeklyHours(target.ID, assignment.StartTime, uuid.Nil)

	eval := &Evaluation{
		Feasible:  !conflict.HasBlocking(conflicts),
		Conflicts: conflicts,
		Source: HoursImpact{
			EmployeeID: assignment.EmployeeID,
			Before:     sourceBefore,
			After:      sourceBefore - hours,
		},
		Target: HoursImpact{
			EmployeeID: target.ID,
			Before:     targetBefore,
			After:      targetBefore + hours,
		},
	}
	eval.Score = scoreConflicts(conflicts)
	eval.Recommendation = recommendation(eval)
	return eval
}

func scoreConflicts(conflicts []*model.Conflict) float64 {
	score := 100.0
	for _, c := range conflicts {
		if c.IsBlocking() {
			score -= 40
		} else {
			score -= 10
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func recommendation(eval *Evaluation) string {
	if !eval.Feasible {
		return "不建议改派，存在阻断性冲突"
	}
	switch {
	case eval.Score >= 90:
		return "推荐改派，无冲突且工时分布合理"
	case eval.Score >= 70:
		return "可以改派，但存在少量警告"
	default:
		return "谨慎改派，警告较多"
	}
}
