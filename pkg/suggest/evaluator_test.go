package suggest

import (
	"testing"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

func TestEvaluateReassign_Feasible(t *testing.T) {
	owner := testEmployee("张三")
	target := testEmployee("李四")
	assignment := assignmentAt(owner.ID, "2024-02-05", "09:00", "17:00")
	snap := snapshotWith([]*model.Employee{owner, target}, assignment)

	eval := newSuggester().EvaluateReassign(snap, assignment, target)

	if !eval.Feasible {
		t.Fatalf("改派应可行: %+v", eval.Conflicts)
	}
	if eval.Score != 100 {
		t.Errorf("得分 = %v, 期望无冲突时 100", eval.Score)
	}
	if eval.Source.Before != 8 || eval.Source.After != 0 {
		t.Errorf("原员工工时变化 = %v → %v, 期望 8 → 0", eval.Source.Before, eval.Source.After)
	}
	if eval.Target.Before != 0 || eval.Target.After != 8 {
		t.Errorf("目标员工工时变化 = %v → %v, 期望 0 → 8", eval.Target.Before, eval.Target.After)
	}
}

func TestEvaluateReassign_TargetBusy(t *testing.T) {
	owner := testEmployee("张三")
	target := testEmployee("李四")
	assignment := assignmentAt(owner.ID, "2024-02-05", "09:00", "17:00")
	busy := assignmentAt(target.ID, "2024-02-05", "14:00", "22:00")
	snap := snapshotWith([]*model.Employee{owner, target}, assignment, busy)

	eval := newSuggester().EvaluateReassign(snap, assignment, target)

	if eval.Feasible {
		t.Error("目标员工时段重叠时改派应不可行")
	}
	if len(eval.Conflicts) == 0 {
		t.Error("评估结果应携带试算出的冲突")
	}
}

func TestEvaluateReassign_Guards(t *testing.T) {
	owner := testEmployee("张三")
	assignment := assignmentAt(owner.ID, "2024-02-05", "09:00", "17:00")
	snap := snapshotWith([]*model.Employee{owner}, assignment)
	s := newSuggester()

	if eval := s.EvaluateReassign(snap, nil, owner); eval.Feasible {
		t.Error("缺少分配时应不可行")
	}

	inactive := testEmployee("李四")
	inactive.Status = "leave"
	if eval := s.EvaluateReassign(snap, assignment, inactive); eval.Feasible {
		t.Error("目标员工不在职时应不可行")
	}

	if eval := s.EvaluateReassign(snap, assignment, owner); eval.Feasible {
		t.Error("目标员工与当前员工相同时应不可行")
	}
}
