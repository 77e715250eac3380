package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

func testOptimizeConfig(seed int64) *OptimizeConfig {
	return &OptimizeConfig{
		MaxIterations:    50,
		MaxTime:          5 * time.Second,
		InitialTemp:      10.0,
		CoolingRate:      0.95,
		TabuSize:         20,
		NeighborhoodSize: 8,
		StopOnPlateau:    true,
		PlateauThreshold: 10,
		Seed:             seed,
	}
}

func optimizeSnapshot(emps []*model.Employee, assignments []*model.Assignment) *conflict.Snapshot {
	snap := conflict.NewSnapshot(uuid.New())
	snap.SetEmployees(emps)
	snap.SetAssignments(assignments)
	return snap
}

func TestImprove_MovesWarningAway(t *testing.T) {
	busy := testEmployee("张三")
	idle := testEmployee("李四")

	// 张三连上两班, 间隔 1 小时触发休息警告, 李四空闲
	assignments := []*model.Assignment{
		assignmentAt(busy.ID, "2024-02-05", "09:00", "13:00"),
		assignmentAt(busy.ID, "2024-02-05", "14:00", "18:00"),
	}
	snap := optimizeSnapshot([]*model.Employee{busy, idle}, assignments)

	detector := conflict.NewDetector(conflict.Config{})
	opt := NewOptimizer(testOptimizeConfig(1), detector)

	result, err := opt.Improve(context.Background(), snap, assignments)
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}

	if !result.Improved() {
		t.Fatalf("评分未改进: initial=%.2f final=%.2f", result.InitialScore, result.FinalScore)
	}
	if result.Moves < 1 {
		t.Errorf("改派数 = %d, 期望至少 1", result.Moves)
	}
	if warnings := conflict.Warnings(detector.DetectSchedule(snap)); len(warnings) != 0 {
		t.Errorf("优化后仍有 %d 条警告: %+v", len(warnings), warnings)
	}
}

func TestImprove_BalancesHours(t *testing.T) {
	busy := testEmployee("张三")
	idle := testEmployee("李四")

	assignments := []*model.Assignment{
		assignmentAt(busy.ID, "2024-02-05", "09:00", "13:00"),
		assignmentAt(busy.ID, "2024-02-07", "09:00", "13:00"),
	}
	snap := optimizeSnapshot([]*model.Employee{busy, idle}, assignments)

	detector := conflict.NewDetector(conflict.Config{})
	result, err := NewOptimizer(testOptimizeConfig(1), detector).Improve(context.Background(), snap, assignments)
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}

	if !result.Improved() {
		t.Fatalf("评分未改进: initial=%.2f final=%.2f", result.InitialScore, result.FinalScore)
	}
	if h := snap.AssignedHours(busy.ID); h != 4 {
		t.Errorf("张三工时 = %.1f, 期望改派后为 4", h)
	}
	if h := snap.AssignedHours(idle.ID); h != 4 {
		t.Errorf("李四工时 = %.1f, 期望改派后为 4", h)
	}
}

func TestImprove_NeverIntroducesBlocking(t *testing.T) {
	first := testEmployee("张三")
	second := testEmployee("李四")
	third := testEmployee("王五")

	// 两个时段互相重叠, 改派到同一人会产生阻断冲突
	assignments := []*model.Assignment{
		assignmentAt(first.ID, "2024-02-05", "09:00", "13:00"),
		assignmentAt(second.ID, "2024-02-05", "11:00", "15:00"),
	}
	snap := optimizeSnapshot([]*model.Employee{first, second, third}, assignments)

	detector := conflict.NewDetector(conflict.Config{})
	if _, err := NewOptimizer(testOptimizeConfig(2), detector).Improve(context.Background(), snap, assignments); err != nil {
		t.Fatalf("Improve: %v", err)
	}

	if conflict.HasBlocking(detector.DetectSchedule(snap)) {
		t.Error("优化不应引入阻断冲突")
	}
}

func TestImprove_EmptyAssignments(t *testing.T) {
	snap := optimizeSnapshot([]*model.Employee{testEmployee("张三")}, nil)
	detector := conflict.NewDetector(conflict.Config{})

	result, err := NewOptimizer(testOptimizeConfig(1), detector).Improve(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("Improve: %v", err)
	}
	if result.Moves != 0 || result.InitialScore != 0 {
		t.Errorf("空输入应返回零结果: %+v", result)
	}
}

func TestTabuList_EvictsOldest(t *testing.T) {
	tabu := NewTabuList(2)
	tabu.Add(1)
	tabu.Add(2)
	tabu.Add(3)

	if tabu.Contains(1) {
		t.Error("容量满后最旧的键应被移除")
	}
	if !tabu.Contains(2) || !tabu.Contains(3) {
		t.Error("新加入的键应保留")
	}

	tabu.Clear()
	if tabu.Contains(2) || tabu.Contains(3) {
		t.Error("Clear 后禁忌表应为空")
	}
}

func TestBoltzmannProbability(t *testing.T) {
	if p := boltzmannProbability(-1, 10); p != 1.0 {
		t.Errorf("更优解接受概率 = %v, 期望 1", p)
	}
	if p := boltzmannProbability(1, 0); p != 0.0 {
		t.Errorf("零温度接受概率 = %v, 期望 0", p)
	}
	if p := boltzmannProbability(1, 10); p <= 0 || p >= 1 {
		t.Errorf("更差解接受概率 = %v, 期望落在 (0, 1)", p)
	}
}
