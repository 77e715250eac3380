package scheduler

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// 一条警告在目标函数中相当于多大的工时方差
const warningWeight = 1000.0

// OptimizeConfig 优化配置
type OptimizeConfig struct {
	MaxIterations    int           `json:"max_iterations"`    // 最大迭代次数
	MaxTime          time.Duration `json:"max_time"`          // 最大运行时间
	InitialTemp      float64       `json:"initial_temp"`      // 模拟退火初始温度
	CoolingRate      float64       `json:"cooling_rate"`      // 冷却速率
	TabuSize         int           `json:"tabu_size"`         // 禁忌表大小
	NeighborhoodSize int           `json:"neighborhood_size"` // 每轮评估的改派候选数
	StopOnPlateau    bool          `json:"stop_on_plateau"`   // 平台期停止
	PlateauThreshold int           `json:"plateau_threshold"` // 平台期阈值（无改进迭代次数）
	Seed             int64         `json:"seed"`              // 随机种子, 0 表示按时间取种
}

// DefaultOptimizeConfig 默认优化配置
func DefaultOptimizeConfig() *OptimizeConfig {
	return &OptimizeConfig{
		MaxIterations:    500,
		MaxTime:          10 * time.Second,
		InitialTemp:      10.0,
		CoolingRate:      0.95,
		TabuSize:         50,
		NeighborhoodSize: 10,
		StopOnPlateau:    true,
		PlateauThreshold: 50,
	}
}

// OptimizeResult 优化结果
type OptimizeResult struct {
	InitialScore float64       `json:"initial_score"`
	FinalScore   float64       `json:"final_score"`
	Moves        int           `json:"moves"`
	Iterations   int           `json:"iterations"`
	Duration     time.Duration `json:"duration"`
}

// Improved 是否取得了改进
func (r *OptimizeResult) Improved() bool {
	return r.FinalScore < r.InitialScore
}

// Optimizer 局部搜索优化器
//
// 在不引入阻断冲突的前提下, 把生成的分配改派给其他员工,
// 目标是先压低警告数量, 再拉平员工间的工时差距。
type Optimizer struct {
	config   *OptimizeConfig
	detector *conflict.Detector
	tabu     *TabuList
	rng      *rand.Rand
}

// NewOptimizer 创建优化器
func NewOptimizer(config *OptimizeConfig, detector *conflict.Detector) *Optimizer {
	if config == nil {
		config = DefaultOptimizeConfig()
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Optimizer{
		config:   config,
		detector: detector,
		tabu:     NewTabuList(config.TabuSize),
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// reassignMove 把一条分配从一名员工改派给另一名员工
type reassignMove struct {
	assignment *model.Assignment
	from       uuid.UUID
	to         uuid.UUID
}

// Improve 对已生成的分配做局部搜索优化
//
// 直接在快照上试探改派并评分, 结束时回滚到历史最优状态。
// 超时或取消时返回已取得的改进, 不视为失败。
func (o *Optimizer) Improve(ctx context.Context, snap *conflict.Snapshot, assignments []*model.Assignment) (*OptimizeResult, error) {
	start := time.Now()

	result := &OptimizeResult{}
	if snap == nil || len(assignments) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	currentScore := o.score(snap)
	result.InitialScore = currentScore
	bestScore := currentScore

	logger.Info().
		Int("max_iterations", o.config.MaxIterations).
		Dur("max_time", o.config.MaxTime).
		Float64("initial_score", currentScore).
		Msg("开始局部搜索优化")

	var applied []reassignMove
	bestLen := 0
	temperature := o.config.InitialTemp
	noImprovement := 0

	iterations := 0
	for i := 0; i < o.config.MaxIterations; i++ {
		if ctx.Err() != nil {
			logger.Warn().Msg("优化被取消")
			break
		}
		if time.Since(start) > o.config.MaxTime {
			logger.Info().Msg("达到最大运行时间")
			break
		}
		iterations++

		moves := o.candidateMoves(snap, assignments)
		if len(moves) == 0 {
			break
		}

		// 逐个试探候选改派, 取评分最低者
		var bestMove *reassignMove
		var bestMoveScore float64
		var bestMoveKey uint64
		for m := range moves {
			mv := moves[m]
			o.apply(snap, mv.assignment, mv.to)
			s := o.score(snap)
			key := stateHash(assignments)
			o.apply(snap, mv.assignment, mv.from)

			if o.tabu.Contains(key) && s >= currentScore {
				continue
			}
			if bestMove == nil || s < bestMoveScore {
				bestMove = &mv
				bestMoveScore = s
				bestMoveKey = key
			}
		}
		if bestMove == nil {
			noImprovement++
			temperature *= o.config.CoolingRate
			continue
		}

		// 模拟退火接受准则: 更优解直接接受, 更差解按概率接受
		accept := bestMoveScore < currentScore
		if !accept {
			delta := bestMoveScore - currentScore
			if o.rng.Float64() < boltzmannProbability(delta, temperature) {
				accept = true
			}
		}

		if accept {
			o.apply(snap, bestMove.assignment, bestMove.to)
			applied = append(applied, *bestMove)
			o.tabu.Add(bestMoveKey)
			currentScore = bestMoveScore

			if currentScore < bestScore {
				bestScore = currentScore
				bestLen = len(applied)
				noImprovement = 0
				logger.Debug().Int("iteration", i).Float64("score", bestScore).Msg("发现更优解")
			} else {
				noImprovement++
			}
		} else {
			noImprovement++
		}

		if o.config.StopOnPlateau && noImprovement >= o.config.PlateauThreshold {
			logger.Info().Int("iterations", i).Int("no_improvement", noImprovement).Msg("达到平台期阈值，停止优化")
			break
		}
		temperature *= o.config.CoolingRate
	}

	// 回滚到历史最优状态
	for i := len(applied) - 1; i >= bestLen; i-- {
		mv := applied[i]
		o.apply(snap, mv.assignment, mv.from)
	}

	result.FinalScore = bestScore
	result.Moves = bestLen
	result.Iterations = iterations
	result.Duration = time.Since(start)

	logger.Info().
		Float64("initial", result.InitialScore).
		Float64("final", result.FinalScore).
		Int("moves", result.Moves).
		Dur("elapsed", result.Duration).
		Msg("局部搜索优化完成")

	return result, nil
}

// candidateMoves 随机生成若干条不引入阻断冲突的改派
func (o *Optimizer) candidateMoves(snap *conflict.Snapshot, assignments []*model.Assignment) []reassignMove {
	var moves []reassignMove
	attempts := o.config.NeighborhoodSize * 3
	for len(moves) < o.config.NeighborhoodSize && attempts > 0 {
		attempts--

		a := assignments[o.rng.Intn(len(assignments))]
		targets := o.eligibleTargets(snap, a)
		if len(targets) == 0 {
			continue
		}
		to := targets[o.rng.Intn(len(targets))]

		trial := *a
		trial.EmployeeID = to.ID
		if conflict.HasBlocking(o.detector.Detect(snap, &trial)) {
			continue
		}
		moves = append(moves, reassignMove{assignment: a, from: a.EmployeeID, to: to.ID})
	}
	return moves
}

// eligibleTargets 可承接改派的员工, 不含当前员工
func (o *Optimizer) eligibleTargets(snap *conflict.Snapshot, a *model.Assignment) []*model.Employee {
	shift := snap.Shift(a.ShiftID)

	var targets []*model.Employee
	for _, emp := range snap.Employees {
		if emp.ID == a.EmployeeID || !emp.IsActive() {
			continue
		}
		if shift != nil && shift.Department != "" && emp.Department != "" && emp.Department != shift.Department {
			continue
		}
		if a.Position != "" && emp.Position != "" && emp.Position != a.Position {
			continue
		}
		targets = append(targets, emp)
	}
	return targets
}

// apply 执行改派并维护快照索引
func (o *Optimizer) apply(snap *conflict.Snapshot, a *model.Assignment, to uuid.UUID) {
	snap.RemoveAssignment(a.ID)
	a.EmployeeID = to
	snap.AddAssignment(a)
}

// score 方案评分, 越低越好
//
// 警告数量主导, 工时方差在同等警告数下起细分作用。
func (o *Optimizer) score(snap *conflict.Snapshot) float64 {
	warnings := conflict.Warnings(o.detector.DetectSchedule(snap))
	return warningWeight*float64(len(warnings)) + hoursVariance(snap)
}

// hoursVariance 在职员工已排工时的总体方差
func hoursVariance(snap *conflict.Snapshot) float64 {
	var hours []float64
	var sum float64
	for _, emp := range snap.Employees {
		if !emp.IsActive() {
			continue
		}
		h := snap.AssignedHours(emp.ID)
		hours = append(hours, h)
		sum += h
	}
	if len(hours) == 0 {
		return 0
	}

	mean := sum / float64(len(hours))
	var variance float64
	for _, h := range hours {
		variance += (h - mean) * (h - mean)
	}
	return variance / float64(len(hours))
}

// stateHash 以 FNV-1a 计算当前分配状态的哈希
func stateHash(assignments []*model.Assignment) uint64 {
	if len(assignments) == 0 {
		return 0
	}
	ordered := make([]*model.Assignment, len(assignments))
	copy(ordered, assignments)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].ID.String() < ordered[j].ID.String()
	})

	h := fnv.New64a()
	for _, a := range ordered {
		h.Write(a.EmployeeID[:])
		h.Write(a.ShiftID[:])
		h.Write([]byte(a.Date))
	}
	return h.Sum64()
}

// boltzmannProbability 模拟退火的接受概率, delta 为新旧评分之差
func boltzmannProbability(delta, temperature float64) float64 {
	if delta <= 0 {
		return 1.0
	}
	if temperature <= 0 {
		return 0.0
	}
	return math.Exp(-delta / temperature)
}

// TabuList 禁忌表, 以 uint64 哈希为键
type TabuList struct {
	items   map[uint64]struct{}
	order   []uint64
	maxSize int
	mu      sync.RWMutex
}

// NewTabuList 创建禁忌表
func NewTabuList(size int) *TabuList {
	if size <= 0 {
		size = 1
	}
	return &TabuList{
		items:   make(map[uint64]struct{}),
		order:   make([]uint64, 0, size),
		maxSize: size,
	}
}

// Add 添加到禁忌表, 超出容量时移除最旧的
func (t *TabuList) Add(key uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[key]; exists {
		return
	}
	if len(t.order) >= t.maxSize {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.items, oldest)
	}
	t.items[key] = struct{}{}
	t.order = append(t.order, key)
}

// Contains 检查是否在禁忌表中
func (t *TabuList) Contains(key uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.items[key]
	return exists
}

// Clear 清空禁忌表
func (t *TabuList) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[uint64]struct{})
	t.order = t.order[:0]
}
