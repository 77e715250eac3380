package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/events"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/metrics"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/repository"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/workspace"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/scheduler"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/stats"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/suggest"
)

// 生成请求未指定时限时采用的默认值
const defaultGenerateTimeout = 30 * time.Second

// EngineDefaults 请求未携带选项时采用的引擎参数
type EngineDefaults struct {
	GenerateTimeout time.Duration
	MaxIterations   int
	BacktrackDepth  int
	MaxSuggestions  int
	Optimize        bool
	OptimizeTime    time.Duration
}

// ScheduleHandler 排班处理器
//
// 校验与生成是无状态计算; 提交与发布在配置数据库时走持久化
// 路径, 未配置时提交支持对内联计划就地执行。
type ScheduleHandler struct {
	detector  *conflict.Detector
	loader    *repository.ContextLoader
	schedules *repository.ScheduleRepository
	publisher *events.Publisher
	engineLog *logger.EngineLogger
	defaults  EngineDefaults
}

// NewScheduleHandler 创建排班处理器, loader/schedules/publisher 允许为 nil
func NewScheduleHandler(detector *conflict.Detector, loader *repository.ContextLoader, schedules *repository.ScheduleRepository, publisher *events.Publisher) *ScheduleHandler {
	return &ScheduleHandler{
		detector:  detector,
		loader:    loader,
		schedules: schedules,
		publisher: publisher,
		engineLog: logger.NewEngineLogger(),
	}
}

// WithDefaults 设置配置层提供的引擎默认参数
func (h *ScheduleHandler) WithDefaults(d EngineDefaults) *ScheduleHandler {
	h.defaults = d
	return h
}

// DetectOptions 单次请求的检测参数覆盖
type DetectOptions struct {
	MinShiftHours  float64 `json:"min_shift_hours,omitempty" validate:"omitempty,gt=0"`
	MaxShiftHours  float64 `json:"max_shift_hours,omitempty" validate:"omitempty,gt=0"`
	MaxSuggestions int     `json:"max_suggestions,omitempty" validate:"omitempty,min=1,max=20"`
}

// detectorWith 在基准检测器上应用单次请求的参数覆盖
func detectorWith(base *conflict.Detector, opts *DetectOptions) *conflict.Detector {
	if opts == nil || (opts.MinShiftHours == 0 && opts.MaxShiftHours == 0) {
		return base
	}
	cfg := base.Config()
	if opts.MinShiftHours > 0 {
		cfg.MinShiftHours = opts.MinShiftHours
	}
	if opts.MaxShiftHours > 0 {
		cfg.MaxShiftHours = opts.MaxShiftHours
	}
	return conflict.NewDetector(cfg)
}

// ValidateRequest 排班校验请求
//
// Candidates 非空时逐条做进入前检测, 为空时校验整个计划。
type ValidateRequest struct {
	SnapshotInput
	Candidates []*model.Assignment `json:"candidates,omitempty"`
	Options    *DetectOptions      `json:"options,omitempty"`
}

// ValidateResponse 校验响应
type ValidateResponse struct {
	Valid     bool              `json:"valid"`
	Conflicts []*model.Conflict `json:"conflicts"`
	Counts    map[string]int    `json:"counts"`
}

// Validate 检测候选分配或整个计划的冲突, 每条冲突附带处置建议
func (h *ScheduleHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	snap, err := buildSnapshot(r.Context(), h.loader, &req.SnapshotInput)
	if err != nil {
		respondError(w, err)
		return
	}

	detector := detectorWith(h.detector, req.Options)
	maxSuggestions := h.defaults.MaxSuggestions
	if req.Options != nil && req.Options.MaxSuggestions > 0 {
		maxSuggestions = req.Options.MaxSuggestions
	}
	suggester := suggest.NewSuggester(detector, maxSuggestions)

	scope := "schedule"
	if len(req.Candidates) > 0 {
		scope = "candidate"
	}
	start := time.Now()

	var conflicts []*model.Conflict
	if len(req.Candidates) > 0 {
		for _, candidate := range req.Candidates {
			conflicts = append(conflicts, suggester.Enrich(snap, candidate)...)
		}
	} else {
		conflicts = detector.DetectSchedule(snap)
		attachSuggestions(suggester, snap, conflicts)
	}

	metrics.RecordConflictDetection(scope, time.Since(start))
	for _, c := range conflicts {
		metrics.RecordConflict(string(c.Type), string(c.Severity))
		h.engineLog.ConflictDetected(string(c.Type), string(c.Severity), c.EmployeeID.String())
	}

	respondJSON(w, http.StatusOK, ValidateResponse{
		Valid:     !conflict.HasBlocking(conflicts),
		Conflicts: conflicts,
		Counts:    severityCounts(conflicts),
	})
}

// attachSuggestions 为整计划校验出的冲突补全建议
func attachSuggestions(suggester *suggest.Suggester, snap *conflict.Snapshot, conflicts []*model.Conflict) {
	byID := make(map[string]*model.Assignment, len(snap.Assignments))
	for _, a := range snap.Assignments {
		byID[a.ID.String()] = a
	}
	for _, c := range conflicts {
		if len(c.Suggestions) > 0 || len(c.Assignments) == 0 {
			continue
		}
		if a := byID[c.Assignments[0].String()]; a != nil {
			c.Suggestions = suggester.ForConflict(snap, c, a)
		}
	}
}

// severityCounts 按级别统计冲突数
func severityCounts(conflicts []*model.Conflict) map[string]int {
	counts := map[string]int{}
	for _, c := range conflicts {
		counts[string(c.Severity)]++
	}
	return counts
}

// GenerateOptions 生成选项
type GenerateOptions struct {
	TimeoutSeconds int                       `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=300"`
	BacktrackDepth *int                      `json:"backtrack_depth,omitempty" validate:"omitempty,min=0,max=5"`
	MaxSteps       int                       `json:"max_steps,omitempty" validate:"omitempty,min=1"`
	Optimize       bool                      `json:"optimize,omitempty"`
	OptimizeConfig *scheduler.OptimizeConfig `json:"optimize_config,omitempty"`
	Detect         *DetectOptions            `json:"detect,omitempty"`
}

// GenerateRequest 排班生成请求
type GenerateRequest struct {
	SnapshotInput
	Options *GenerateOptions `json:"options,omitempty"`
	Persist bool             `json:"persist,omitempty"`
}

// GenerateResponse 排班生成响应
type GenerateResponse struct {
	ScheduleID   string                    `json:"schedule_id"`
	Partial      bool                      `json:"partial"`
	Result       *scheduler.Result         `json:"result"`
	Optimization *scheduler.OptimizeResult `json:"optimization,omitempty"`
	Persisted    bool                      `json:"persisted,omitempty"`
}

// Generate 为目标计划生成排班
//
// 超出时限时返回部分结果而不是失败; 人手不足时未覆盖的班次
// 连同原因一起返回。
func (h *ScheduleHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Schedule == nil {
		respondError(w, errors.New(errors.CodeInvalidInput, "缺少目标排班计划"))
		return
	}

	snap, err := buildSnapshot(r.Context(), h.loader, &req.SnapshotInput)
	if err != nil {
		respondError(w, err)
		return
	}

	opts := req.Options
	timeout := defaultGenerateTimeout
	if h.defaults.GenerateTimeout > 0 {
		timeout = h.defaults.GenerateTimeout
	}
	if opts != nil && opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	genCtx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	detector := h.detector
	if opts != nil {
		detector = detectorWith(h.detector, opts.Detect)
	}
	gen := scheduler.NewGenerator(detector)
	if h.defaults.BacktrackDepth > 0 {
		gen.SetBacktrackDepth(h.defaults.BacktrackDepth)
	}
	if h.defaults.MaxIterations > 0 {
		gen.SetMaxIterations(h.defaults.MaxIterations)
	}
	if opts != nil {
		if opts.BacktrackDepth != nil {
			gen.SetBacktrackDepth(*opts.BacktrackDepth)
		}
		if opts.MaxSteps > 0 {
			gen.SetMaxIterations(opts.MaxSteps)
		}
	}

	metrics.IncActiveGenerations()
	defer metrics.DecActiveGenerations()

	result, err := gen.Generate(genCtx, snap)
	if err != nil {
		metrics.RecordScheduleGeneration(false, 0)
		respondError(w, err)
		return
	}
	metrics.RecordScheduleGeneration(true, result.Duration)
	metrics.SetCoverageRate(snap.OrgID.String(), result.Statistics.FillRate)

	resp := GenerateResponse{
		ScheduleID: req.Schedule.ID.String(),
		Partial:    len(result.Uncovered) > 0,
		Result:     result,
	}

	doOptimize := h.defaults.Optimize
	if opts != nil && opts.Optimize {
		doOptimize = true
	}
	if doOptimize {
		if ws, ok := workspace.FromContext(r.Context()); ok && !ws.HasFeature("optimizer") {
			respondError(w, errors.New(errors.CodeForbidden, "当前工作区未启用优化器"))
			return
		}
		optCfg := scheduler.DefaultOptimizeConfig()
		if h.defaults.OptimizeTime > 0 {
			optCfg.MaxTime = h.defaults.OptimizeTime
		}
		if opts != nil && opts.OptimizeConfig != nil {
			optCfg = opts.OptimizeConfig
		}
		optimizer := scheduler.NewOptimizer(optCfg, detector)
		optResult, err := optimizer.Improve(genCtx, snap, result.Assignments)
		if err != nil {
			logger.Warn().Err(err).Msg("优化中断, 返回生成结果")
		} else {
			resp.Optimization = optResult
		}
	}

	if len(result.Assignments) > 0 {
		analyzer := stats.NewFairnessAnalyzer()
		fairness := analyzer.Analyze(result.Assignments, snap.Employees)
		metrics.SetScheduleScore(snap.OrgID.String(), fairness.OverallFairnessScore)
		metrics.SetFairnessGini(snap.OrgID.String(), "workload", fairness.WorkloadGini)
	}

	if req.Persist {
		if h.schedules == nil {
			respondError(w, errDatabaseDisabled())
			return
		}
		if err := h.persistResult(r.Context(), req.Schedule, result); err != nil {
			respondError(w, err)
			return
		}
		resp.Persisted = true
	}

	respondJSON(w, http.StatusOK, resp)
}

// persistResult 把生成结果落库, 计划不存在时先创建
func (h *ScheduleHandler) persistResult(ctx context.Context, schedule *model.Schedule, result *scheduler.Result) error {
	existing, err := h.schedules.GetByID(ctx, schedule.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		schedule.Statistics = &model.ScheduleStats{
			TotalAssignments: len(result.Assignments),
			TotalHours:       result.Statistics.TotalHours,
			UncoveredShifts:  len(result.Uncovered),
			FillRate:         result.Statistics.FillRate,
			WarningCount:     result.Statistics.WarningCount,
		}
		if err := h.schedules.Create(ctx, schedule); err != nil {
			return err
		}
	}
	return h.schedules.InsertAssignments(ctx, result.Assignments)
}

// CommitRequest 分配确认请求
//
// 提交方必须携带此前读到的版本号; 版本不匹配说明数据已被他人
// 修改, 返回 VERSION_CONFLICT, 由提交方重新读取后再决定。
type CommitRequest struct {
	AssignmentID    string             `json:"assignment_id" validate:"required,uuid"`
	ExpectedVersion int                `json:"expected_version" validate:"required,min=1"`
	Override        *model.OverrideAck `json:"override,omitempty"`
	Schedule        *model.Schedule    `json:"schedule,omitempty"`
}

// Commit 以乐观并发方式确认一条分配
func (h *ScheduleHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	id, err := parseUUID(req.AssignmentID, "分配ID")
	if err != nil {
		respondError(w, err)
		return
	}

	var assignment *model.Assignment
	if req.Schedule != nil {
		assignment, err = req.Schedule.CommitAssignment(id, req.ExpectedVersion, req.Override)
	} else {
		if h.schedules == nil {
			respondError(w, errDatabaseDisabled())
			return
		}
		assignment, err = h.schedules.CommitAssignment(r.Context(), id, req.ExpectedVersion, req.Override)
	}
	if err != nil {
		respondError(w, err)
		return
	}

	h.engineLog.AssignmentCommitted(assignment.ID.String(), assignment.Version, assignment.Overridden)
	respondJSON(w, http.StatusOK, assignment)
}

// Publish 把草稿计划发布并广播事件
//
// 发布前整计划校验一遍, 存在阻断级冲突时拒绝发布并广播
// 冲突事件, 警告级冲突不拦截。
func (h *ScheduleHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if h.schedules == nil {
		respondError(w, errDatabaseDisabled())
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	schedule, err := h.schedules.GetWithAssignments(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if schedule == nil {
		respondError(w, errors.NotFound("排班计划", id.String()))
		return
	}

	if h.loader != nil {
		blocking, err := h.prePublishCheck(r.Context(), schedule)
		if err != nil {
			respondError(w, err)
			return
		}
		if len(blocking) > 0 {
			h.publisher.CriticalConflicts(r.Context(), schedule.OrgID, schedule.ID, blocking)
			appErr := errors.New(errors.CodeScheduleConflict, "计划存在阻断级冲突, 不能发布").
				WithField("conflicts", blocking)
			respondError(w, appErr)
			return
		}
	}

	published, err := h.schedules.Publish(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	payload := events.PublishedPayload{
		ScheduleName: published.Name,
		StartDate:    published.StartDate,
		EndDate:      published.EndDate,
		Assignments:  len(published.Assignments),
	}
	if published.Statistics != nil {
		payload.FillRate = published.Statistics.FillRate
		payload.Warnings = published.Statistics.WarningCount
	}
	h.publisher.SchedulePublished(r.Context(), published.OrgID, published.ID, payload)

	logger.Info().
		Str("schedule_id", published.ID.String()).
		Str("name", published.Name).
		Int("assignments", len(published.Assignments)).
		Msg("排班计划已发布")
	respondJSON(w, http.StatusOK, published)
}

// prePublishCheck 发布前整计划校验, 返回阻断级冲突
func (h *ScheduleHandler) prePublishCheck(ctx context.Context, schedule *model.Schedule) ([]*model.Conflict, error) {
	snap, err := h.loader.LoadContext(ctx, schedule.OrgID, nil, contextWindow(schedule))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeDatabaseError, "装入排班上下文失败")
	}
	snap.SetSchedule(schedule)

	start := time.Now()
	conflicts := h.detector.DetectSchedule(snap)
	metrics.RecordConflictDetection("schedule", time.Since(start))

	var blocking []*model.Conflict
	for _, c := range conflicts {
		metrics.RecordConflict(string(c.Type), string(c.Severity))
		if c.Severity != model.SeverityWarning {
			blocking = append(blocking, c)
		}
	}
	return blocking, nil
}

// parseUUID 解析请求体中的UUID字段
func parseUUID(raw, label string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CodeInvalidInput, "无效的"+label+"格式")
	}
	return id, nil
}
