package handler

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/catalog"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/metrics"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/repository"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/ruleparse"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/rules"
)

// RuleHandler 规则处理器
//
// 解析与模板接口无状态; 存储类接口要求配置数据库, 未配置时
// 返回明确的错误而不是静默降级。
type RuleHandler struct {
	repo      *repository.RuleRepository
	employees *repository.EmployeeRepository
	store     *rules.Store
	engineLog *logger.EngineLogger
}

// NewRuleHandler 创建规则处理器, repo 与 store 允许为 nil
func NewRuleHandler(repo *repository.RuleRepository, employees *repository.EmployeeRepository, store *rules.Store) *RuleHandler {
	return &RuleHandler{
		repo:      repo,
		employees: employees,
		store:     store,
		engineLog: logger.NewEngineLogger(),
	}
}

// ParseRequest 规则解析请求
type ParseRequest struct {
	Text string `json:"text" validate:"required"`
}

// Parse 把自然语言规则文本解析为结构化草稿
//
// 解析失败返回 PARSE_FAILURE 与原文, 供用户修正后重新提交。
func (h *RuleHandler) Parse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	rule, err := ruleparse.Parse(req.Text)
	if err != nil {
		metrics.RecordRuleParse(false)
		var pe *ruleparse.ParseError
		if stderrors.As(err, &pe) {
			h.engineLog.ParseRejected(pe.RawText, pe.Reason)
			respondError(w, errors.ParseFailure(pe.RawText, pe.Reason))
			return
		}
		respondError(w, err)
		return
	}

	metrics.RecordRuleParse(true)
	h.engineLog.RuleParsed(string(rule.Type), rule.RawText, len(rule.Constraints))
	respondJSON(w, http.StatusOK, rule)
}

// CreateRuleRequest 规则创建请求
type CreateRuleRequest struct {
	OrgID      string `json:"org_id" validate:"required,uuid"`
	Text       string `json:"text" validate:"required"`
	EmployeeID string `json:"employee_id,omitempty" validate:"omitempty,uuid"`
	Department string `json:"department,omitempty"`
	Priority   int    `json:"priority,omitempty" validate:"omitempty,min=1,max=100"`
}

// Create 解析规则文本并保存为草稿
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, errDatabaseDisabled())
		return
	}

	var req CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	rule, err := ruleparse.Parse(req.Text)
	if err != nil {
		metrics.RecordRuleParse(false)
		var pe *ruleparse.ParseError
		if stderrors.As(err, &pe) {
			h.engineLog.ParseRejected(pe.RawText, pe.Reason)
			respondError(w, errors.ParseFailure(pe.RawText, pe.Reason))
			return
		}
		respondError(w, err)
		return
	}
	metrics.RecordRuleParse(true)

	orgID, err := uuid.Parse(req.OrgID)
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式"))
		return
	}
	rule.OrgID = orgID

	if req.EmployeeID != "" {
		empID, err := uuid.Parse(req.EmployeeID)
		if err != nil {
			respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的员工ID格式"))
			return
		}
		rule.EmployeeID = &empID
	}
	rule.Department = req.Department
	if req.Priority > 0 {
		rule.Priority = req.Priority
	}

	if err := h.repo.Create(r.Context(), rule); err != nil {
		respondError(w, err)
		return
	}

	h.engineLog.RuleParsed(string(rule.Type), rule.RawText, len(rule.Constraints))
	respondJSON(w, http.StatusCreated, rule)
}

// List 按条件列出规则
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, errDatabaseDisabled())
		return
	}

	q := r.URL.Query()
	orgID, err := uuid.Parse(q.Get("org_id"))
	if err != nil {
		respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式"))
		return
	}

	filter := repository.DefaultListFilter().WithOrgID(orgID)
	if v := q.Get("employee_id"); v != "" {
		empID, err := uuid.Parse(v)
		if err != nil {
			respondError(w, errors.Wrap(err, errors.CodeInvalidInput, "无效的员工ID格式"))
			return
		}
		filter = filter.WithEmployeeID(empID)
	}
	if v := q.Get("status"); v != "" {
		filter = filter.WithStatus(v)
	}
	if v := q.Get("department"); v != "" {
		filter = filter.WithDepartment(v)
	}

	ruleList, err := h.repo.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"rules": ruleList,
		"total": len(ruleList),
	})
}

// Get 按 ID 读取规则
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, errDatabaseDisabled())
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if rule == nil {
		respondError(w, errors.NotFound("规则", id.String()))
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Confirm 确认草稿规则
//
// 确认后规则不可变并开始参与检测, 相关员工的规则缓存随即失效。
func (h *RuleHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, errDatabaseDisabled())
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	rule, err := h.repo.Confirm(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	h.invalidateCache(r.Context(), rule)
	logger.Info().
		Str("rule_id", rule.ID.String()).
		Str("type", string(rule.Type)).
		Msg("规则已确认")
	respondJSON(w, http.StatusOK, rule)
}

// NewVersion 基于已确认规则派生可编辑的新版本
func (h *RuleHandler) NewVersion(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, errDatabaseDisabled())
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	next, err := h.repo.NewVersion(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, next)
}

// Delete 删除草稿规则, 已确认的规则拒绝删除
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, errDatabaseDisabled())
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id.String()})
}

// Templates 规则模板库
func (h *RuleHandler) Templates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, catalog.CatalogResponse{Templates: catalog.Templates()})
}

// invalidateCache 使规则作用范围内的员工缓存失效
//
// 员工级规则只失效一人; 部门级与组织级规则遍历在职员工逐个失效。
func (h *RuleHandler) invalidateCache(ctx context.Context, rule *model.Rule) {
	if h.store == nil {
		return
	}
	if rule.EmployeeID != nil {
		h.store.Invalidate(ctx, *rule.EmployeeID)
		return
	}
	if h.employees == nil {
		return
	}
	emps, err := h.employees.ListActive(ctx, rule.OrgID)
	if err != nil {
		logger.Warn().Err(err).Msg("装入员工失败, 跳过规则缓存失效")
		return
	}
	for _, e := range emps {
		if rule.AppliesTo(e) {
			h.store.Invalidate(ctx, e.ID)
		}
	}
}
