package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/metrics"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/repository"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/suggest"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/swap"
)

// SuggestHandler 处置建议处理器
type SuggestHandler struct {
	detector       *conflict.Detector
	loader         *repository.ContextLoader
	maxSuggestions int
}

// NewSuggestHandler 创建建议处理器, loader 允许为 nil
func NewSuggestHandler(detector *conflict.Detector, loader *repository.ContextLoader) *SuggestHandler {
	return &SuggestHandler{detector: detector, loader: loader}
}

// WithMaxSuggestions 设置请求未指定时的建议条数上限
func (h *SuggestHandler) WithMaxSuggestions(n int) *SuggestHandler {
	h.maxSuggestions = n
	return h
}

// SuggestRequest 建议请求
//
// 携带 conflict 时只为该冲突生成建议; 不携带时对候选做完整
// 检测, 每条冲突附带各自的建议。
type SuggestRequest struct {
	SnapshotInput
	Candidate *model.Assignment `json:"candidate" validate:"required"`
	Conflict  *model.Conflict   `json:"conflict,omitempty"`
	Options   *DetectOptions    `json:"options,omitempty"`
}

// SuggestResponse 建议响应
type SuggestResponse struct {
	Suggestions []model.Suggestion `json:"suggestions,omitempty"`
	Conflicts   []*model.Conflict  `json:"conflicts,omitempty"`
}

// Suggest 为冲突生成按优先级排序的处置建议
func (h *SuggestHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
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
	maxSuggestions := h.maxSuggestions
	if req.Options != nil && req.Options.MaxSuggestions > 0 {
		maxSuggestions = req.Options.MaxSuggestions
	}
	suggester := suggest.NewSuggester(detector, maxSuggestions)

	var resp SuggestResponse
	if req.Conflict != nil {
		resp.Suggestions = suggester.ForConflict(snap, req.Conflict, req.Candidate)
		for _, s := range resp.Suggestions {
			metrics.RecordSuggestion(string(s.Type))
		}
	} else {
		resp.Conflicts = suggester.Enrich(snap, req.Candidate)
		for _, c := range resp.Conflicts {
			for _, s := range c.Suggestions {
				metrics.RecordSuggestion(string(s.Type))
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// ReassignRequest 改派评估请求
type ReassignRequest struct {
	SnapshotInput
	Assignment *model.Assignment `json:"assignment" validate:"required"`
	TargetID   string            `json:"target_employee_id" validate:"required,uuid"`
}

// Reassign 评估把一条分配改派给目标员工的效果
//
// 只做试算不落库, 调用方确认后走正常的提交流程。
func (h *SuggestHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	var req ReassignRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	snap, err := buildSnapshot(r.Context(), h.loader, &req.SnapshotInput)
	if err != nil {
		respondError(w, err)
		return
	}

	targetID, err := parseUUID(req.TargetID, "目标员工ID")
	if err != nil {
		respondError(w, err)
		return
	}
	target := snap.Employee(targetID)
	if target == nil {
		respondError(w, errors.NotFound("员工", targetID.String()))
		return
	}

	suggester := suggest.NewSuggester(h.detector, 0)
	eval := suggester.EvaluateReassign(snap, req.Assignment, target)
	respondJSON(w, http.StatusOK, eval)
}

// SwapRequest 换班请求
//
// 指定 target_employee_id 时评估该次交接, exchange 进一步指定
// 互换班次; 不指定目标时为源分配推荐换班候选。
type SwapRequest struct {
	SnapshotInput
	Assignment *model.Assignment `json:"assignment" validate:"required"`
	TargetID   string            `json:"target_employee_id,omitempty" validate:"omitempty,uuid"`
	Exchange   *model.Assignment `json:"exchange,omitempty"`
	Options    *SwapOptions      `json:"options,omitempty"`
}

// SwapOptions 换班推荐选项, 缺省项沿用引擎默认
type SwapOptions struct {
	Max           int         `json:"max,omitempty"`
	AllowExchange *bool       `json:"allow_exchange,omitempty"`
	MinScore      *float64    `json:"min_score,omitempty"`
	Exclude       []uuid.UUID `json:"exclude,omitempty"`
}

// SwapResponse 换班响应, 两种模式只填各自的字段
type SwapResponse struct {
	Evaluation *swap.Evaluation `json:"evaluation,omitempty"`
	Candidates []swap.Candidate `json:"candidates,omitempty"`
}

// Swap 评估换班或推荐换班候选, 只做试算不落库
func (h *SuggestHandler) Swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	snap, err := buildSnapshot(r.Context(), h.loader, &req.SnapshotInput)
	if err != nil {
		respondError(w, err)
		return
	}

	var resp SwapResponse
	if req.TargetID != "" {
		targetID, err := parseUUID(req.TargetID, "目标员工ID")
		if err != nil {
			respondError(w, err)
			return
		}
		target := snap.Employee(targetID)
		if target == nil {
			respondError(w, errors.NotFound("员工", targetID.String()))
			return
		}
		resp.Evaluation = swap.NewEvaluator(h.detector).Evaluate(snap, &swap.Request{
			Source:   req.Assignment,
			Target:   target,
			Exchange: req.Exchange,
		})
	} else {
		opts := swap.DefaultOptions()
		if req.Options != nil {
			if req.Options.Max > 0 {
				opts.Max = req.Options.Max
			}
			if req.Options.AllowExchange != nil {
				opts.AllowExchange = *req.Options.AllowExchange
			}
			if req.Options.MinScore != nil {
				opts.MinScore = *req.Options.MinScore
			}
			opts.Exclude = req.Options.Exclude
		}
		resp.Candidates = swap.NewRecommender(h.detector).Recommend(snap, req.Assignment, &opts)
		for _, c := range resp.Candidates {
			metrics.RecordSuggestion(c.Kind)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}
