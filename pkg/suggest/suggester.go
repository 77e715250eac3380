// Package suggest 为检出的冲突生成化解建议
package suggest

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// DefaultMaxSuggestions 每条冲突默认返回的建议数量上限
const DefaultMaxSuggestions = 5

// Suggester 冲突化解建议器
//
// 建议只读快照, 永不修改状态; 调用方把选中的建议变成新候选
// 后重新走检测流程。
type Suggester struct {
	detector *conflict.Detector
	max      int
}

// NewSuggester 创建建议器
func NewSuggester(detector *conflict.Detector, maxSuggestions int) *Suggester {
	if maxSuggestions <= 0 {
		maxSuggestions = DefaultMaxSuggestions
	}
	return &Suggester{
		detector: detector,
		max:      maxSuggestions,
	}
}

// ForConflict 针对单条冲突生成按优先级排序的建议
func (s *Suggester) ForConflict(snap *conflict.Snapshot, c *model.Conflict, candidate *model.Assignment) []model.Suggestion {
	switch c.Type {
	case model.ConflictDoubleBooking, model.ConflictOverlap, model.ConflictCrossSchedule, model.ConflictAvailabilityViolated:
		return s.AlternativeEmployees(snap, candidate)

	case model.ConflictDurationBounds:
		// 检测阶段已内联拆分方案
		return rerank(c.Suggestions, s.max)

	case model.ConflictInsufficientRest:
		out := append([]model.Suggestion{}, c.Suggestions...)
		out = append(out, s.AlternativeEmployees(snap, candidate)...)
		return rerank(out, s.max)

	case model.ConflictMaxHoursExceeded:
		out := s.AlternativeEmployees(snap, candidate)
		if reduced := s.reducedHours(c, candidate); reduced != nil {
			out = append(out, *reduced)
		}
		return rerank(out, s.max)
	}
	return nil
}

// Enrich 对候选执行检测并为每条冲突补全建议
func (s *Suggester) Enrich(snap *conflict.Snapshot, candidate *model.Assignment) []*model.Conflict {
	conflicts := s.detector.Detect(snap, candidate)
	for _, c := range conflicts {
		c.Suggestions = s.ForConflict(snap, c, candidate)
	}
	return conflicts
}

// altCandidate 候选替代员工及排序依据
type altCandidate struct {
	emp      *model.Employee
	hours    float64
	pref     float64
	warnings int
}

// AlternativeEmployees 为候选时段推荐替代员工
//
// 对每名在职员工试算改派后的冲突: 存在阻断冲突或可用性冲突
// 的员工被排除, 其余按当前周工时升序、偏好匹配降序、员工 ID
// 排序, 保证结果确定。
func (s *Suggester) AlternativeEmployees(snap *conflict.Snapshot, candidate *model.Assignment) []model.Suggestion {
	day, window := dominantSlice(candidate)

	var ranked []altCandidate
	for _, emp := range snap.Employees {
		if emp.ID == candidate.EmployeeID || !emp.IsActive() {
			continue
		}
		if candidate.Position != "" && emp.Position != "" && emp.Position != candidate.Position {
			continue
		}

		trial := *candidate
		trial.BaseModel = model.NewBaseModel()
		trial.EmployeeID = emp.ID
		trialConflicts := s.detector.Detect(snap, &trial)
		if unsuitable(trialConflicts) {
			continue
		}

		pref := emp.Preferences.Score(day, window)
		if compiled := snap.RulesFor(emp.ID); compiled != nil {
			pref += compiled.PreferenceScore(day, window)
		}

		ranked = append(ranked, altCandidate{
			emp:      emp,
			hours:    snap.WeeklyHours(emp.ID, candidate.StartTime, uuid.Nil),
			pref:     pref,
			warnings: len(trialConflicts),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].hours != ranked[j].hours {
			return ranked[i].hours < ranked[j].hours
		}
		if ranked[i].pref != ranked[j].pref {
			return ranked[i].pref > ranked[j].pref
		}
		return ranked[i].emp.ID.String() < ranked[j].emp.ID.String()
	})
	if len(ranked) > s.max {
		ranked = ranked[:s.max]
	}

	out := make([]model.Suggestion, 0, len(ranked))
	for i, rc := range ranked {
		id := rc.emp.ID
		reason := fmt.Sprintf("本周已排 %.1f 小时", rc.hours)
		if rc.warnings > 0 {
			reason += fmt.Sprintf("，改派后仍有 %d 条警告", rc.warnings)
		}
		out = append(out, model.Suggestion{
			Type:         model.SuggestAlternativeEmployee,
			Rank:         i + 1,
			Score:        rc.pref,
			Reason:       reason,
			EmployeeID:   &id,
			EmployeeName: rc.emp.Name,
			WeeklyHours:  rc.hours,
		})
	}
	return out
}

// reducedHours 在周上限内缩短候选, 剩余额度不足单班下限时放弃
func (s *Suggester) reducedHours(c *model.Conflict, candidate *model.Assignment) *model.Suggestion {
	hours := candidate.WorkingHours()
	room := c.Details.MaxWeeklyHours - (c.Details.TotalWeeklyHours - hours)
	if room < s.detector.Config().MinShiftHours || room >= hours {
		return nil
	}

	newStart := candidate.StartTime
	newEnd := newStart.Add(time.Duration(room * float64(time.Hour)))
	return &model.Suggestion{
		Type:     model.SuggestReduceHours,
		Reason:   fmt.Sprintf("缩短到 %.1f 小时以不超过周上限 %.1f 小时", room, c.Details.MaxWeeklyHours),
		NewStart: &newStart,
		NewEnd:   &newEnd,
	}
}

// unsuitable 改派候选被排除的条件: 阻断冲突或可用性冲突
func unsuitable(conflicts []*model.Conflict) bool {
	for _, c := range conflicts {
		if c.IsBlocking() || c.Type == model.ConflictAvailabilityViolated {
			return true
		}
	}
	return false
}

// dominantSlice 返回候选覆盖最久的自然日片段, 偏好评分以其为准
func dominantSlice(candidate *model.Assignment) (time.Weekday, timeutil.ClockRange) {
	best := timeutil.DominantSlice(candidate.StartTime, candidate.EndTime)
	return best.Day.Weekday(), best.Range
}

// rerank 重排建议序号并截断
func rerank(suggestions []model.Suggestion, max int) []model.Suggestion {
	if len(suggestions) > max {
		suggestions = suggestions[:max]
	}
	for i := range suggestions {
		suggestions[i].Rank = i + 1
	}
	return suggestions
}
