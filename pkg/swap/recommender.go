package swap

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// 候选换班方式
const (
	KindTakeOver = "take_over" // 目标员工单方面接手
	KindExchange = "exchange"  // 双方互换班次
)

// Candidate 一名可行的换班候选
type Candidate struct {
	EmployeeID   uuid.UUID         `json:"employee_id"`
	EmployeeName string            `json:"employee_name"`
	Kind         string            `json:"kind"`
	Exchange     *model.Assignment `json:"exchange,omitempty"` // 互换时对方让出的分配
	Score        float64           `json:"score"`
	Reason       string            `json:"reason"`
	Rank         int               `json:"rank"`
}

// Options 推荐选项
type Options struct {
	Max           int         `json:"max"`            // 最大候选数量
	AllowExchange bool        `json:"allow_exchange"` // 是否生成互换候选
	MinScore      float64     `json:"min_score"`      // 低于该分的候选被过滤
	Exclude       []uuid.UUID `json:"exclude,omitempty"`
}

// DefaultOptions 返回默认推荐选项
func DefaultOptions() Options {
	return Options{
		Max:           5,
		AllowExchange: true,
		MinScore:      60,
	}
}

// Recommender 换班候选推荐器
type Recommender struct {
	evaluator *Evaluator
}

// NewRecommender 创建推荐器
func NewRecommender(detector *conflict.Detector) *Recommender {
	return &Recommender{evaluator: NewEvaluator(detector)}
}

// Recommend 为一条分配推荐换班候选
//
// 对每名在职员工先评估单方面接手, 再按选项评估与其异日分配的
// 互换; 不可行或低于最低分的候选被过滤, 其余按得分降序、员工
// ID 升序排列, 保证结果确定。
func (r *Recommender) Recommend(snap *conflict.Snapshot, source *model.Assignment, opts *Options) []Candidate {
	if source == nil {
		return nil
	}
	o := DefaultOptions()
	if opts != nil {
		o = *opts
		if o.Max <= 0 {
			o.Max = DefaultOptions().Max
		}
	}

	excluded := map[uuid.UUID]bool{source.EmployeeID: true}
	for _, id := range o.Exclude {
		excluded[id] = true
	}

	var out []Candidate
	for _, emp := range snap.Employees {
		if excluded[emp.ID] || !emp.IsActive() {
			continue
		}

		if c := r.evaluate(snap, source, emp, nil, o.MinScore); c != nil {
			out = append(out, *c)
		}
		if !o.AllowExchange {
			continue
		}

		// 评估会临时改写快照内的分配列表, 先复制再遍历
		others := append([]*model.Assignment(nil), snap.EmployeeAssignments(emp.ID)...)
		for _, other := range others {
			if other.Date == source.Date {
				continue
			}
			if c := r.evaluate(snap, source, emp, other, o.MinScore); c != nil {
				out = append(out, *c)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].EmployeeID != out[j].EmployeeID {
			return out[i].EmployeeID.String() < out[j].EmployeeID.String()
		}
		return exchangeKey(out[i]) < exchangeKey(out[j])
	})
	if len(out) > o.Max {
		out = out[:o.Max]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// evaluate 评估单个候选, 不可行或低分时返回 nil
func (r *Recommender) evaluate(snap *conflict.Snapshot, source *model.Assignment, emp *model.Employee, exchange *model.Assignment, minScore float64) *Candidate {
	ev := r.evaluator.Evaluate(snap, &Request{
		Source:   source,
		Target:   emp,
		Exchange: exchange,
	})
	if !ev.Feasible || ev.Score < minScore {
		return nil
	}

	kind := KindTakeOver
	reason := fmt.Sprintf("接手后本周 %.1f 小时", ev.Impact.Target.After)
	if exchange != nil {
		kind = KindExchange
		reason = fmt.Sprintf("互换后本周 %.1f 小时", ev.Impact.Target.After)
	}
	if n := len(ev.Conflicts); n > 0 {
		reason += fmt.Sprintf("，仍有 %d 条警告", n)
	}

	return &Candidate{
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
		Kind:         kind,
		Exchange:     exchange,
		Score:        ev.Score,
		Reason:       reason,
	}
}

// exchangeKey 同分同员工时互换候选按对方分配排序, 接手候选在前
func exchangeKey(c Candidate) string {
	if c.Exchange == nil {
		return ""
	}
	return c.Exchange.ID.String()
}
