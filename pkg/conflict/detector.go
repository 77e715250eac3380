package conflict

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/rules"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// 引擎默认的单班时长区间（小时）
const (
	DefaultMinShiftHours = 4.0
	DefaultMaxShiftHours = 12.0
)

// Config 检测参数, 零值字段采用引擎默认
type Config struct {
	MinShiftHours float64 `json:"min_shift_hours"`
	MaxShiftHours float64 `json:"max_shift_hours"`
}

func (c Config) normalized() Config {
	if c.MinShiftHours <= 0 {
		c.MinShiftHours = DefaultMinShiftHours
	}
	if c.MaxShiftHours <= 0 {
		c.MaxShiftHours = DefaultMaxShiftHours
	}
	return c
}

// Detector 按固定顺序执行全部冲突检查
type Detector struct {
	cfg Config
}

// NewDetector 创建冲突检测器
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.normalized()}
}

// Config 返回生效的检测参数
func (d *Detector) Config() Config {
	return d.cfg
}

// Detect 对候选分配执行全部冲突检查
//
// 纯函数: 相同输入产生相同的冲突列表。命中第一个 critical 级
// 冲突后跳过其余 critical 级检查, error 与 warning 级检查照常
// 执行并累积; 与候选重叠的分配不再参与班间休息检查。
func (d *Detector) Detect(snap *Snapshot, candidate *model.Assignment) []*model.Conflict {
	emp := snap.Employee(candidate.EmployeeID)
	compiled := snap.RulesFor(candidate.EmployeeID)
	same := snap.EmployeeAssignments(candidate.EmployeeID)

	var conflicts []*model.Conflict
	criticalFound := false

	// 1. 完全重复排班
	if c := d.checkDoubleBooking(candidate, same, emp); c != nil {
		conflicts = append(conflicts, c)
		criticalFound = true
	}

	// 2. 班次重叠
	if !criticalFound {
		if overlapped := d.checkOverlap(candidate, same, emp); len(overlapped) > 0 {
			conflicts = append(conflicts, overlapped...)
			criticalFound = true
		}
	}

	// 3. 班次时长越界
	if c := d.checkDurationBounds(snap, candidate); c != nil {
		conflicts = append(conflicts, c)
	}

	// 4. 班间休息不足
	conflicts = append(conflicts, d.checkRest(snap, candidate, emp)...)

	// 5. 周工时超限
	if !criticalFound {
		if c := d.checkWeeklyHours(snap, candidate, emp, compiled); c != nil {
			conflicts = append(conflicts, c)
		}
	}

	// 6. 可用性
	conflicts = append(conflicts, d.checkAvailability(candidate, emp, compiled)...)

	// 7. 跨计划重叠
	conflicts = append(conflicts, d.checkCrossSchedule(snap, candidate)...)

	return conflicts
}

// DetectSchedule 校验整个计划, 成对冲突只报告一次
func (d *Detector) DetectSchedule(snap *Snapshot) []*model.Conflict {
	ordered := make([]*model.Assignment, len(snap.Assignments))
	copy(ordered, snap.Assignments)
	sortAssignments(ordered)

	seen := make(map[string]bool)
	var all []*model.Conflict
	for _, a := range ordered {
		for _, c := range d.Detect(snap, a) {
			key := conflictKey(c)
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, c)
		}
	}
	return all
}

// HasBlocking 检查冲突列表中是否存在不可豁免的冲突
func HasBlocking(conflicts []*model.Conflict) bool {
	for _, c := range conflicts {
		if c.IsBlocking() {
			return true
		}
	}
	return false
}

// Blocking 过滤出不可豁免的冲突
func Blocking(conflicts []*model.Conflict) []*model.Conflict {
	var out []*model.Conflict
	for _, c := range conflicts {
		if c.IsBlocking() {
			out = append(out, c)
		}
	}
	return out
}

// Warnings 过滤出可豁免的警告
func Warnings(conflicts []*model.Conflict) []*model.Conflict {
	var out []*model.Conflict
	for _, c := range conflicts {
		if !c.IsBlocking() {
			out = append(out, c)
		}
	}
	return out
}

func (d *Detector) checkDoubleBooking(candidate *model.Assignment, same []*model.Assignment, emp *model.Employee) *model.Conflict {
	var dup []uuid.UUID
	for _, other := range same {
		if other.ID == candidate.ID {
			continue
		}
		if candidate.SameSlot(other) {
			dup = append(dup, other.ID)
		}
	}
	if len(dup) == 0 {
		return nil
	}

	c := model.NewConflict(model.ConflictDoubleBooking, candidate.EmployeeID)
	c.Date = candidate.Date
	c.Assignments = append([]uuid.UUID{candidate.ID}, dup...)
	c.Message = fmt.Sprintf("员工 %s 在 %s %s-%s 已有完全相同的排班",
		employeeName(emp, candidate.EmployeeID), candidate.Date,
		candidate.StartTime.Format("15:04"), candidate.EndTime.Format("15:04"))
	return c
}

func (d *Detector) checkOverlap(candidate *model.Assignment, same []*model.Assignment, emp *model.Employee) []*model.Conflict {
	var conflicts []*model.Conflict
	for _, other := range same {
		if other.ID == candidate.ID || candidate.SameSlot(other) {
			continue
		}
		if !timeutil.Overlaps(candidate.StartTime, candidate.EndTime, other.StartTime, other.EndTime) {
			continue
		}
		overlap := timeutil.OverlapHours(candidate.StartTime, candidate.EndTime, other.StartTime, other.EndTime)

		c := model.NewConflict(model.ConflictOverlap, candidate.EmployeeID)
		c.Date = candidate.Date
		c.Assignments = []uuid.UUID{candidate.ID, other.ID}
		c.Details.OverlapHours = overlap
		c.Message = fmt.Sprintf("员工 %s 的班次与既有排班重叠 %.1f 小时",
			employeeName(emp, candidate.EmployeeID), overlap)
		conflicts = append(conflicts, c)
	}
	return conflicts
}

func (d *Detector) checkDurationBounds(snap *Snapshot, candidate *model.Assignment) *model.Conflict {
	if shift := snap.Shift(candidate.ShiftID); shift != nil && shift.DurationOverride {
		return nil
	}
	hours := candidate.WorkingHours()
	if hours >= d.cfg.MinShiftHours && hours <= d.cfg.MaxShiftHours {
		return nil
	}

	c := model.NewConflict(model.ConflictDurationBounds, candidate.EmployeeID)
	c.Date = candidate.Date
	c.Assignments = []uuid.UUID{candidate.ID}
	c.Details.ShiftHours = hours
	c.Details.MinShiftHours = d.cfg.MinShiftHours
	c.Details.MaxShiftHours = d.cfg.MaxShiftHours

	if hours > d.cfg.MaxShiftHours {
		c.Message = fmt.Sprintf("班次时长 %.1f 小时，超过单班上限 %.1f 小时", hours, d.cfg.MaxShiftHours)
		c.Suggestions = splitSuggestion(candidate, d.cfg.MaxShiftHours)
	} else {
		c.Message = fmt.Sprintf("班次时长 %.1f 小时，不足单班下限 %.1f 小时", hours, d.cfg.MinShiftHours)
	}
	return c
}

// splitSuggestion 把超长班次等分为若干段连续子班次
func splitSuggestion(candidate *model.Assignment, maxHours float64) []model.Suggestion {
	total := candidate.WorkingHours()
	n := int(math.Ceil(total / maxHours))
	if n < 2 {
		return nil
	}

	span := candidate.EndTime.Sub(candidate.StartTime)
	part := span / time.Duration(n)
	parts := make([]model.TimeSpan, 0, n)
	cur := candidate.StartTime
	for i := 0; i < n; i++ {
		end := cur.Add(part)
		if i == n-1 {
			end = candidate.EndTime
		}
		parts = append(parts, model.TimeSpan{Start: cur, End: end})
		cur = end
	}

	return []model.Suggestion{{
		Type:   model.SuggestSplitShift,
		Rank:   1,
		Reason: fmt.Sprintf("拆分为 %d 段连续班次, 每段不超过 %.1f 小时", n, maxHours),
		Parts:  parts,
	}}
}

func (d *Detector) checkRest(snap *Snapshot, candidate *model.Assignment, emp *model.Employee) []*model.Conflict {
	minRest := model.DefaultMinRestHours
	if emp != nil {
		minRest = emp.EffectiveMinRest()
	}
	prev, next := d.neighbors(snap, candidate)
	duration := candidate.EndTime.Sub(candidate.StartTime)

	var conflicts []*model.Conflict
	if prev != nil {
		if gap := timeutil.RestGap(prev.EndTime, candidate.StartTime); gap < minRest {
			c := restConflict(candidate, prev.ID, emp, gap, minRest)
			newStart := prev.EndTime.Add(time.Duration(minRest * float64(time.Hour)))
			newEnd := newStart.Add(duration)
			c.Suggestions = []model.Suggestion{{
				Type:     model.SuggestAdjustTime,
				Rank:     1,
				Reason:   fmt.Sprintf("顺延到 %s 开始, 保留原时长", newStart.Format("01-02 15:04")),
				NewStart: &newStart,
				NewEnd:   &newEnd,
			}}
			conflicts = append(conflicts, c)
		}
	}
	if next != nil {
		if gap := timeutil.RestGap(candidate.EndTime, next.StartTime); gap < minRest {
			c := restConflict(candidate, next.ID, emp, gap, minRest)
			newEnd := next.StartTime.Add(-time.Duration(minRest * float64(time.Hour)))
			newStart := newEnd.Add(-duration)
			c.Suggestions = []model.Suggestion{{
				Type:     model.SuggestAdjustTime,
				Rank:     1,
				Reason:   fmt.Sprintf("提前到 %s 结束, 保留原时长", newEnd.Format("01-02 15:04")),
				NewStart: &newStart,
				NewEnd:   &newEnd,
			}}
			conflicts = append(conflicts, c)
		}
	}
	return conflicts
}

func restConflict(candidate *model.Assignment, otherID uuid.UUID, emp *model.Employee, gap, minRest float64) *model.Conflict {
	c := model.NewConflict(model.ConflictInsufficientRest, candidate.EmployeeID)
	c.Date = candidate.Date
	c.Assignments = []uuid.UUID{candidate.ID, otherID}
	c.Details.ActualRest = gap
	c.Details.RequiredRest = minRest
	c.Message = fmt.Sprintf("员工 %s 班间休息仅 %.1f 小时，少于要求的 %.1f 小时",
		employeeName(emp, candidate.EmployeeID), gap, minRest)
	return c
}

// neighbors 寻找候选前后最近的不重叠分配, 同计划与跨计划一并考虑
func (d *Detector) neighbors(snap *Snapshot, candidate *model.Assignment) (prev, next *model.Assignment) {
	consider := func(a *model.Assignment) {
		if a.ID == candidate.ID {
			return
		}
		if timeutil.Overlaps(a.StartTime, a.EndTime, candidate.StartTime, candidate.EndTime) {
			return
		}
		if !a.EndTime.After(candidate.StartTime) {
			if prev == nil || a.EndTime.After(prev.EndTime) {
				prev = a
			}
		} else if !a.StartTime.Before(candidate.EndTime) {
			if next == nil || a.StartTime.Before(next.StartTime) {
				next = a
			}
		}
	}
	for _, a := range snap.EmployeeAssignments(candidate.EmployeeID) {
		consider(a)
	}
	for _, ca := range snap.CrossAssignments(candidate.EmployeeID) {
		consider(ca.Assignment)
	}
	return prev, next
}

func (d *Detector) checkWeeklyHours(snap *Snapshot, candidate *model.Assignment, emp *model.Employee, compiled *rules.CompiledRules) *model.Conflict {
	baseCap := model.DefaultMaxHoursPerWeek
	if emp != nil {
		baseCap = emp.EffectiveMaxHours()
	}
	limit := baseCap
	var ruleID *uuid.UUID
	if compiled != nil {
		limit = compiled.EffectiveMaxHours(baseCap)
		if limit < baseCap && compiled.MaxHoursRuleID != uuid.Nil {
			id := compiled.MaxHoursRuleID
			ruleID = &id
		}
	}

	total := snap.WeeklyHours(candidate.EmployeeID, candidate.StartTime, candidate.ID) + candidate.WorkingHours()
	if total <= limit {
		return nil
	}

	c := model.NewConflict(model.ConflictMaxHoursExceeded, candidate.EmployeeID)
	c.Date = candidate.Date
	c.Assignments = []uuid.UUID{candidate.ID}
	c.Details.TotalWeeklyHours = total
	c.Details.MaxWeeklyHours = limit
	c.Details.RuleID = ruleID
	c.Message = fmt.Sprintf("员工 %s 本周总工时将达 %.1f 小时，超过上限 %.1f 小时",
		employeeName(emp, candidate.EmployeeID), total, limit)
	return c
}

func (d *Detector) checkAvailability(candidate *model.Assignment, emp *model.Employee, compiled *rules.CompiledRules) []*model.Conflict {
	slices := timeutil.SliceByDay(candidate.StartTime, candidate.EndTime)
	var conflicts []*model.Conflict

	if emp != nil {
		for _, sl := range slices {
			day := sl.Day.Weekday()
			if emp.AvailableFor(day, sl.Range) {
				continue
			}
			c := model.NewConflict(model.ConflictAvailabilityViolated, candidate.EmployeeID)
			c.Date = candidate.Date
			c.Assignments = []uuid.UUID{candidate.ID}
			note := emp.AvailabilityNote(day)
			if note == "" {
				note = "该时段不可用"
			}
			c.Message = fmt.Sprintf("员工 %s %s %s", employeeName(emp, candidate.EmployeeID), weekdayCN(day), note)
			conflicts = append(conflicts, c)
			break
		}
	}

	if compiled != nil {
		for _, sl := range slices {
			day := sl.Day.Weekday()
			violated, src := compiled.CheckUnavailable(day, sl.Range)
			if !violated {
				continue
			}
			c := model.NewConflict(model.ConflictAvailabilityViolated, candidate.EmployeeID)
			c.Date = candidate.Date
			c.Assignments = []uuid.UUID{candidate.ID}
			id := src.RuleID
			c.Details.RuleID = &id
			reason := src.Note
			if reason == "" {
				reason = weekdayCN(day) + " 不可排班"
			}
			c.Message = fmt.Sprintf("员工 %s 命中不可用规则: %s", employeeName(emp, candidate.EmployeeID), reason)
			conflicts = append(conflicts, c)
			break
		}
	}
	return conflicts
}

func (d *Detector) checkCrossSchedule(snap *Snapshot, candidate *model.Assignment) []*model.Conflict {
	var conflicts []*model.Conflict
	for _, ca := range snap.CrossAssignments(candidate.EmployeeID) {
		a := ca.Assignment
		if a.ID == candidate.ID {
			continue
		}
		if !timeutil.Overlaps(candidate.StartTime, candidate.EndTime, a.StartTime, a.EndTime) {
			continue
		}
		overlap := timeutil.OverlapHours(candidate.StartTime, candidate.EndTime, a.StartTime, a.EndTime)

		c := model.NewConflict(model.ConflictCrossSchedule, candidate.EmployeeID)
		c.Date = candidate.Date
		c.Assignments = []uuid.UUID{candidate.ID, a.ID}
		id := ca.ScheduleID
		c.Details.OtherScheduleID = &id
		c.Details.OverlapHours = overlap
		name := ca.ScheduleName
		if name == "" {
			name = id.String()
		}
		c.Message = fmt.Sprintf("与计划 %q 中的排班重叠 %.1f 小时", name, overlap)
		conflicts = append(conflicts, c)
	}
	return conflicts
}

// conflictKey 去重键, 成对冲突按涉及的分配归一, 周工时冲突按员工加自然周归一
func conflictKey(c *model.Conflict) string {
	if c.Type == model.ConflictMaxHoursExceeded {
		week := c.Date
		if t, err := timeutil.ParseDate(c.Date); err == nil {
			week = timeutil.FormatDate(timeutil.WeekStart(t))
		}
		return fmt.Sprintf("%s|%s|%s", c.Type, c.EmployeeID, week)
	}
	ids := make([]string, len(c.Assignments))
	for i, id := range c.Assignments {
		ids[i] = id.String()
	}
	sort.Strings(ids)
	return string(c.Type) + "|" + strings.Join(ids, ",")
}

func employeeName(emp *model.Employee, id uuid.UUID) string {
	if emp != nil && emp.Name != "" {
		return emp.Name
	}
	return id.String()[:8]
}

func weekdayCN(day time.Weekday) string {
	names := map[time.Weekday]string{
		time.Monday:    "周一",
		time.Tuesday:   "周二",
		time.Wednesday: "周三",
		time.Thursday:  "周四",
		time.Friday:    "周五",
		time.Saturday:  "周六",
		time.Sunday:    "周日",
	}
	return names[day]
}
