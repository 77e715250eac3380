// Package repository 提供数据访问层
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/rules"
)

// ContextLoader 组装冲突检测所需的数据快照
type ContextLoader struct {
	employees *EmployeeRepository
	shifts    *ShiftRepository
	schedules *ScheduleRepository
	rules     *RuleRepository
	ruleStore *rules.Store
}

// NewContextLoader 创建快照装配器
func NewContextLoader(db DB) *ContextLoader {
	return &ContextLoader{
		employees: NewEmployeeRepository(db),
		shifts:    NewShiftRepository(db),
		schedules: NewScheduleRepository(db),
		rules:     NewRuleRepository(db),
	}
}

// WithRuleStore 启用规则缓存, 装配快照时按员工走缓存而不是整表查询
func (l *ContextLoader) WithRuleStore(store *rules.Store) *ContextLoader {
	l.ruleStore = store
	return l
}

// LoadContext 从数据库装配完整的冲突检测快照
//
// employeeIDs 为空时装入组织下全部活跃员工。window 限定班次与
// 跨计划分配的装入范围, 休息间隔检查需要相邻日期的分配时,
// 调用方应把范围向两侧各扩一天。候选所属计划由调用方另行装入。
func (l *ContextLoader) LoadContext(ctx context.Context, orgID uuid.UUID, employeeIDs []uuid.UUID, window model.DateRange) (*conflict.Snapshot, error) {
	snapshot := conflict.NewSnapshot(orgID)

	var employees []*model.Employee
	var err error
	if len(employeeIDs) == 0 {
		employees, err = l.employees.ListActive(ctx, orgID)
	} else {
		employees, err = l.employees.ListByIDs(ctx, employeeIDs)
	}
	if err != nil {
		return nil, fmt.Errorf("装入员工失败: %w", err)
	}
	snapshot.SetEmployees(employees)

	shifts, err := l.shifts.ListByDateRange(ctx, orgID, window.StartDate, window.EndDate)
	if err != nil {
		return nil, fmt.Errorf("装入班次失败: %w", err)
	}
	snapshot.SetShifts(shifts)

	schedules, err := l.schedules.ListActive(ctx, orgID, window)
	if err != nil {
		return nil, fmt.Errorf("装入跨计划分配失败: %w", err)
	}
	snapshot.SetOtherSchedules(schedules)

	if l.ruleStore != nil {
		compiled := make(map[uuid.UUID]*rules.CompiledRules, len(employees))
		for _, emp := range employees {
			c, err := l.ruleStore.Get(ctx, emp.ID)
			if err != nil {
				return nil, fmt.Errorf("装入员工 %s 规则失败: %w", emp.ID, err)
			}
			compiled[emp.ID] = c
		}
		snapshot.SetCompiledRules(compiled)
		return snapshot, nil
	}

	ruleFilter := DefaultListFilter().
		WithOrgID(orgID).
		WithStatus(string(model.RuleConfirmed)).
		WithLimit(10000)
	ruleList, err := l.rules.List(ctx, ruleFilter)
	if err != nil {
		return nil, fmt.Errorf("装入规则失败: %w", err)
	}
	snapshot.SetRules(ruleList)

	return snapshot, nil
}
