package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/repository"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/timeutil"
)

// SnapshotInput 内联的排班检测上下文
//
// 引擎端点无状态: 调用方把检测所需的上下文随请求提交。
// 配置了数据库时允许省略员工与班次, 由服务端按 org_id 装入;
// 内联提供的字段始终优先于库中数据。
type SnapshotInput struct {
	OrgID          string              `json:"org_id" validate:"required,uuid"`
	Employees      []*model.Employee   `json:"employees,omitempty"`
	Shifts         []*model.Shift      `json:"shifts,omitempty"`
	Schedule       *model.Schedule     `json:"schedule,omitempty"`
	Assignments    []*model.Assignment `json:"assignments,omitempty"`
	OtherSchedules []*model.Schedule   `json:"other_schedules,omitempty"`
	Rules          []*model.Rule       `json:"rules,omitempty"`
}

// buildSnapshot 把内联上下文装配成检测快照
//
// 休息间隔检查需要相邻日期的分配, 从库装入时日期范围向两侧各扩一天。
func buildSnapshot(ctx context.Context, loader *repository.ContextLoader, in *SnapshotInput) (*conflict.Snapshot, error) {
	orgID, err := uuid.Parse(in.OrgID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "无效的组织ID格式")
	}

	var snap *conflict.Snapshot
	switch {
	case len(in.Employees) > 0:
		snap = conflict.NewSnapshot(orgID)
		snap.SetEmployees(in.Employees)
	case loader != nil:
		snap, err = loader.LoadContext(ctx, orgID, nil, contextWindow(in.Schedule))
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeDatabaseError, "装入排班上下文失败")
		}
	default:
		return nil, errors.New(errors.CodeInvalidInput, "未提供员工数据且未配置数据库")
	}

	if len(in.Shifts) > 0 {
		snap.SetShifts(in.Shifts)
	}
	if len(in.OtherSchedules) > 0 {
		snap.SetOtherSchedules(in.OtherSchedules)
	}
	if len(in.Rules) > 0 {
		snap.SetRules(in.Rules)
	}

	if in.Schedule != nil {
		snap.SetSchedule(in.Schedule)
	} else if len(in.Assignments) > 0 {
		snap.SetAssignments(in.Assignments)
	}

	return snap, nil
}

// contextWindow 由目标计划推出上下文装入的日期范围
func contextWindow(s *model.Schedule) model.DateRange {
	if s == nil {
		return model.DateRange{}
	}
	start, err := timeutil.ParseDate(s.StartDate)
	if err != nil {
		return model.DateRange{}
	}
	end, err := timeutil.ParseDate(s.EndDate)
	if err != nil {
		return model.DateRange{}
	}
	return model.DateRange{
		StartDate: timeutil.FormatDate(start.AddDate(0, 0, -1)),
		EndDate:   timeutil.FormatDate(end.AddDate(0, 0, 1)),
	}
}
