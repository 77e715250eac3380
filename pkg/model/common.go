// Package model 定义排班约束引擎的核心数据模型
package model

import (
	"time"

	"github.com/google/uuid"
)

// BaseModel 基础模型（包含通用字段）
type BaseModel struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"-" db:"deleted_at"`
}

// NewBaseModel 创建新的基础模型
func NewBaseModel() BaseModel {
	now := time.Now()
	return BaseModel{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Organization 组织/机构
type Organization struct {
	BaseModel
	Name     string  `json:"name" db:"name"`
	Code     string  `json:"code" db:"code"`
	Status   string  `json:"status" db:"status"` // active/suspended
	Settings JSONMap `json:"settings" db:"settings"`
}

// JSONMap 用于存储 JSONB 数据
type JSONMap map[string]interface{}

// TimeSpan 绝对时间区间
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hours 返回区间时长（小时）
func (ts TimeSpan) Hours() float64 {
	return ts.End.Sub(ts.Start).Hours()
}

// Overlaps 检查两个区间是否重叠, 共享边界不算重叠
func (ts TimeSpan) Overlaps(other TimeSpan) bool {
	return ts.Start.Before(other.End) && other.Start.Before(ts.End)
}

// DateRange 日期范围
type DateRange struct {
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`   // YYYY-MM-DD
}

// Contains 检查日期是否落在范围内（含端点）
func (dr DateRange) Contains(date string) bool {
	if dr.StartDate != "" && date < dr.StartDate {
		return false
	}
	if dr.EndDate != "" && date > dr.EndDate {
		return false
	}
	return true
}
