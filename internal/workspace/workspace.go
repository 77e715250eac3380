// Package workspace 提供工作区隔离支持
//
// 工作区是规则与排班数据的隔离边界, 模型中的 org_id 即工作区 ID。
package workspace

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

var (
	ErrWorkspaceNotFound = errors.New("工作区不存在")
	ErrInvalidWorkspace  = errors.New("无效的工作区")
	ErrWorkspaceDisabled = errors.New("工作区已禁用")
)

// Workspace 工作区
type Workspace struct {
	ID        uuid.UUID         `json:"id"`
	Code      string            `json:"code"`   // 工作区编码
	Name      string            `json:"name"`   // 工作区名称
	Status    string            `json:"status"` // active/suspended/expired
	Settings  WorkspaceSettings `json:"settings"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiredAt *time.Time        `json:"expired_at,omitempty"`
}

// WorkspaceSettings 工作区配置
type WorkspaceSettings struct {
	MaxEmployees    int         `json:"max_employees"`                // 最大员工数
	DefaultMaxHours float64     `json:"default_max_hours"`            // 默认周工时上限
	DefaultMinRest  float64     `json:"default_min_rest"`             // 默认最小休息小时数
	Features        []string    `json:"features"`                     // 启用的功能
	APIRateLimit    int         `json:"api_rate_limit"`               // API 速率限制
	DataRetention   int         `json:"data_retention_days"`          // 数据保留天数
	MinStaffPerHour map[int]int `json:"min_staff_per_hour,omitempty"` // 时段最低人数要求
}

// IsActive 检查工作区是否活跃
func (w *Workspace) IsActive() bool {
	if w.Status != "active" {
		return false
	}
	if w.ExpiredAt != nil && w.ExpiredAt.Before(time.Now()) {
		return false
	}
	return true
}

// HasFeature 检查工作区是否启用某功能
func (w *Workspace) HasFeature(feature string) bool {
	for _, f := range w.Settings.Features {
		if f == feature || f == "*" {
			return true
		}
	}
	return false
}

// Registry 工作区注册表
type Registry struct {
	workspaces map[string]*Workspace // code -> workspace
	mu         sync.RWMutex
}

// NewRegistry 创建工作区注册表
func NewRegistry() *Registry {
	return &Registry{
		workspaces: make(map[string]*Workspace),
	}
}

// Register 注册工作区
func (r *Registry) Register(ws *Workspace) error {
	if ws == nil || ws.Code == "" {
		return ErrInvalidWorkspace
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.workspaces[ws.Code] = ws
	return nil
}

// Get 获取工作区
func (r *Registry) Get(code string) (*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, exists := r.workspaces[code]
	if !exists {
		return nil, ErrWorkspaceNotFound
	}

	if !ws.IsActive() {
		return nil, ErrWorkspaceDisabled
	}

	return ws, nil
}

// GetByID 通过 ID 获取工作区
func (r *Registry) GetByID(id uuid.UUID) (*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ws := range r.workspaces {
		if ws.ID == id {
			if !ws.IsActive() {
				return nil, ErrWorkspaceDisabled
			}
			return ws, nil
		}
	}

	return nil, ErrWorkspaceNotFound
}

// List 列出所有工作区
func (r *Registry) List() []*Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Workspace, 0, len(r.workspaces))
	for _, w := range r.workspaces {
		result = append(result, w)
	}
	return result
}

// Remove 移除工作区
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workspaces, code)
}

// workspaceContextKey 工作区上下文键
type workspaceContextKey struct{}

// WithWorkspace 将工作区写入上下文
func WithWorkspace(ctx context.Context, ws *Workspace) context.Context {
	return context.WithValue(ctx, workspaceContextKey{}, ws)
}

// FromContext 从上下文获取工作区
func FromContext(ctx context.Context) (*Workspace, bool) {
	ws, ok := ctx.Value(workspaceContextKey{}).(*Workspace)
	return ws, ok
}

// DefaultSettings 默认工作区配置
func DefaultSettings() WorkspaceSettings {
	return WorkspaceSettings{
		MaxEmployees:    100,
		DefaultMaxHours: model.DefaultMaxHoursPerWeek,
		DefaultMinRest:  model.DefaultMinRestHours,
		Features:        []string{"rules", "validate", "generate", "suggest", "stats"},
		APIRateLimit:    100,
		DataRetention:   365,
	}
}

// NewDevWorkspace 创建默认工作区（开发测试用）
func NewDevWorkspace() *Workspace {
	return &Workspace{
		ID:        uuid.New(),
		Code:      "default",
		Name:      "默认工作区",
		Status:    "active",
		Settings:  DefaultSettings(),
		CreatedAt: time.Now(),
	}
}
