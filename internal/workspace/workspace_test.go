package workspace

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestWorkspace_IsActive(t *testing.T) {
	now := time.Now()
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		workspace *Workspace
		expected  bool
	}{
		{
			name:      "活跃工作区",
			workspace: &Workspace{Status: "active"},
			expected:  true,
		},
		{
			name:      "暂停工作区",
			workspace: &Workspace{Status: "suspended"},
			expected:  false,
		},
		{
			name:      "未过期工作区",
			workspace: &Workspace{Status: "active", ExpiredAt: &future},
			expected:  true,
		},
		{
			name:      "已过期工作区",
			workspace: &Workspace{Status: "active", ExpiredAt: &past},
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.workspace.IsActive(); result != tt.expected {
				t.Errorf("IsActive() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestWorkspace_HasFeature(t *testing.T) {
	ws := &Workspace{
		Settings: WorkspaceSettings{
			Features: []string{"rules", "generate"},
		},
	}

	if !ws.HasFeature("rules") {
		t.Error("应有rules功能")
	}
	if !ws.HasFeature("generate") {
		t.Error("应有generate功能")
	}
	if ws.HasFeature("optimize") {
		t.Error("不应有optimize功能")
	}

	// 测试通配符
	ws2 := &Workspace{
		Settings: WorkspaceSettings{
			Features: []string{"*"},
		},
	}
	if !ws2.HasFeature("anything") {
		t.Error("通配符应匹配任何功能")
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	ws := &Workspace{
		ID:     uuid.New(),
		Code:   "test",
		Name:   "测试工作区",
		Status: "active",
	}

	// 注册
	err := registry.Register(ws)
	if err != nil {
		t.Errorf("Register failed: %v", err)
	}

	// 获取
	got, err := registry.Get("test")
	if err != nil {
		t.Errorf("Get failed: %v", err)
	}
	if got.Code != "test" {
		t.Errorf("Got wrong workspace: %v", got)
	}

	// 获取不存在的
	_, err = registry.Get("nonexistent")
	if err != ErrWorkspaceNotFound {
		t.Errorf("Expected ErrWorkspaceNotFound, got: %v", err)
	}
}

func TestRegistry_DisabledWorkspace(t *testing.T) {
	registry := NewRegistry()

	registry.Register(&Workspace{
		ID:     uuid.New(),
		Code:   "suspended",
		Status: "suspended",
	})

	_, err := registry.Get("suspended")
	if err != ErrWorkspaceDisabled {
		t.Errorf("Expected ErrWorkspaceDisabled, got: %v", err)
	}
}

func TestRegistry_GetByID(t *testing.T) {
	registry := NewRegistry()
	id := uuid.New()

	ws := &Workspace{
		ID:     id,
		Code:   "test",
		Status: "active",
	}
	registry.Register(ws)

	got, err := registry.GetByID(id)
	if err != nil {
		t.Errorf("GetByID failed: %v", err)
	}
	if got.ID != id {
		t.Errorf("Got wrong workspace")
	}
}

func TestWorkspaceContext(t *testing.T) {
	ws := &Workspace{Code: "test"}
	ctx := WithWorkspace(context.Background(), ws)

	got, ok := FromContext(ctx)
	if !ok {
		t.Error("FromContext should return true")
	}
	if got.Code != "test" {
		t.Error("Got wrong workspace from context")
	}

	// 空上下文
	_, ok = FromContext(context.Background())
	if ok {
		t.Error("Empty context should return false")
	}
}

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if settings.MaxEmployees != 100 {
		t.Errorf("Expected MaxEmployees=100, got %d", settings.MaxEmployees)
	}
	if settings.DefaultMaxHours != 40 {
		t.Errorf("Expected DefaultMaxHours=40, got %v", settings.DefaultMaxHours)
	}
	if settings.DefaultMinRest != 11 {
		t.Errorf("Expected DefaultMinRest=11, got %v", settings.DefaultMinRest)
	}
}

func TestNewDevWorkspace(t *testing.T) {
	ws := NewDevWorkspace()

	if ws.Code != "default" {
		t.Errorf("Expected code='default', got %s", ws.Code)
	}
	if ws.Status != "active" {
		t.Errorf("Expected status='active', got %s", ws.Status)
	}
	if !ws.HasFeature("generate") {
		t.Error("默认工作区应启用generate功能")
	}
}
