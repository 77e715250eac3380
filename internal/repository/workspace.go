// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/workspace"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
)

// WorkspaceRepository 工作区仓储
type WorkspaceRepository struct {
	db DB
}

// NewWorkspaceRepository 创建工作区仓储
func NewWorkspaceRepository(db DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

// Create 创建工作区
func (r *WorkspaceRepository) Create(ctx context.Context, ws *workspace.Workspace) error {
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	ws.CreatedAt = time.Now()

	settingsJSON, err := json.Marshal(ws.Settings)
	if err != nil {
		return fmt.Errorf("序列化工作区配置失败: %w", err)
	}

	query := `
		INSERT INTO workspaces (id, code, name, status, settings, created_at, expired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		ws.ID, ws.Code, ws.Name, ws.Status, settingsJSON, ws.CreatedAt, ws.ExpiredAt,
	)
	if err != nil {
		return fmt.Errorf("创建工作区失败: %w", err)
	}

	return nil
}

// GetByID 根据 ID 获取工作区
func (r *WorkspaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*workspace.Workspace, error) {
	query := `
		SELECT id, code, name, status, settings, created_at, expired_at
		FROM workspaces
		WHERE id = $1 AND deleted_at IS NULL
	`

	return scanWorkspace(r.db.QueryRowContext(ctx, query, id))
}

// GetByCode 根据编码获取工作区
func (r *WorkspaceRepository) GetByCode(ctx context.Context, code string) (*workspace.Workspace, error) {
	query := `
		SELECT id, code, name, status, settings, created_at, expired_at
		FROM workspaces
		WHERE code = $1 AND deleted_at IS NULL
	`

	return scanWorkspace(r.db.QueryRowContext(ctx, query, code))
}

// Update 更新工作区
func (r *WorkspaceRepository) Update(ctx context.Context, ws *workspace.Workspace) error {
	settingsJSON, err := json.Marshal(ws.Settings)
	if err != nil {
		return fmt.Errorf("序列化工作区配置失败: %w", err)
	}

	query := `
		UPDATE workspaces
		SET code = $2, name = $3, status = $4, settings = $5, expired_at = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		ws.ID, ws.Code, ws.Name, ws.Status, settingsJSON, ws.ExpiredAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("更新工作区失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("工作区", ws.ID.String())
	}

	return nil
}

// Delete 软删除工作区
func (r *WorkspaceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE workspaces SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("删除工作区失败: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.NotFound("工作区", id.String())
	}

	return nil
}

// ListAll 加载全部工作区, 服务启动时填充注册表
func (r *WorkspaceRepository) ListAll(ctx context.Context) ([]*workspace.Workspace, error) {
	query := `
		SELECT id, code, name, status, settings, created_at, expired_at
		FROM workspaces
		WHERE deleted_at IS NULL
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询工作区列表失败: %w", err)
	}
	defer rows.Close()

	var workspaces []*workspace.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, nil
}

// Search 按名称或编码模糊查询工作区
func (r *WorkspaceRepository) Search(ctx context.Context, filter ListFilter) ([]*workspace.Workspace, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	conditions = append(conditions, "deleted_at IS NULL")

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+filter.Search+"%")
		argIndex++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, filter.Status)
		argIndex++
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM workspaces WHERE %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("统计工作区数量失败: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, code, name, status, settings, created_at, expired_at
		FROM workspaces
		WHERE %s
		ORDER BY created_at
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询工作区列表失败: %w", err)
	}
	defer rows.Close()

	var workspaces []*workspace.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, 0, err
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, total, nil
}

// scanWorkspace 扫描单行工作区
func scanWorkspace(s Scanner) (*workspace.Workspace, error) {
	ws := &workspace.Workspace{}
	var settingsJSON []byte
	var expiredAt sql.NullTime

	err := s.Scan(&ws.ID, &ws.Code, &ws.Name, &ws.Status, &settingsJSON, &ws.CreatedAt, &expiredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("扫描工作区失败: %w", err)
	}

	if expiredAt.Valid {
		ws.ExpiredAt = &expiredAt.Time
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &ws.Settings); err != nil {
			return nil, fmt.Errorf("解析工作区配置失败: %w", err)
		}
	}

	return ws, nil
}
