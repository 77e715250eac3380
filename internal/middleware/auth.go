// Package middleware 提供HTTP中间件
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/security"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/workspace"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/errors"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
)

// AuthConfig 认证配置
type AuthConfig struct {
	KeyManager      *security.APIKeyManager
	Workspaces      *workspace.Registry
	RateLimiter     *security.RateLimiter
	SkipPaths       []string // 跳过认证的路径
	EnableRateLimit bool
}

// Auth 认证中间件, 把 API 密钥解析成工作区并写入上下文
func Auth(config *AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 检查是否跳过认证
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// 提取API密钥
			apiKey := security.ExtractAPIKey(r)
			if apiKey == "" {
				writeJSONError(w, http.StatusUnauthorized, errors.CodeUnauthorized, "API密钥未提供")
				return
			}

			// 验证API密钥
			key, err := config.KeyManager.Validate(apiKey)
			if err != nil {
				logger.Warn().Str("key", truncateKey(apiKey)).Err(err).Msg("API密钥验证失败")
				writeJSONError(w, http.StatusUnauthorized, errors.CodeUnauthorized, "无效的API密钥")
				return
			}

			// 解析工作区
			ws, err := config.Workspaces.Get(key.WorkspaceCode)
			if err != nil {
				writeJSONError(w, http.StatusForbidden, errors.CodeForbidden, "工作区不可用")
				return
			}

			// 检查频率限制, 按工作区分桶
			if config.EnableRateLimit && config.RateLimiter != nil {
				if !config.RateLimiter.AllowRate(ws.Code, float64(ws.Settings.APIRateLimit)) {
					writeJSONError(w, http.StatusTooManyRequests, errors.CodeRateLimited, "请求频率超限")
					return
				}
			}

			// 将工作区写入上下文
			ctx := workspace.WithWorkspace(r.Context(), ws)
			r = r.WithContext(ctx)

			w.Header().Set("X-Workspace-ID", ws.ID.String())

			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope 权限范围检查中间件, 在认证之后使用
func RequireScope(scope string, keyManager *security.APIKeyManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey := security.ExtractAPIKey(r)
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			key, err := keyManager.Validate(apiKey)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, errors.CodeUnauthorized, "无效的API密钥")
				return
			}

			if !key.HasScope(scope) {
				writeJSONError(w, http.StatusForbidden, errors.CodeForbidden, "权限不足")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError 输出与 handler 层一致的错误信封
func writeJSONError(w http.ResponseWriter, status int, code errors.Code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"success":false,"error":{"code":%q,"message":%q}}`, string(code), message)
}

// truncateKey 日志中只露出密钥前缀
func truncateKey(key string) string {
	if len(key) <= 10 {
		return key
	}
	return key[:10] + "..."
}
