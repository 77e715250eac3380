// 排班约束与冲突引擎服务
// 主程序入口

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/config"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/database"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/events"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/handler"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/metrics"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/middleware"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/repository"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/security"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/workspace"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/conflict"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/rules"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 本地开发时从 .env 读取环境变量, 文件不存在则使用系统环境变量
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
	})

	// 打印版本信息
	fmt.Printf("%s v%s\n", cfg.App.Name, Version)
	fmt.Printf("Build: %s (%s)\n", BuildTime, GitCommit)
	fmt.Println()

	// ========================================
	// 基础设施
	// ========================================

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.New(&cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("数据库连接失败")
		}
		defer db.Close()
		logger.Info().
			Str("host", cfg.Database.Host).
			Str("database", cfg.Database.Name).
			Msg("数据库已连接")
	} else {
		logger.Info().Msg("数据库未配置, 以无状态引擎模式运行")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis 连接失败, 规则缓存只使用进程内存")
			rdb = nil
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis 已连接")
		}
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher, err = events.NewPublisher(cfg.Events)
		if err != nil {
			logger.Warn().Err(err).Msg("事件队列连接失败, 发布通知不可用")
		} else {
			defer publisher.Close()
		}
	}

	// ========================================
	// 仓储与规则缓存
	// ========================================

	var (
		ruleRepo  *repository.RuleRepository
		empRepo   *repository.EmployeeRepository
		schedRepo *repository.ScheduleRepository
		loader    *repository.ContextLoader
		store     *rules.Store
	)
	if db != nil {
		ruleRepo = repository.NewRuleRepository(db)
		empRepo = repository.NewEmployeeRepository(db)
		schedRepo = repository.NewScheduleRepository(db)

		// 编译规则按员工缓存, Redis 可用时作为二级缓存
		store = rules.NewStore(rules.StoreConfig{
			Loader: func(ctx context.Context, employeeID uuid.UUID) ([]*model.Rule, error) {
				emp, err := empRepo.GetByID(ctx, employeeID)
				if err != nil || emp == nil {
					return nil, err
				}
				return ruleRepo.ListForEmployee(ctx, emp.OrgID, emp)
			},
			Redis:    rdb,
			TTL:      cfg.Engine.RuleCacheTTL,
			OnAccess: metrics.RecordCacheAccess,
		})
		loader = repository.NewContextLoader(db).WithRuleStore(store)
	}

	// ========================================
	// 引擎与处理器
	// ========================================

	detector := conflict.NewDetector(conflict.Config{})

	engineDefaults := handler.EngineDefaults{
		GenerateTimeout: cfg.Engine.GenerateTimeout,
		MaxIterations:   cfg.Engine.MaxIterations,
		BacktrackDepth:  cfg.Engine.BacktrackDepth,
		MaxSuggestions:  cfg.Engine.MaxSuggestions,
		Optimize:        cfg.Engine.Optimize,
		OptimizeTime:    cfg.Engine.OptimizeTime,
	}

	ruleHandler := handler.NewRuleHandler(ruleRepo, empRepo, store)
	scheduleHandler := handler.NewScheduleHandler(detector, loader, schedRepo, publisher).
		WithDefaults(engineDefaults)
	suggestHandler := handler.NewSuggestHandler(detector, loader).
		WithMaxSuggestions(cfg.Engine.MaxSuggestions)
	statsHandler := handler.NewStatsHandler()

	// ========================================
	// 工作区与认证
	// ========================================

	registry := workspace.NewRegistry()
	keyManager := security.NewAPIKeyManager()

	devWS := workspace.NewDevWorkspace()
	if err := registry.Register(devWS); err != nil {
		logger.Fatal().Err(err).Msg("注册默认工作区失败")
	}
	if cfg.IsDevelopment() {
		key, err := keyManager.GenerateKey(devWS.Code, "dev", []string{
			security.ScopeRulesRead, security.ScopeRulesWrite,
			security.ScopeScheduleValidate, security.ScopeScheduleGenerate,
			security.ScopeScheduleCommit, security.ScopeSchedulePublish,
			security.ScopeSuggest, security.ScopeStats,
		}, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("生成开发密钥失败")
		}
		logger.Info().Str("api_key", key.Key).Msg("开发模式 API 密钥已生成")
	}

	// ========================================
	// 路由注册
	// ========================================

	mux := http.NewServeMux()

	// scoped 给处理函数附加权限范围检查
	scoped := func(scope string, fn http.HandlerFunc) http.Handler {
		return middleware.RequireScope(scope, keyManager)(fn)
	}

	// 健康检查端点
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"status":  "ok",
			"service": cfg.App.Name,
		}
		code := http.StatusOK
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				status["status"] = "degraded"
				status["database"] = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				status["database"] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	// 版本信息端点
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"version":"%s","build_time":"%s","git_commit":"%s"}`, Version, BuildTime, GitCommit)
	})

	// ========================================
	// API v1 端点
	// ========================================

	// API 根路由
	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"service": cfg.App.Name,
			"version": Version,
			"endpoints": map[string]string{
				"POST /api/v1/rules/parse":            "解析自然语言规则",
				"POST /api/v1/rules":                  "创建规则",
				"GET /api/v1/rules":                   "规则列表",
				"GET /api/v1/rules/templates":         "规则模板",
				"GET /api/v1/rules/{id}":              "规则详情",
				"POST /api/v1/rules/{id}/confirm":     "确认规则",
				"POST /api/v1/rules/{id}/version":     "创建规则新版本",
				"DELETE /api/v1/rules/{id}":           "停用规则",
				"POST /api/v1/schedule/validate":      "校验排班冲突",
				"POST /api/v1/schedule/generate":      "生成排班",
				"POST /api/v1/assignments/commit":     "确认排班记录",
				"POST /api/v1/schedules/{id}/publish": "发布排班计划",
				"POST /api/v1/suggest":                "冲突调整建议",
				"POST /api/v1/suggest/reassign":       "改派可行性评估",
				"POST /api/v1/suggest/swap":           "换班评估与候选推荐",
				"POST /api/v1/stats/fairness":         "公平性统计",
				"POST /api/v1/stats/coverage":         "覆盖率统计",
				"POST /api/v1/stats/workload":         "工作量统计",
			},
		})
	})

	// 规则管理 API
	mux.Handle("POST /api/v1/rules/parse", scoped(security.ScopeRulesRead, ruleHandler.Parse))
	mux.Handle("POST /api/v1/rules", scoped(security.ScopeRulesWrite, ruleHandler.Create))
	mux.Handle("GET /api/v1/rules", scoped(security.ScopeRulesRead, ruleHandler.List))
	mux.Handle("GET /api/v1/rules/templates", scoped(security.ScopeRulesRead, ruleHandler.Templates))
	mux.Handle("GET /api/v1/rules/{id}", scoped(security.ScopeRulesRead, ruleHandler.Get))
	mux.Handle("POST /api/v1/rules/{id}/confirm", scoped(security.ScopeRulesWrite, ruleHandler.Confirm))
	mux.Handle("POST /api/v1/rules/{id}/version", scoped(security.ScopeRulesWrite, ruleHandler.NewVersion))
	mux.Handle("DELETE /api/v1/rules/{id}", scoped(security.ScopeRulesWrite, ruleHandler.Delete))

	// 排班校验与生成 API
	mux.Handle("POST /api/v1/schedule/validate", scoped(security.ScopeScheduleValidate, scheduleHandler.Validate))
	mux.Handle("POST /api/v1/schedule/generate", scoped(security.ScopeScheduleGenerate, scheduleHandler.Generate))

	// 提交与发布 API
	mux.Handle("POST /api/v1/assignments/commit", scoped(security.ScopeScheduleCommit, scheduleHandler.Commit))
	mux.Handle("POST /api/v1/schedules/{id}/publish", scoped(security.ScopeSchedulePublish, scheduleHandler.Publish))

	// 调整建议 API
	mux.Handle("POST /api/v1/suggest", scoped(security.ScopeSuggest, suggestHandler.Suggest))
	mux.Handle("POST /api/v1/suggest/reassign", scoped(security.ScopeSuggest, suggestHandler.Reassign))
	mux.Handle("POST /api/v1/suggest/swap", scoped(security.ScopeSuggest, suggestHandler.Swap))

	// 统计分析 API
	mux.Handle("POST /api/v1/stats/fairness", scoped(security.ScopeStats, statsHandler.Fairness))
	mux.Handle("POST /api/v1/stats/coverage", scoped(security.ScopeStats, statsHandler.Coverage))
	mux.Handle("POST /api/v1/stats/workload", scoped(security.ScopeStats, statsHandler.Workload))

	// ========================================
	// 监控端点
	// ========================================

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, metrics.Handler())
	}

	// ========================================
	// 中间件
	// ========================================

	limiter := security.NewRateLimiter(float64(cfg.API.RateLimit))

	authCfg := &middleware.AuthConfig{
		KeyManager:      keyManager,
		Workspaces:      registry,
		RateLimiter:     limiter,
		SkipPaths:       []string{"/health", "/version", cfg.Metrics.Path},
		EnableRateLimit: cfg.API.RateLimit > 0,
	}

	// 自外向内: 请求标识, 恢复, 安全头, 限流, 跨域, 日志, 认证
	var root http.Handler = mux
	root = middleware.Auth(authCfg)(root)
	root = middleware.Logging(root)
	if cfg.API.CORS.Enabled {
		root = middleware.CORS(cfg.API.CORS.Origins)(root)
	}
	root = middleware.RateLimit(limiter)(root)
	root = middleware.SecurityHeaders(root)
	root = middleware.Recovery(root)
	root = middleware.RequestID(root)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 启动服务器（非阻塞）
	go func() {
		logger.Info().
			Int("port", cfg.App.Port).
			Str("version", Version).
			Str("env", cfg.App.Env).
			Str("url", fmt.Sprintf("http://localhost:%d", cfg.App.Port)).
			Str("api_docs", fmt.Sprintf("http://localhost:%d/api/v1/", cfg.App.Port)).
			Msg("服务器启动")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("服务器启动失败")
			os.Exit(1)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
		os.Exit(1)
	}

	logger.Info().Msg("服务器已关闭")
}
