package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// LoaderFunc 从持久层加载某员工的全部规则
type LoaderFunc func(ctx context.Context, employeeID uuid.UUID) ([]*model.Rule, error)

// StoreConfig 规则缓存配置
type StoreConfig struct {
	Loader LoaderFunc
	Redis  *redis.Client // 可选的二级缓存
	TTL    time.Duration // 二级缓存过期时间

	// 每次访问后回调, 监控计数用
	OnAccess func(hit bool)
}

// DefaultTTL 二级缓存默认过期时间
const DefaultTTL = 10 * time.Minute

// Store 按员工缓存编译后的规则
//
// 读多写少。外层锁只保护条目表, 每个条目自带锁, 失效与重建只影响
// 单个员工, 不存在全局写锁。
type Store struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*storeEntry

	loader   LoaderFunc
	rdb      *redis.Client
	ttl      time.Duration
	onAccess func(hit bool)

	hits   atomic.Int64
	misses atomic.Int64
}

type storeEntry struct {
	mu       sync.RWMutex
	compiled *CompiledRules
}

// NewStore 创建规则缓存
func NewStore(cfg StoreConfig) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries:  make(map[uuid.UUID]*storeEntry),
		loader:   cfg.Loader,
		rdb:      cfg.Redis,
		ttl:      ttl,
		onAccess: cfg.OnAccess,
	}
}

// cacheKey 二级缓存键
func cacheKey(employeeID uuid.UUID) string {
	return fmt.Sprintf("rules:%s", employeeID)
}

// Get 返回某员工的编译规则, 按需加载
func (s *Store) Get(ctx context.Context, employeeID uuid.UUID) (*CompiledRules, error) {
	e := s.entry(employeeID)

	e.mu.RLock()
	compiled := e.compiled
	e.mu.RUnlock()
	if compiled != nil {
		s.record(true)
		return compiled, nil
	}
	s.record(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	// 等锁期间可能已被其他请求填充
	if e.compiled != nil {
		return e.compiled, nil
	}

	if c := s.fromRedis(ctx, employeeID); c != nil {
		e.compiled = c
		return c, nil
	}

	if s.loader == nil {
		c := Compile(employeeID, nil)
		e.compiled = c
		return c, nil
	}

	ruleList, err := s.loader(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("加载员工 %s 规则失败: %w", employeeID, err)
	}

	c := Compile(employeeID, ruleList)
	e.compiled = c
	s.toRedis(ctx, employeeID, c)
	return c, nil
}

// Prime 用给定规则直接填充某员工的缓存
//
// 调用方已经持有规则快照时使用, 跳过加载器。
func (s *Store) Prime(ctx context.Context, employeeID uuid.UUID, ruleList []*model.Rule) *CompiledRules {
	c := Compile(employeeID, ruleList)

	e := s.entry(employeeID)
	e.mu.Lock()
	e.compiled = c
	e.mu.Unlock()

	s.toRedis(ctx, employeeID, c)
	return c
}

// Invalidate 规则变更后使某员工的缓存失效
func (s *Store) Invalidate(ctx context.Context, employeeID uuid.UUID) {
	e := s.entry(employeeID)
	e.mu.Lock()
	e.compiled = nil
	e.mu.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Del(ctx, cacheKey(employeeID)).Err(); err != nil {
			logger.Warn().Err(err).Str("employee_id", employeeID.String()).Msg("二级缓存删除失败")
		}
	}
}

// Stats 返回缓存命中统计
func (s *Store) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func (s *Store) record(hit bool) {
	if hit {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	if s.onAccess != nil {
		s.onAccess(hit)
	}
}

// entry 取出或创建条目
func (s *Store) entry(employeeID uuid.UUID) *storeEntry {
	s.mu.RLock()
	e := s.entries[employeeID]
	s.mu.RUnlock()
	if e != nil {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e = s.entries[employeeID]; e == nil {
		e = &storeEntry{}
		s.entries[employeeID] = e
	}
	return e
}

// fromRedis 尝试从二级缓存恢复
func (s *Store) fromRedis(ctx context.Context, employeeID uuid.UUID) *CompiledRules {
	if s.rdb == nil {
		return nil
	}
	data, err := s.rdb.Get(ctx, cacheKey(employeeID)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn().Err(err).Str("employee_id", employeeID.String()).Msg("二级缓存读取失败")
		}
		return nil
	}

	var c CompiledRules
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		logger.Warn().Err(err).Str("employee_id", employeeID.String()).Msg("二级缓存数据损坏, 忽略")
		return nil
	}
	return &c
}

// toRedis 写入二级缓存, 失败只记日志不阻断
func (s *Store) toRedis(ctx context.Context, employeeID uuid.UUID, c *CompiledRules) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(employeeID), data, s.ttl).Err(); err != nil {
		logger.Warn().Err(err).Str("employee_id", employeeID.String()).Msg("二级缓存写入失败")
	}
}
