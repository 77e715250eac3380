// Package events 把排班领域事件发布到消息队列
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/config"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// 事件类型
const (
	TypeSchedulePublished = "schedule_published"
	TypeCriticalConflicts = "critical_conflicts_detected"
)

// Message 队列消息
type Message struct {
	Type       string      `json:"type"`
	OrgID      uuid.UUID   `json:"org_id"`
	ScheduleID uuid.UUID   `json:"schedule_id"`
	Payload    interface{} `json:"payload,omitempty"`
}

// PublishedPayload 计划发布事件内容
type PublishedPayload struct {
	ScheduleName string  `json:"schedule_name"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Assignments  int     `json:"assignments"`
	FillRate     float64 `json:"fill_rate"`
	Warnings     int     `json:"warnings"`
}

// ConflictsPayload 严重冲突事件内容
type ConflictsPayload struct {
	Count     int               `json:"count"`
	Conflicts []*model.Conflict `json:"conflicts"`
}

// Publisher 事件发布器
//
// nil 接收者上的方法调用是安全的空操作, 事件未启用时传 nil 即可。
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	timeout time.Duration
}

// NewPublisher 连接 RabbitMQ 并声明持久化队列
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到 RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建通道: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.Queue, // 队列名称
		true,      // 持久化
		false,     // 不自动删除, 没有消费者时队列保留
		false,     // 非独占
		false,     // 等待 RabbitMQ 确认声明结果
		nil,       // 额外参数
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("无法声明队列: %w", err)
	}

	logger.Info().Str("queue", q.Name).Msg("事件队列就绪")

	return &Publisher{
		conn:    conn,
		channel: ch,
		queue:   q.Name,
		timeout: cfg.PublishTimeout,
	}, nil
}

// Close 关闭通道与连接
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Publish 发布一条事件消息
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("事件序列化失败: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.channel.PublishWithContext(
		pctx,
		"",      // 默认交换机
		p.queue, // 路由键即队列名
		true,    // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("事件发布失败: %w", err)
	}

	logger.Debug().
		Str("type", msg.Type).
		Str("schedule_id", msg.ScheduleID.String()).
		Msg("事件已发布")
	return nil
}

// SchedulePublished 发布计划发布事件
func (p *Publisher) SchedulePublished(ctx context.Context, orgID, scheduleID uuid.UUID, payload PublishedPayload) error {
	return p.Publish(ctx, Message{
		Type:       TypeSchedulePublished,
		OrgID:      orgID,
		ScheduleID: scheduleID,
		Payload:    payload,
	})
}

// CriticalConflicts 发布严重冲突事件
func (p *Publisher) CriticalConflicts(ctx context.Context, orgID, scheduleID uuid.UUID, conflicts []*model.Conflict) error {
	return p.Publish(ctx, Message{
		Type:       TypeCriticalConflicts,
		OrgID:      orgID,
		ScheduleID: scheduleID,
		Payload:    ConflictsPayload{Count: len(conflicts), Conflicts: conflicts},
	})
}
