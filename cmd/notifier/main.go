// 排班事件通知进程
// 消费事件队列, 把计划发布与严重冲突事件渲染成邮件发出

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wneessen/go-mail"

	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/config"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/internal/events"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/logger"
	"github.com/TingTung93/AI-Schedule-Manager-sub010/pkg/model"
)

// incoming 队列消息, payload 按事件类型二次解码
type incoming struct {
	Type       string          `json:"type"`
	OrgID      uuid.UUID       `json:"org_id"`
	ScheduleID uuid.UUID       `json:"schedule_id"`
	Payload    json.RawMessage `json:"payload"`
}

// publishedView 计划发布邮件的模板数据
type publishedView struct {
	ScheduleID   string
	ScheduleName string
	StartDate    string
	EndDate      string
	Assignments  int
	FillRate     float64
	Warnings     int
}

// conflictsView 严重冲突邮件的模板数据
type conflictsView struct {
	ScheduleID string
	Count      int
	Conflicts  []*model.Conflict
}

const publishedTemplate = `<html>
<body>
<h2>排班计划已发布</h2>
<p>计划 <strong>{{.ScheduleName}}</strong>（{{.StartDate}} 至 {{.EndDate}}）已发布。</p>
<ul>
  <li>排班记录: {{.Assignments}} 条</li>
  <li>覆盖率: {{printf "%.1f" .FillRate}}%</li>
  <li>警告: {{.Warnings}} 条</li>
</ul>
<p>计划编号: {{.ScheduleID}}</p>
</body>
</html>`

const conflictsTemplate = `<html>
<body>
<h2>检测到严重排班冲突</h2>
<p>计划 {{.ScheduleID}} 存在 {{.Count}} 个严重冲突, 发布前必须处理。</p>
<table border="1" cellpadding="4" cellspacing="0">
  <tr><th>级别</th><th>日期</th><th>说明</th></tr>
  {{range .Conflicts}}
  <tr><td>{{.Severity}}</td><td>{{.Date}}</td><td>{{.Message}}</td></tr>
  {{end}}
</table>
</body>
</html>`

var (
	publishedTmpl = template.Must(template.New("published").Parse(publishedTemplate))
	conflictsTmpl = template.Must(template.New("conflicts").Parse(conflictsTemplate))
)

func main() {
	// 本地开发时从 .env 读取环境变量, 文件不存在则使用系统环境变量
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置加载失败: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
	})

	if !cfg.Email.Enabled {
		logger.Fatal().Msg("邮件通知未启用, 设置 EMAIL_ENABLED=true 后再启动")
	}
	if len(cfg.Email.To) == 0 {
		logger.Fatal().Msg("未配置收件人, 设置 EMAIL_TO 后再启动")
	}

	// ========================================
	// 邮件客户端
	// ========================================

	client, err := mail.NewClient(cfg.Email.SMTPHost,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithSSL(),
		mail.WithPort(cfg.Email.SMTPPort),
		mail.WithUsername(cfg.Email.Username),
		mail.WithPassword(cfg.Email.Password),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("无法创建邮件客户端")
	}
	defer client.Close()

	dialCtx, cancelDial := context.WithTimeout(context.Background(), cfg.Email.DialTimeout)
	defer cancelDial()
	if err := client.DialWithContext(dialCtx); err != nil {
		logger.Fatal().Err(err).Msg("无法连接到邮件服务器")
	}
	logger.Info().Str("host", cfg.Email.SMTPHost).Msg("邮件服务器已连接")

	// ========================================
	// 事件队列
	// ========================================

	conn, err := amqp.Dial(cfg.Events.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("无法连接到 RabbitMQ")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal().Err(err).Msg("无法创建通道")
	}
	defer ch.Close()

	// 与发布端声明保持一致, 先启动哪边都可以
	q, err := ch.QueueDeclare(
		cfg.Events.Queue, // 队列名称
		true,             // 持久化
		false,            // 不自动删除, 没有消费者时队列保留
		false,            // 非独占
		false,            // 等待 RabbitMQ 确认声明结果
		nil,              // 额外参数
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("无法声明队列")
	}

	msgs, err := ch.Consume(
		q.Name, // 队列
		"",     // 消费者标识由 RabbitMQ 分配
		false,  // 手动确认
		false,  // 非独占
		false,  // no-local, RabbitMQ 不支持, 必须为 false
		false,  // 等待 RabbitMQ 响应
		nil,    // 额外参数
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("无法消费消息")
	}

	// ========================================
	// 消费循环
	// ========================================

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Error().Msg("消息通道已关闭")
					return
				}
				handleMessage(cfg, client, msg)
			}
		}
	}()

	logger.Info().Str("queue", q.Name).Msg("等待事件...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("正在关闭 notifier...")
	cancel()
	wg.Wait()
	logger.Info().Msg("notifier 已关闭")
}

// handleMessage 解码一条事件并发送对应邮件
//
// 解码失败的消息直接丢弃, 发送失败的消息重新入队等待下次投递。
func handleMessage(cfg *config.Config, client *mail.Client, msg amqp.Delivery) {
	var evt incoming
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		logger.Error().Err(err).Msg("事件反序列化失败")
		_ = msg.Nack(false, false)
		return
	}

	m := mail.NewMsg()
	if err := m.From(cfg.Email.From); err != nil {
		logger.Error().Err(err).Msg("无法设置发件人")
		_ = msg.Nack(false, false)
		return
	}
	if err := m.To(cfg.Email.To...); err != nil {
		logger.Error().Err(err).Msg("无法设置收件人")
		_ = msg.Nack(false, false)
		return
	}

	switch evt.Type {
	case events.TypeSchedulePublished:
		var p events.PublishedPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			logger.Error().Err(err).Msg("发布事件内容解码失败")
			_ = msg.Nack(false, false)
			return
		}
		view := publishedView{
			ScheduleID:   evt.ScheduleID.String(),
			ScheduleName: p.ScheduleName,
			StartDate:    p.StartDate,
			EndDate:      p.EndDate,
			Assignments:  p.Assignments,
			FillRate:     p.FillRate,
			Warnings:     p.Warnings,
		}
		if err := m.SetBodyHTMLTemplate(publishedTmpl, view); err != nil {
			logger.Error().Err(err).Msg("无法渲染邮件正文")
			_ = msg.Nack(false, false)
			return
		}
		m.Subject(fmt.Sprintf("排班计划已发布: %s", p.ScheduleName))

	case events.TypeCriticalConflicts:
		var p events.ConflictsPayload
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			logger.Error().Err(err).Msg("冲突事件内容解码失败")
			_ = msg.Nack(false, false)
			return
		}
		view := conflictsView{
			ScheduleID: evt.ScheduleID.String(),
			Count:      p.Count,
			Conflicts:  p.Conflicts,
		}
		if err := m.SetBodyHTMLTemplate(conflictsTmpl, view); err != nil {
			logger.Error().Err(err).Msg("无法渲染邮件正文")
			_ = msg.Nack(false, false)
			return
		}
		m.Subject(fmt.Sprintf("排班告警: %d 个严重冲突待处理", p.Count))

	default:
		logger.Error().Str("type", evt.Type).Msg("不支持的事件类型")
		_ = msg.Nack(false, false)
		return
	}

	if err := client.DialAndSend(m); err != nil {
		logger.Error().Err(err).Msg("邮件发送失败")
		_ = msg.Nack(false, true) // 重新入队
		return
	}

	logger.Info().
		Str("type", evt.Type).
		Str("schedule_id", evt.ScheduleID.String()).
		Msg("通知邮件已发送")
	_ = msg.Ack(false)
}
