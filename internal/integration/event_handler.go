package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/model"
	"github.com/mautops/project-approval/internal/repository"
	"github.com/mautops/project-approval/pkg/project"
	"github.com/mautops/project-approval/pkg/types"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 工作流事件类型
const (
	EventProjectCreated        = "project.created"
	EventLevelApproved         = "project.level_approved"
	EventProjectApproved       = "project.approved"
	EventProjectRejected       = "project.rejected"
	EventProjectResubmitted    = "project.resubmitted"
	EventProjectCancelled      = "project.cancelled"
	EventImplementationStarted = "project.implementation_started"
	EventProjectCompleted      = "project.completed"
	EventDocumentSubmitted     = "project.document_submitted"
)

var actionEvents = map[string]string{
	types.ActionProjectCreated:        EventProjectCreated,
	types.ActionProjectAutoApproved:   EventProjectApproved,
	types.ActionLevelApproved:         EventLevelApproved,
	types.ActionProjectApproved:       EventProjectApproved,
	types.ActionProjectRejected:       EventProjectRejected,
	types.ActionProjectResubmitted:    EventProjectResubmitted,
	types.ActionProjectCancelled:      EventProjectCancelled,
	types.ActionImplementationStarted: EventImplementationStarted,
	types.ActionProjectCompleted:      EventProjectCompleted,
	types.ActionDocumentSubmitted:     EventDocumentSubmitted,
}

// EventTypeForAction 工作流动作对应的事件类型
func EventTypeForAction(action string) string {
	if t, ok := actionEvents[action]; ok {
		return t
	}
	return "project." + action
}

// Event 工作流事件,推送给外部通知服务
type Event struct {
	ID        string              `json:"id"`
	Type      string              `json:"type"`
	ProjectID string              `json:"projectId"`
	Level     types.Level         `json:"level,omitempty"`
	From      types.ProjectStatus `json:"from,omitempty"`
	To        types.ProjectStatus `json:"to"`
	ActorID   string              `json:"actorId"`
	Project   *project.Project    `json:"project"`
	Time      time.Time           `json:"time"`
}

// EventHandler 事件处理器
type EventHandler interface {
	// Handle 持久化事件并异步推送
	Handle(evt *Event) error
	// Dispatch 推送已持久化的事件(事务提交后调用)
	Dispatch(em *model.EventModel)
	// Redeliver 重新推送未完成的事件
	Redeliver(ctx context.Context) (int, error)
	// SetWebhooks 替换 Webhook 配置
	SetWebhooks(webhooks []config.WebhookConfig)
	Stop()
}

// NewEventModel 将事件序列化为发件箱记录
func NewEventModel(evt *Event) (*model.EventModel, error) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &model.EventModel{
		ID:        evt.ID,
		ProjectID: evt.ProjectID,
		Type:      evt.Type,
		Data:      data,
		Status:    model.EventStatusPending,
		CreatedAt: evt.Time,
		UpdatedAt: evt.Time,
	}, nil
}

// LiveFeed 实时事件订阅方,事务提交后收到事件,不保证送达
type LiveFeed interface {
	Publish(projectID, eventType string, data []byte)
}

// EventHandlerOptions 事件处理器参数
type EventHandlerOptions struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	Backoff    time.Duration // 首次重试间隔,之后指数增长
	Timeout    time.Duration
	Webhooks   []config.WebhookConfig
	Live       LiveFeed
}

// dbEventHandler 基于数据库发件箱的事件处理器
type dbEventHandler struct {
	eventRepo  repository.EventRepository
	httpClient *http.Client
	logger     logrus.FieldLogger
	queue      chan *model.EventModel
	maxRetries int
	backoff    time.Duration
	live       LiveFeed

	mu       sync.RWMutex
	webhooks []config.WebhookConfig

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEventHandler 创建事件处理器
func NewEventHandler(db *gorm.DB, opts EventHandlerOptions, logger logrus.FieldLogger) EventHandler {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1000
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	handler := &dbEventHandler{
		eventRepo:  repository.NewEventRepository(db),
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     logger.WithField("component", "event_handler"),
		queue:      make(chan *model.EventModel, opts.QueueSize),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		live:       opts.Live,
		webhooks:   opts.Webhooks,
		stop:       make(chan struct{}),
	}

	// 启动 worker goroutines
	for i := 0; i < opts.Workers; i++ {
		handler.wg.Add(1)
		go handler.worker()
	}

	return handler
}

// Handle 处理事件
func (h *dbEventHandler) Handle(evt *Event) error {
	em, err := NewEventModel(evt)
	if err != nil {
		return err
	}
	if err := h.eventRepo.Save(em); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	h.Dispatch(em)
	return nil
}

// Dispatch 事件入队,队列满时保留 pending 状态等待重新推送
func (h *dbEventHandler) Dispatch(em *model.EventModel) {
	if h.live != nil {
		h.live.Publish(em.ProjectID, em.Type, em.Data)
	}

	select {
	case h.queue <- em:
	default:
		h.logger.WithFields(logrus.Fields{
			"event_id":   em.ID,
			"event_type": em.Type,
			"project_id": em.ProjectID,
		}).Warn("event queue full, event left pending")
	}
}

// Redeliver 重新推送数据库中 pending 的事件
func (h *dbEventHandler) Redeliver(ctx context.Context) (int, error) {
	events, err := h.eventRepo.FindPending(cap(h.queue))
	if err != nil {
		return 0, fmt.Errorf("failed to find pending events: %w", err)
	}

	count := 0
	for _, em := range events {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case h.queue <- em:
			count++
		default:
			return count, nil
		}
	}
	return count, nil
}

// SetWebhooks 替换 Webhook 配置
func (h *dbEventHandler) SetWebhooks(webhooks []config.WebhookConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.webhooks = webhooks
}

func (h *dbEventHandler) subscribers(eventType string) []config.WebhookConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var result []config.WebhookConfig
	for _, webhook := range h.webhooks {
		if len(webhook.Events) == 0 {
			result = append(result, webhook)
			continue
		}
		for _, t := range webhook.Events {
			if t == eventType {
				result = append(result, webhook)
				break
			}
		}
	}
	return result
}

// worker 事件处理 worker
func (h *dbEventHandler) worker() {
	defer h.wg.Done()
	for {
		select {
		case em := <-h.queue:
			h.pushToWebhooks(em)
		case <-h.stop:
			return
		}
	}
}

// pushToWebhooks 推送到订阅的 Webhook,失败时指数退避重试
func (h *dbEventHandler) pushToWebhooks(em *model.EventModel) {
	log := h.logger.WithFields(logrus.Fields{
		"event_id":   em.ID,
		"event_type": em.Type,
		"project_id": em.ProjectID,
	})

	webhooks := h.subscribers(em.Type)
	if len(webhooks) == 0 {
		// 没有订阅者,无需推送
		h.finish(em, model.EventStatusSuccess, "")
		return
	}

	backoff := h.backoff
	var lastErr error
	for i := 0; i < h.maxRetries; i++ {
		lastErr = nil
		for _, webhook := range webhooks {
			// 已接收的订阅方不再重复推送
			if em.IsDeliveredTo(webhook.URL) {
				continue
			}
			if err := h.sendWebhookRequest(webhook, em.Data); err != nil {
				lastErr = err
				log.WithError(err).WithField("url", webhook.URL).Warn("failed to send webhook request")
				continue
			}
			em.MarkDelivered(webhook.URL)
		}

		if lastErr == nil {
			h.finish(em, model.EventStatusSuccess, "")
			return
		}

		em.RetryCount++
		if i < h.maxRetries-1 {
			// 保存推送进度,进程重启后补发时同样跳过已接收的订阅方
			h.finish(em, model.EventStatusPending, lastErr.Error())
			select {
			case <-time.After(backoff):
			case <-h.stop:
				return
			}
			backoff *= 2 // 指数退避
		}
	}

	log.WithError(lastErr).WithField("retries", em.RetryCount).Error("event delivery failed")
	h.finish(em, model.EventStatusFailed, lastErr.Error())
}

func (h *dbEventHandler) finish(em *model.EventModel, status string, lastErr string) {
	em.Status = status
	em.LastError = lastErr
	em.UpdatedAt = time.Now()
	if err := h.eventRepo.Save(em); err != nil {
		h.logger.WithError(err).WithField("event_id", em.ID).Error("failed to update event status")
	}
}

// sendWebhookRequest 发送 Webhook 请求
func (h *dbEventHandler) sendWebhookRequest(webhook config.WebhookConfig, payload []byte) error {
	method := webhook.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequest(method, webhook.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range webhook.Headers {
		req.Header.Set(key, value)
	}

	if webhook.Auth != nil {
		switch webhook.Auth.Type {
		case "bearer":
			req.Header.Set("Authorization", "Bearer "+webhook.Auth.Token)
		case "basic":
			req.SetBasicAuth(webhook.Auth.Key, webhook.Auth.Token)
		case "header":
			req.Header.Set(webhook.Auth.Key, webhook.Auth.Token)
		}
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}

	return nil
}

// Stop 停止事件处理器
func (h *dbEventHandler) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	h.wg.Wait()
}
