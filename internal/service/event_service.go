package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"learnhub_backend/internal/config"
	"learnhub_backend/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	EventCourseCompleted      = "course.completed"
	EventQuizAttemptCompleted = "quiz.attempt.completed"
)

// EventPublisher 发布领域事件，发布失败只记录日志
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
	Close() error
}

type CourseCompletedEvent struct {
	StudentID   uint      `json:"student_id"`
	CourseID    uint      `json:"course_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type QuizAttemptCompletedEvent struct {
	AttemptID uint    `json:"attempt_id"`
	QuizID    uint    `json:"quiz_id"`
	StudentID uint    `json:"student_id"`
	Score     float64 `json:"score"`
	IsPassed  bool    `json:"is_passed"`
}

// NoopPublisher 未启用事件时使用
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }

// AMQPPublisher 通过 RabbitMQ topic exchange 发布事件
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	mu       sync.Mutex
}

func NewAMQPPublisher(cfg *config.EventsConfig) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: cfg.Exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		logger.Log.Warn("close amqp channel", zap.Error(err))
	}
	return p.conn.Close()
}

// NewEventPublisher 按配置选择实现，连接失败时退回空实现
func NewEventPublisher(cfg *config.EventsConfig) EventPublisher {
	if !cfg.Enabled {
		return NoopPublisher{}
	}
	p, err := NewAMQPPublisher(cfg)
	if err != nil {
		logger.Log.Error("Failed to connect event broker, events disabled", zap.Error(err))
		return NoopPublisher{}
	}
	return p
}

func publish(ctx context.Context, events EventPublisher, routingKey string, payload interface{}) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, routingKey, payload); err != nil {
		logger.Log.Error("publish event failed", zap.String("routingKey", routingKey), zap.Error(err))
	}
}
