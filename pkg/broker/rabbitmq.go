// Package broker carries pipeline tasks over RabbitMQ so that several API
// instances can share one worker pool backlog.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-screening-backend/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQ implements domain.TaskQueue on one durable queue.
//
// Deliveries are acknowledged when handed to the pool. A task lost after that
// point leaves its resume in a transient status, which the reaper recovers.
type RabbitMQ struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	queue    amqp.Queue
	prefetch int
	log      *zap.Logger

	pubMu     sync.Mutex
	closeOnce sync.Once
}

var _ domain.TaskQueue = (*RabbitMQ)(nil)

func NewRabbitMQ(url, queueName string, prefetch int, log *zap.Logger) (*RabbitMQ, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if prefetch < 1 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	log.Info("connected to RabbitMQ", zap.String("queue", q.Name))
	return &RabbitMQ{conn: conn, channel: ch, queue: q, prefetch: prefetch, log: log.Named("broker")}, nil
}

func (r *RabbitMQ) Enqueue(ctx context.Context, task domain.ProcessingTask) error {
	body, err := encodeTask(task)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// amqp channels are not safe for concurrent publishes
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	return r.channel.PublishWithContext(ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (r *RabbitMQ) Consume(ctx context.Context) (<-chan domain.ProcessingTask, error) {
	msgs, err := r.channel.ConsumeWithContext(ctx,
		r.queue.Name,
		"",
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	out := make(chan domain.ProcessingTask)
	go func() {
		defer close(out)
		for d := range msgs {
			task, err := decodeTask(d.Body)
			if err != nil {
				r.log.Warn("dropping malformed task", zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			select {
			case out <- task:
				_ = d.Ack(false)
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			}
		}
	}()
	return out, nil
}

func (r *RabbitMQ) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = errors.Join(r.channel.Close(), r.conn.Close())
	})
	return err
}

func encodeTask(task domain.ProcessingTask) ([]byte, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task: %w", err)
	}
	return body, nil
}

func decodeTask(body []byte) (domain.ProcessingTask, error) {
	var task domain.ProcessingTask
	if err := json.Unmarshal(body, &task); err != nil {
		return task, fmt.Errorf("invalid task format: %w", err)
	}
	if task.Step != domain.StepParse && task.Step != domain.StepAnalyze {
		return task, fmt.Errorf("unknown task step %q", task.Step)
	}
	if task.JobID <= 0 {
		return task, errors.New("task has no job")
	}
	return task, nil
}
