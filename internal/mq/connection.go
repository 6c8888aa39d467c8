package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/DealFlow/internal/telemetry"
)

const (
	reconnectInitialDelay = time.Second
	reconnectMaxDelay     = 30 * time.Second
	defaultHeartbeat      = 10 * time.Second
)

// ErrNoChannel — шина сейчас недоступна.
var ErrNoChannel = errors.New("no channel available")

// Connection — подключение процесса DealFlow к RabbitMQ.
//
// Шина необязательна. Пока брокер недоступен, соединение находится
// в режиме degraded: WithChannel сразу возвращает ErrNoChannel,
// события не публикуются, а воркеры находят сделки опросом хранилища.
// После переподключения топология объявляется заново (если задан
// WithTopology), а consumer перезапускается по ReconnectNotify.
type Connection struct {
	url      string
	name     string
	topology bool
	config   amqp.Config
	logger   *slog.Logger

	mu       sync.RWMutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	degraded bool
	closed   bool

	closedCh    chan struct{}
	reconnectCh chan struct{}
}

// Option настраивает Connection.
type Option func(*Connection)

// WithName задаёт имя соединения в management UI брокера.
func WithName(name string) Option {
	return func(c *Connection) { c.name = name }
}

// WithTopology объявляет топологию DealFlow при каждом подключении.
func WithTopology() Option {
	return func(c *Connection) { c.topology = true }
}

// NewConnection подключается к брокеру. Ошибка первого подключения
// возвращается вызывающему: процесс сам решает, работать ли без шины.
func NewConnection(url string, logger *slog.Logger, opts ...Option) (*Connection, error) {
	c := &Connection{
		url:         url,
		name:        "dealflow",
		logger:      logger.With("component", "amqp"),
		closedCh:    make(chan struct{}),
		reconnectCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config = amqp.Config{
		Heartbeat:  defaultHeartbeat,
		Properties: amqp.Table{"connection_name": c.name},
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	go c.watch()
	return c, nil
}

// connect открывает соединение и канал, при необходимости объявляет топологию.
func (c *Connection) connect() error {
	conn, err := amqp.DialConfig(c.url, c.config)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if c.topology {
		if err := declareTopology(ch); err != nil {
			_ = conn.Close()
			return err
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.setDegraded(false)
	return nil
}

// watch переподключается при разрыве, пока соединение не закрыто.
func (c *Connection) watch() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closedCh:
			return
		case amqpErr := <-notifyClose:
			c.mu.Lock()
			closed := c.closed
			c.channel = nil
			c.mu.Unlock()
			if closed {
				return
			}
			c.setDegraded(true)

			if amqpErr != nil {
				c.logger.Warn("connection lost", "error", amqpErr)
			}
			if !c.reconnect() {
				return
			}
		}
	}
}

// reconnect возвращает false, если соединение закрыли во время ожидания.
func (c *Connection) reconnect() bool {
	delay := reconnectInitialDelay
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-c.closedCh:
			return false
		case <-timer.C:
		}

		if err := c.connect(); err != nil {
			delay = nextDelay(delay)
			c.logger.Warn("reconnect failed", "error", err, "retry_in", delay)
			timer.Reset(delay)
			continue
		}

		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
		return true
	}
}

// nextDelay удваивает задержку переподключения до reconnectMaxDelay.
func nextDelay(d time.Duration) time.Duration {
	return min(d*2, reconnectMaxDelay)
}

// setDegraded переключает режим и логирует только смену режима.
func (c *Connection) setDegraded(degraded bool) {
	c.mu.Lock()
	changed := c.degraded != degraded
	c.degraded = degraded
	c.mu.Unlock()

	if degraded {
		telemetry.BusConnected.Set(0)
	} else {
		telemetry.BusConnected.Set(1)
	}

	if !changed {
		return
	}
	if degraded {
		c.logger.Warn("bus unavailable, workers fall back to polling")
	} else {
		c.logger.Info("bus connected", "name", c.name)
	}
}

// Degraded сообщает, что шина сейчас недоступна.
func (c *Connection) Degraded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.degraded || c.channel == nil
}

// Channel возвращает текущий канал (nil в режиме degraded).
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// ReconnectNotify сигнализирует о восстановлении соединения.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.reconnectCh
}

// WithChannel выполняет fn с текущим каналом.
// В режиме degraded fn не вызывается, операция учитывается как пропущенная.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil {
		telemetry.BusSkippedTotal.Inc()
		return ErrNoChannel
	}
	return fn(ch)
}

// Close закрывает канал и соединение. Повторный вызов ничего не делает.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		c.channel = nil
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	c.logger.Info("bus connection closed")
	return errors.Join(errs...)
}
