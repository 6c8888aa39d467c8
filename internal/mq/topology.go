package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeDeals Exchange = "dealflow.deals"
	ExchangeDLQ   Exchange = "dealflow.dlq"
)

// Queues — имена очередей.
const (
	QueueDealsNew     Queue = "deals.new"
	QueueDealsDecided Queue = "deals.decided"
	QueueDLQDeals     Queue = "dlq.deals"
)

// Routing keys.
const (
	RoutingKeyNew      RoutingKey = "new"
	RoutingKeyDecided  RoutingKey = "decided"
	RoutingKeyFailed   RoutingKey = "failed"
	RoutingKeyDLQDeals RoutingKey = "deals"
)

// SetupTopology объявляет exchanges, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, declareTopology)
}

func declareTopology(ch *amqp.Channel) error {
	if err := declareExchanges(ch); err != nil {
		return err
	}
	if err := declareQueues(ch); err != nil {
		return err
	}
	return bindQueues(ch)
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	for _, ex := range []Exchange{ExchangeDeals, ExchangeDLQ} {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQDeals),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// deals.new — только пробуждение воркеров, потеря сообщения не страшна
		{QueueDealsNew, amqp.Table{"x-max-length": int32(1000)}},

		// deals.decided — события для внешних потребителей, с DLQ
		{QueueDealsDecided, dlqArgs},

		{QueueDLQDeals, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueDealsNew, RoutingKeyNew, ExchangeDeals},
		{QueueDealsDecided, RoutingKeyDecided, ExchangeDeals},
		{QueueDealsDecided, RoutingKeyFailed, ExchangeDeals},
		{QueueDLQDeals, RoutingKeyDLQDeals, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s/%s: %w", b.queue, b.exchange, b.routingKey, err)
		}
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  DealFlow RabbitMQ Topology:

    dealflow.deals (direct)
    ├── deals.new [routing: new]
    │       Producer: dealflow-producer
    │       Consumer: dealflow-worker (wake-up)
    └── deals.decided [routing: decided, failed]
            Producer: dealflow-worker (after commit)
            DLQ: dlq.deals

    dealflow.dlq (direct)
    └── dlq.deals [routing: deals]
            Manual processing
  `
}
