// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений, WakeHandler
//
// Типы сообщений:
//   - deal.new      — в хранилище появилась сделка NEW
//   - deal.decided  — вердикт записан
//   - deal.failed   — сделка переведена в FAILED
//
// Exchanges:
//   - dealflow.deals — события сделок
//   - dealflow.dlq   — dead letter queue
//
// Шина необязательна: хранилище остаётся источником истины,
// сообщения только ускоряют реакцию воркеров.
package mq
