// Package queue wires the catalog pipeline to RabbitMQ: queue topology
// (work queue + retry queue + dead-letter queue per operation), publishing
// helpers, and the message handlers the worker dispatches to.
package queue

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/clarifier/internal/util"
	"github.com/OFFIS-RIT/clarifier/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	BuildQueue  = "build_queue"
	DeleteQueue = "delete_queue"
)

// WorkQueues lists every queue the worker consumes, in dispatch order.
var WorkQueues = []string{BuildQueue, DeleteQueue}

// BuildCatalogMsg asks the worker to run a catalog build. Sources are S3
// object keys, either listed explicitly or discovered under Prefix; both may
// be set.
type BuildCatalogMsg struct {
	Message   string   `json:"message,omitempty"`
	CatalogID string   `json:"catalog_id"`
	Prefix    string   `json:"prefix,omitempty"`
	Keys      []string `json:"keys,omitempty"`
}

// DeleteCatalogMsg asks the worker to drop a stored catalog. With Purge set,
// the source documents under Prefix are removed from the bucket as well.
type DeleteCatalogMsg struct {
	Message   string `json:"message,omitempty"`
	CatalogID string `json:"catalog_id"`
	Prefix    string `json:"prefix,omitempty"`
	Purge     bool   `json:"purge,omitempty"`
}

// CatalogEventMsg is published on the pubsub exchange when a build finishes.
type CatalogEventMsg struct {
	CatalogID string `json:"catalog_id"`
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
}

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares every work queue together with its dead-letter queue
// and a retry queue that feeds messages back after a short TTL.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		"pubsub", // name
		"topic",  // type
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatal("ExchangeDeclare failed", "err", err)
	}

	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", name, "err", err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", dlqName, "err", err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(10000),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", retryName, "err", err)
		}
	}

	return nil
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	err = ch.Publish(
		"",
		q.Name,
		false,
		false,
		publishing,
	)
	if err != nil {
		return err
	}

	return nil
}

func PublishTopic(ch *amqp091.Channel, topic string, data []byte) error {
	err := ch.ExchangeDeclare(
		"pubsub_exchange",
		"topic",
		false,
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	err = ch.Publish(
		"pubsub_exchange",
		topic,
		false,
		true,
		publishing,
	)
	if err != nil {
		return err
	}

	return nil
}
