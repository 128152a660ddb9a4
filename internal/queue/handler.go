package queue

import (
	"regexp"

	"github.com/OFFIS-RIT/clarifier/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const maxDeliveryRetries = 10

// Catalog ids name lock keys, S3 prefixes, and output directories, so they
// must never carry path or routing characters.
var catalogIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func ValidCatalogID(id string) bool {
	return catalogIDPattern.MatchString(id)
}

// HandleProcessingError routes a failed delivery to its retry queue, or to
// the dead-letter queue once the retry budget is spent. The retry queue
// dead-letters back into the work queue after its TTL, so redelivery is
// delayed rather than immediate.
func HandleProcessingError(ch *amqp091.Channel, msg amqp091.Delivery, queueName string) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	if retries >= maxDeliveryRetries {
		dlqName := queueName + "_dlq"
		logger.Info("[Queue] Sending message to DLQ", "dlq", dlqName)
		pubErr := ch.Publish(
			"",
			dlqName,
			false,
			false,
			amqp091.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("[Queue] Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp091.Table{}
	}
	headers["x-retries"] = retries + 1

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("[Queue] Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
