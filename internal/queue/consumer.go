package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StartConsumer connects to RabbitMQ, declares the event queues and consumes
// them, writing one structured log line per event. This stands in for the
// notification service: downstream delivery (SMS/email) hangs off these
// queues, not off the request path. The function runs a reconnect loop with
// exponential backoff and never returns under normal operation.
func StartConsumer(logger *zap.Logger) error {
	url := BrokerURL()
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("event consumer dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeLoop(conn, logger); err != nil {
			logger.Warn("event consumer loop ended, reconnecting", zap.Error(err))
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, logger *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("set QoS failed", zap.Error(err))
	}

	for _, name := range []string{AuthEventsQueue, AppointmentQueue} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", name, err)
		}
	}

	authMsgs, err := ch.Consume(AuthEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", AuthEventsQueue, err)
	}
	apptMsgs, err := ch.Consume(AppointmentQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", AppointmentQueue, err)
	}

	for {
		select {
		case d, ok := <-authMsgs:
			if !ok {
				return errors.New("auth deliveries channel closed")
			}
			ackOrReject(d, handleAuthEvent(d.Body, logger), logger)
		case d, ok := <-apptMsgs:
			if !ok {
				return errors.New("appointment deliveries channel closed")
			}
			ackOrReject(d, handleAppointmentEvent(d.Body, logger), logger)
		}
	}
}

// Rejected messages are not requeued, to avoid tight redelivery loops on a
// poison message.
func ackOrReject(d amqp.Delivery, err error, logger *zap.Logger) {
	if err != nil {
		logger.Warn("event handling failed", zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func handleAuthEvent(body []byte, logger *zap.Logger) error {
	var ev AuthEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal auth event: %w", err)
	}
	logger.Info("auth event",
		zap.String("kind", ev.Kind),
		zap.Uint64("user_id", ev.UserID),
		zap.String("email", ev.Email),
		zap.String("occurred_at", ev.OccurredAt))
	return nil
}

func handleAppointmentEvent(body []byte, logger *zap.Logger) error {
	var ev AppointmentBookedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal appointment event: %w", err)
	}
	logger.Info("appointment booked",
		zap.Uint64("appointment_id", ev.AppointmentID),
		zap.String("reference", ev.Reference),
		zap.Uint64("user_id", ev.UserID),
		zap.String("service", ev.ServiceName),
		zap.String("slot_starts_at", ev.SlotStartsAt))
	return nil
}
