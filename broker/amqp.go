package broker

import (
	"encoding/json"
	"fmt"

	"github.com/zllovesuki/payablesubs/spec"
	"github.com/zllovesuki/payablesubs/spec/broker"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var _ broker.Producer = &AMQPBroker{}

const billingEventsExchange string = "billing_events"

// AMQPBroker publishes billing events to RabbitMQ. Events are routed by their type
type AMQPBroker struct {
	logger     *zap.Logger
	connection *amqp.Connection
	channel    publisher
}

type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(logger *zap.Logger, amqpURI string) (*AMQPBroker, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		amqpConn.Close()
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	if err := amqpChan.ExchangeDeclare(
		billingEventsExchange, // name
		"topic",               // type
		true,                  // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	); err != nil {
		amqpChan.Close()
		amqpConn.Close()
		return nil, extErrors.Wrap(err, "Cannot declare exchange for billing events")
	}

	return &AMQPBroker{
		logger:     logger,
		connection: amqpConn,
		channel:    amqpChan,
	}, nil
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	if err := a.channel.Close(); err != nil {
		a.logger.Warn("Unable to close broker channel", zap.Error(err))
	}
	if a.connection != nil {
		a.connection.Close()
	}
}

// PublishEvent sends the event as JSON with its type as the routing key
func (a *AMQPBroker) PublishEvent(e *spec.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode event")
	}
	if err := a.channel.Publish(
		billingEventsExchange,
		string(e.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.When,
			Body:         body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish billing event")
	}
	return nil
}
