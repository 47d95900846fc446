package broker

import "github.com/zllovesuki/payablesubs/spec"

// Producer defines a producer sending billing events via message broker
type Producer interface {
	Close()
	PublishEvent(e *spec.Event) error
}
