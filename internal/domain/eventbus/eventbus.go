package eventbus

import (
	evbus "github.com/asaskevich/EventBus"
)

// Publisher is the narrow view of a bus that producers depend on.
type Publisher interface {
	Publish(topic string, args ...interface{})
}

// New creates a synchronous event bus.
func New() evbus.Bus {
	return evbus.New()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(string, ...interface{}) {}
