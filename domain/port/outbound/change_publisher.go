package outbound

import "github.com/ajkula/plistener/domain/model"

// ChangeHandler receives recorded change events
type ChangeHandler func(event *model.ChangeEvent) error

// defines operations to fan recorded changes out to live subscribers
type ChangePublisher interface {
	// Subscribe registers a handler and returns its subscription ID
	Subscribe(handler ChangeHandler) (string, error)

	// Unsubscribe removes a subscription
	Unsubscribe(subscriptionID string) error

	// Publish delivers an event to every subscriber
	Publish(event *model.ChangeEvent) error
}
