package memory

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ajkula/plistener/domain/model"
	"github.com/ajkula/plistener/domain/port/outbound"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNilHandler           = errors.New("handler must not be nil")
)

type Subscription struct {
	ID      string
	Handler outbound.ChangeHandler
}

// SubscriptionRegistry fans recorded changes out to live subscribers
type SubscriptionRegistry struct {
	subscriptions map[string]*Subscription
	logger        outbound.Logger
	mu            sync.RWMutex
}

func NewSubscriptionRegistry(logger outbound.Logger) *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subscriptions: make(map[string]*Subscription),
		logger:        logger,
	}
}

func (r *SubscriptionRegistry) Subscribe(handler outbound.ChangeHandler) (string, error) {
	if handler == nil {
		return "", ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := "sub-" + uuid.NewString()
	r.subscriptions[id] = &Subscription{ID: id, Handler: handler}

	r.logger.Debug("Change subscriber registered", "subscriptionID", id, "total", len(r.subscriptions))
	return id, nil
}

func (r *SubscriptionRegistry) Unsubscribe(subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.subscriptions[subscriptionID]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(r.subscriptions, subscriptionID)

	r.logger.Debug("Change subscriber removed", "subscriptionID", subscriptionID)
	return nil
}

// Publish calls every handler concurrently and waits for them.
// Handler errors are logged, never returned: a slow or broken subscriber
// must not fail the event that was already recorded.
func (r *SubscriptionRegistry) Publish(event *model.ChangeEvent) error {
	r.mu.RLock()
	subs := make([]*Subscription, 0, len(r.subscriptions))
	for _, sub := range r.subscriptions {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()

			// each subscriber gets its own copy
			eventCopy := *event
			if err := sub.Handler(&eventCopy); err != nil {
				r.logger.Warn("Error notifying change subscriber", "subscriptionID", sub.ID, "error", err)
			}
		}(sub)
	}
	wg.Wait()

	return nil
}

// Count returns the number of live subscriptions
func (r *SubscriptionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions)
}
