package tickstream

import (
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/entity"
)

// Hub fans changed quotes out to the symbol's current subscribers. Delivery
// per consumer is a bounded, non-blocking enqueue: a slow or closed consumer
// loses that tick (at-most-once per tick) and is reported for disconnection,
// it never stalls the publisher or its neighbours.
//
// Per-symbol ordering holds because Publish enqueues synchronously in emission
// order; there is no cross-symbol guarantee.
type Hub struct {
	registry   *Registry
	onOverflow func(Consumer)
}

// NewHub wires the hub to the registry. onOverflow is invoked for every
// consumer whose queue rejected a delivery; the transport layer uses it to
// trigger the consumer's disconnect. It may be nil.
func NewHub(registry *Registry, onOverflow func(Consumer)) *Hub {
	return &Hub{
		registry:   registry,
		onOverflow: onOverflow,
	}
}

// Publish attempts delivery of the quote to every currently-subscribed
// consumer. It returns the number of successful deliveries once every
// subscriber has been attempted.
func (h *Hub) Publish(quote entity.Quote) int {
	snapshot := h.registry.SubscribersOf(quote.Symbol)
	if len(snapshot) == 0 {
		return 0
	}

	event := entity.NewTickEvent(quote)

	delivered := 0
	for _, consumer := range snapshot {
		if consumer.Enqueue(event) {
			delivered++
			continue
		}

		logrus.WithFields(logrus.Fields{
			"consumer": consumer.ID(),
			"symbol":   quote.Symbol,
		}).Warn("tick dropped: consumer queue full or closed")

		if h.onOverflow != nil {
			h.onOverflow(consumer)
		}
	}

	return delivered
}
