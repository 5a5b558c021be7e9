// Package tickstream implements the tick distribution engine: change
// detection against a per-symbol LastSeen cache, a subscription registry, and
// a broadcast hub that fans changed quotes out to subscribed consumers.
package tickstream

import (
	"context"
	"sync"

	"github.com/avelios/terminal-gateway/internal/entity"
)

// Detector pulls quotes from the terminal and emits one only when bid, ask or
// last actually changed versus the previously emitted quote for that symbol.
//
// The LastSeen cache is owned exclusively by the detector. Observations of the
// same symbol are serialized through a per-symbol lock so a stale read can
// never overwrite a fresher entry; different symbols do not block each other.
type Detector struct {
	gateway entity.SessionGateway

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	lastSeen map[string]entity.Quote
}

func NewDetector(gateway entity.SessionGateway) *Detector {
	return &Detector{
		gateway:  gateway,
		locks:    make(map[string]*sync.Mutex),
		lastSeen: make(map[string]entity.Quote),
	}
}

// Observe fetches the current quote for symbol and returns it iff it differs
// from the last emitted one. Returns (nil, nil) when nothing changed. The
// first observation of a symbol is always a change.
func (d *Detector) Observe(ctx context.Context, symbol string) (*entity.Quote, error) {
	lock := d.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	quote, err := d.gateway.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	fresh := quote.WithSpread()

	d.mu.Lock()
	prev, seen := d.lastSeen[symbol]
	if seen && prev.PricesEqual(fresh) {
		d.mu.Unlock()
		return nil, nil
	}
	d.lastSeen[symbol] = fresh
	d.mu.Unlock()

	return &fresh, nil
}

// LastSeen returns the most recently emitted quote for symbol, if any.
// Read-only outside the detector.
func (d *Detector) LastSeen(symbol string) (entity.Quote, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q, ok := d.lastSeen[symbol]
	return q, ok
}

func (d *Detector) symbolLock(symbol string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[symbol] = lock
	}

	return lock
}
