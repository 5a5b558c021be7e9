package tickstream

import (
	"hash/fnv"
	"sync"

	"github.com/avelios/terminal-gateway/internal/entity"
)

// Consumer is a non-owning handle to a connected client. The registry never
// controls a consumer's lifecycle; it only reacts to connect/disconnect.
//
// Enqueue must not block: it reports false when the consumer's delivery queue
// is full or closed, and the caller drops that tick for that consumer.
type Consumer interface {
	ID() string
	Enqueue(event entity.TickEvent) bool
}

const registryShards = 32

type registryShard struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]Consumer // symbol -> consumer id -> consumer
}

// Registry tracks which consumers want which symbols. Mutations and snapshot
// reads on the same symbol are mutually exclusive; different symbols live on
// independent shards and do not block each other.
type Registry struct {
	shards [registryShards]*registryShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{subscribers: make(map[string]map[string]Consumer)}
	}

	return r
}

func (r *Registry) shardOf(symbol string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return r.shards[h.Sum32()%registryShards]
}

// Subscribe is idempotent: re-adding an existing pair is a no-op.
func (r *Registry) Subscribe(consumer Consumer, symbol string) {
	shard := r.shardOf(symbol)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	set, ok := shard.subscribers[symbol]
	if !ok {
		set = make(map[string]Consumer)
		shard.subscribers[symbol] = set
	}
	set[consumer.ID()] = consumer
}

// Unsubscribe is idempotent: removing a non-existent pair is a no-op.
func (r *Registry) Unsubscribe(consumer Consumer, symbol string) {
	shard := r.shardOf(symbol)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	set, ok := shard.subscribers[symbol]
	if !ok {
		return
	}

	delete(set, consumer.ID())
	if len(set) == 0 {
		delete(shard.subscribers, symbol)
	}
}

// DropConsumer removes every subscription of the consumer. Called on
// disconnect; after it returns no snapshot will include the consumer.
func (r *Registry) DropConsumer(consumer Consumer) {
	id := consumer.ID()
	for _, shard := range r.shards {
		shard.mu.Lock()
		for symbol, set := range shard.subscribers {
			delete(set, id)
			if len(set) == 0 {
				delete(shard.subscribers, symbol)
			}
		}
		shard.mu.Unlock()
	}
}

// SubscribersOf returns a point-in-time snapshot of the symbol's subscribers.
func (r *Registry) SubscribersOf(symbol string) []Consumer {
	shard := r.shardOf(symbol)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	set := shard.subscribers[symbol]
	if len(set) == 0 {
		return nil
	}

	snapshot := make([]Consumer, 0, len(set))
	for _, c := range set {
		snapshot = append(snapshot, c)
	}

	return snapshot
}

// ActiveSymbols lists every symbol that currently has at least one subscriber.
func (r *Registry) ActiveSymbols() []string {
	var symbols []string
	for _, shard := range r.shards {
		shard.mu.RLock()
		for symbol := range shard.subscribers {
			symbols = append(symbols, symbol)
		}
		shard.mu.RUnlock()
	}

	return symbols
}
