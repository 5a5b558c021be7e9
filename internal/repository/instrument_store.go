package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/entity"
)

const defaultInstrumentTTL = 5 * time.Minute

// InstrumentStore caches instrument trading metadata. Contract specs change
// rarely, so a short TTL keeps us from asking the terminal for volume steps
// on every sized order.
type InstrumentStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInstrumentStore(client *redis.Client, ttl time.Duration) *InstrumentStore {
	if ttl <= 0 {
		ttl = defaultInstrumentTTL
	}
	return &InstrumentStore{client: client, ttl: ttl}
}

func (s *InstrumentStore) Load(ctx context.Context, symbol string) (entity.Instrument, bool, error) {
	raw, err := s.client.Get(ctx, instrumentKey(symbol)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.Instrument{}, false, nil
		}
		return entity.Instrument{}, false, err
	}

	var instrument entity.Instrument
	if err := json.Unmarshal([]byte(raw), &instrument); err != nil {
		return entity.Instrument{}, false, err
	}

	return instrument, true, nil
}

func (s *InstrumentStore) Save(ctx context.Context, instrument entity.Instrument) error {
	payload, err := json.Marshal(instrument)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, instrumentKey(instrument.Symbol), payload, s.ttl).Err()
}

func instrumentKey(symbol string) string {
	return fmt.Sprintf("instrument:%s", symbol)
}

// CachedInstrumentSource resolves instruments through the cache first and
// falls back to the terminal on a miss. Cache failures degrade to a direct
// terminal lookup rather than failing the order.
type CachedInstrumentSource struct {
	store   *InstrumentStore
	gateway entity.SessionGateway
}

func NewCachedInstrumentSource(store *InstrumentStore, gateway entity.SessionGateway) *CachedInstrumentSource {
	return &CachedInstrumentSource{store: store, gateway: gateway}
}

func (s *CachedInstrumentSource) Resolve(ctx context.Context, symbol string) (*entity.Instrument, error) {
	if s.store != nil {
		instrument, found, err := s.store.Load(ctx, symbol)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"symbol": symbol,
				"error":  err,
			}).Warn("instrument cache read failed")
		} else if found {
			return &instrument, nil
		}
	}

	instrument, err := s.gateway.GetInstrument(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.Save(ctx, *instrument); err != nil {
			logrus.WithFields(logrus.Fields{
				"symbol": symbol,
				"error":  err,
			}).Warn("instrument cache write failed")
		}
	}

	return instrument, nil
}
