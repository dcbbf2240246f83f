package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// ReadThrough returns the cached value for key, or calls load, caches its
// JSON encoding for ttl and returns it. Cache failures never fail the read:
// they are logged and the loader is used instead. Loader errors are returned
// as-is and nothing is cached.
func ReadThrough[T any](ctx context.Context, s Store, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	lg := zerolog.Ctx(ctx)
	ns := namespaceOf(key)

	raw, ok, err := s.Get(ctx, key)
	switch {
	case err != nil:
		lg.Warn().Err(err).Str("key", key).Msg("cache get failed, reading store")
	case ok:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			lookups.WithLabelValues(ns, "hit").Inc()
			return v, nil
		}
		lg.Warn().Str("key", key).Msg("cache entry undecodable, reading store")
	}
	lookups.WithLabelValues(ns, "miss").Inc()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	if raw, err := json.Marshal(v); err != nil {
		lg.Warn().Err(err).Str("key", key).Msg("cache encode failed")
	} else if err := s.Set(ctx, key, raw, ttl); err != nil {
		lg.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return v, nil
}
