// Package cache decorates an entity store with a redis read-through cache.
// Entries are invalidated wholesale per resource when a mutation event for
// that resource passes the event bus.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"catalog/internal/catalog"
	"catalog/internal/eventbus"
	"catalog/internal/platform/redis"
)

// Store wraps an inner catalog.Store. Cache misses and redis failures fall
// through to the inner store; the cache never makes a read fail.
type Store[E catalog.Entry] struct {
	inner    catalog.Store[E]
	client   *redis.Client
	resource catalog.Resource
	ttl      time.Duration
	logger   *slog.Logger
}

// New decorates inner with a redis cache. The client may be nil, in which
// case the decorator is a transparent pass-through.
func New[E catalog.Entry](inner catalog.Store[E], client *redis.Client, resource catalog.Resource, ttl time.Duration, logger *slog.Logger) *Store[E] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[E]{
		inner:    inner,
		client:   client,
		resource: resource,
		ttl:      ttl,
		logger:   logger,
	}
}

// Search implements catalog.Store. Queries with the visibility predicate
// disabled bypass the cache entirely: the unfiltered pass exists to observe
// ground truth and must never read a stale or permission-scoped entry.
func (s *Store[E]) Search(ctx context.Context, q catalog.Query, proj catalog.Projection, visibleTo string) (catalog.Result[E], error) {
	if s.client == nil || visibleTo == "" {
		return s.inner.Search(ctx, q, proj, visibleTo)
	}

	key := s.key(q, proj, visibleTo)
	if cached, ok := s.get(ctx, key); ok {
		return cached, nil
	}

	result, err := s.inner.Search(ctx, q, proj, visibleTo)
	if err != nil {
		return result, err
	}
	s.put(ctx, key, result)
	return result, nil
}

// Invalidate drops every cached query for this resource.
func (s *Store[E]) Invalidate(ctx context.Context) {
	if s.client == nil {
		return
	}
	pattern := s.prefix() + "*"
	iter := s.client.Scan(ctx, 0, pattern, 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.WarnContext(ctx, "cache scan failed", "resource", s.resource.String(), "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "resource", s.resource.String(), "error", err)
	}
}

// Observer returns an event bus observer that invalidates this cache.
// Subscribe it to the resource's update and delete event ids.
func (s *Store[E]) Observer() eventbus.Observer {
	return eventbus.ObserverFunc{
		Name: "cache-invalidate-" + strings.ToLower(s.resource.String()),
		Fn: func(ctx context.Context, _ eventbus.Event) error {
			s.Invalidate(ctx)
			return nil
		},
	}
}

func (s *Store[E]) get(ctx context.Context, key string) (catalog.Result[E], bool) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return catalog.Result[E]{}, false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed", "resource", s.resource.String(), "error", err)
		return catalog.Result[E]{}, false
	}
	var result catalog.Result[E]
	if err := json.Unmarshal(raw, &result); err != nil {
		s.logger.WarnContext(ctx, "cache entry corrupt", "resource", s.resource.String(), "error", err)
		return catalog.Result[E]{}, false
	}
	return result, true
}

func (s *Store[E]) put(ctx context.Context, key string, result catalog.Result[E]) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "cache write failed", "resource", s.resource.String(), "error", err)
	}
}

func (s *Store[E]) prefix() string {
	return "catalog:entities:" + strings.ToLower(s.resource.String()) + ":"
}

// key hashes the full query shape, projection and visibility subject, so
// two users never share a cache entry.
func (s *Store[E]) key(q catalog.Query, proj catalog.Projection, visibleTo string) string {
	h := sha256.New()
	fmt.Fprintf(h, "study=%d;version=%d;all=%t;user=%s;", q.StudyUID, q.Version, q.AllVersions, visibleTo)

	fields := make([]string, 0, len(q.Filters))
	for f := range q.Filters {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(h, "f:%s=%v;", f, q.Filters[f])
	}
	fmt.Fprintf(h, "inc=%s;exc=%s", strings.Join(proj.Include, ","), strings.Join(proj.Exclude, ","))

	return s.prefix() + hex.EncodeToString(h.Sum(nil))
}
