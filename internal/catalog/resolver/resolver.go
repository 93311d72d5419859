// Package resolver turns batches of caller-supplied identifiers into
// ordered, authorization-filtered catalog entities.
//
// The failure path is deliberately two-phased: when a filtered fetch comes
// back short, the identical query is re-issued without the visibility
// predicate purely to tell "does not exist" apart from "exists but the
// caller may not see it". The second query is paid only on that path, and
// the authorization error it produces never names the entities involved.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"catalog/internal/catalog"
	"catalog/internal/platform/metrics"
	"catalog/pkg/domain"
	dErrors "catalog/pkg/domain-errors"
)

// Missing describes an input identifier that produced no entity under
// ignore-missing semantics. Reason never discloses whether the entity
// exists for some other caller.
type Missing struct {
	ID     string
	Reason string
}

// Match pairs one de-duplicated input identifier with its resolved
// entities: a single entry for latest-only queries, every revision in
// ascending version order for versioned queries, or none plus a Missing
// marker.
type Match[E catalog.Entry] struct {
	Input   string
	Entries []E
	Missing *Missing
}

// Resolution is the ordered outcome of a Resolve call. Matches mirrors the
// de-duplicated input order exactly.
type Resolution[E catalog.Entry] struct {
	Matches []Match[E]
}

// Found flattens all resolved entities, preserving match order.
func (r Resolution[E]) Found() []E {
	var out []E
	for _, m := range r.Matches {
		out = append(out, m.Entries...)
	}
	return out
}

// Missing lists the unresolved inputs, in input order.
func (r Resolution[E]) Missing() []Missing {
	var out []Missing
	for _, m := range r.Matches {
		if m.Missing != nil {
			out = append(out, *m.Missing)
		}
	}
	return out
}

// First returns the first resolved entity, if any.
func (r Resolution[E]) First() (E, bool) {
	for _, m := range r.Matches {
		if len(m.Entries) > 0 {
			return m.Entries[0], true
		}
	}
	var zero E
	return zero, false
}

// Resolver resolves identifier batches for one resource kind. It holds no
// mutable state; every call builds only local collections, so a single
// instance is shared freely across request handlers.
type Resolver[E catalog.Entry] struct {
	resource catalog.Resource
	store    catalog.Store[E]
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures a Resolver.
type Option[E catalog.Entry] func(*Resolver[E])

// WithLogger sets the logger used for storage-failure diagnostics.
func WithLogger[E catalog.Entry](logger *slog.Logger) Option[E] {
	return func(r *Resolver[E]) { r.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics[E catalog.Entry](m *metrics.Metrics) Option[E] {
	return func(r *Resolver[E]) { r.metrics = m }
}

// New creates a resolver for the given resource over the given store.
func New[E catalog.Entry](resource catalog.Resource, store catalog.Store[E], opts ...Option[E]) *Resolver[E] {
	r := &Resolver[E]{
		resource: resource,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer("catalog/resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps ids to entities within the given study scope (studyUID <= 0
// means global), visible to user. The output mirrors the de-duplicated
// input order. With ignoreMissing, unmatched ids come back as Missing
// entries instead of an error; without it an incomplete result is
// disambiguated into not-found or permission-denied.
func (r *Resolver[E]) Resolve(ctx context.Context, studyUID int64, ids []string, q catalog.Query,
	proj catalog.Projection, user string, ignoreMissing bool) (Resolution[E], error) {

	ctx, span := r.tracer.Start(ctx, "resolver.Resolve")
	defer span.End()
	start := time.Now()
	defer func() { r.metrics.ObserveResolve(r.resource.String(), time.Since(start)) }()

	if len(ids) == 0 {
		return Resolution[E]{}, dErrors.Newf(dErrors.CodeInvalidInput, "missing %s entries", r.noun())
	}

	unique := dedupe(ids)

	idField, err := r.classify(unique)
	if err != nil {
		return Resolution[E]{}, err
	}

	if q.Versioned() && len(unique) > 1 {
		return Resolution[E]{}, dErrors.Newf(dErrors.CodeInvalidInput,
			"only one %s allowed when requesting multiple versions", r.noun())
	}

	qc := q.Clone()
	qc.StudyUID = studyUID
	qc.Set(idField, unique)

	// The identifier we match results back on must survive whatever
	// projection the caller asked for.
	proj = proj.Keep(idField)

	r.metrics.IncResolverQuery(r.resource.String(), "filtered")
	filtered, err := r.store.Search(ctx, qc, proj, user)
	if err != nil {
		r.logger.ErrorContext(ctx, "entity store query failed",
			"resource", r.resource, "pass", "filtered", "error", err)
		return Resolution[E]{}, dErrors.Wrap(dErrors.CodeStorage,
			fmt.Sprintf("fetching %s entries", r.noun()), err)
	}

	key := r.keyFunc(idField)
	groups := groupByKey(filtered.Entries, key)

	if ignoreMissing || len(groups) >= len(unique) {
		return r.ordered(unique, groups), nil
	}

	// Incomplete and the caller wants hard errors: re-issue the identical
	// query without the visibility predicate to find out why.
	r.metrics.IncResolverQuery(r.resource.String(), "unfiltered")
	unfiltered, err := r.store.Search(ctx, qc, proj, "")
	if err != nil {
		r.logger.ErrorContext(ctx, "entity store query failed",
			"resource", r.resource, "pass", "unfiltered", "error", err)
		return Resolution[E]{}, dErrors.Wrap(dErrors.CodeStorage,
			fmt.Sprintf("fetching %s entries", r.noun()), err)
	}
	unfilteredGroups := groupByKey(unfiltered.Entries, key)

	if len(unfilteredGroups) == len(groups) {
		missing := missingKeys(unique, groups)
		return Resolution[E]{}, dErrors.Newf(dErrors.CodeNotFound,
			"%ss not found: [%s]", r.noun(), strings.Join(missing, ", "))
	}

	// Some entities exist that the filtered pass hid. Do not say which.
	return Resolution[E]{}, dErrors.Newf(dErrors.CodeUnauthorized,
		"permission denied: user %q is not allowed to see some or none of the %ss", user, r.noun())
}

// classify decides which identifier field the whole batch addresses.
// Mixing opaque uuids and mnemonic ids in one call is rejected before any
// store work happens.
func (r *Resolver[E]) classify(unique []string) (string, error) {
	field := ""
	for _, entry := range unique {
		f := catalog.FieldID
		if domain.IsCatalogUUID(entry) {
			f = catalog.FieldUUID
		}
		if field == "" {
			field = f
		} else if field != f {
			return "", dErrors.New(dErrors.CodeInvalidInput,
				"found uuids and ids in the same batch; choose one or issue two queries")
		}
	}
	return field, nil
}

func (r *Resolver[E]) keyFunc(idField string) func(E) string {
	if idField == catalog.FieldUUID {
		return func(e E) string { return e.EntryUUID() }
	}
	return func(e E) string { return e.EntryID() }
}

// ordered rebuilds the fetched set in de-duplicated input order, attaching
// Missing markers for unmatched inputs and sorting version groups
// ascending.
func (r *Resolver[E]) ordered(unique []string, groups map[string][]E) Resolution[E] {
	res := Resolution[E]{Matches: make([]Match[E], 0, len(unique))}
	for _, id := range unique {
		entries := groups[id]
		if len(entries) == 0 {
			res.Matches = append(res.Matches, Match[E]{
				Input: id,
				Missing: &Missing{
					ID:     id,
					Reason: fmt.Sprintf("%s %s not found or access not permitted", r.noun(), id),
				},
			})
			continue
		}
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].EntryVersion() < entries[j].EntryVersion()
		})
		res.Matches = append(res.Matches, Match[E]{Input: id, Entries: entries})
	}
	return res
}

func (r *Resolver[E]) noun() string {
	return strings.ToLower(r.resource.String())
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func groupByKey[E catalog.Entry](entries []E, key func(E) string) map[string][]E {
	groups := make(map[string][]E, len(entries))
	for _, e := range entries {
		k := key(e)
		groups[k] = append(groups[k], e)
	}
	return groups
}

func missingKeys[E catalog.Entry](unique []string, groups map[string][]E) []string {
	var out []string
	for _, id := range unique {
		if len(groups[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}
