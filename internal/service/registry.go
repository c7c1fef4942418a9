// Package service keeps built density models and evaluates them on behalf
// of the HTTP API and the CLI.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xmlongan/jmomden/internal/cache"
	"github.com/xmlongan/jmomden/internal/metrics"
	"github.com/xmlongan/jmomden/internal/momentfile"
	"github.com/xmlongan/jmomden/internal/persistence"
	"github.com/xmlongan/jmomden/pkg/bcast"
	"github.com/xmlongan/jmomden/pkg/denappr"
	"github.com/xmlongan/jmomden/pkg/denorig"
	"github.com/xmlongan/jmomden/pkg/jointmom"
	"github.com/xmlongan/jmomden/pkg/pearson"
)

// ErrNotFound is returned for unknown model ids
var ErrNotFound = errors.New("model not found")

// Snapshot lookup tiers reported to metrics
const (
	tierRegistry = "registry"
	tierCache    = "cache"
	tierStore    = "store"
)

// BuildRequest describes a model to build
type BuildRequest struct {
	Moments jointmom.Table
	Degree  int    // 0 selects the registry default
	Family  string // empty selects the registry default
}

// Registry builds, stores and evaluates models. It is safe for concurrent
// use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]*Model
	byHash map[string]string
	// ids removed by Delete; never restored from the cache or the store
	deleted map[string]struct{}

	cache   cache.Cache
	ttl     time.Duration
	store   persistence.SnapshotRepo
	metrics *metrics.Metrics
	logger  zerolog.Logger

	degree int
	family string
	now    func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithCache pushes snapshots to c with the given ttl and reads them back
// for ids not held in memory
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Registry) { r.cache, r.ttl = c, ttl }
}

// WithStore persists snapshots to s
func WithStore(s persistence.SnapshotRepo) Option {
	return func(r *Registry) { r.store = s }
}

// WithMetrics records builds, evaluations and repairs
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithDefaults sets the degree and family used when a request omits them
func WithDefaults(degree int, family string) Option {
	return func(r *Registry) { r.degree, r.family = degree, family }
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		models:  make(map[string]*Model),
		byHash:  make(map[string]string),
		deleted: make(map[string]struct{}),
		logger:  log.Logger,
		degree:  denorig.DefaultDegree,
		family:  pearson.FamilyPearson,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build returns the model for req, reusing an existing one with the same
// content hash
func (r *Registry) Build(ctx context.Context, req BuildRequest) (*Model, error) {
	degree, family := req.Degree, req.Family
	if degree == 0 {
		degree = r.degree
	}
	if family == "" {
		family = r.family
	}
	switch family {
	case pearson.FamilyPearson, pearson.FamilyNormal:
	default:
		return nil, fmt.Errorf("unknown family %q", family)
	}
	hash := momentfile.Hash(req.Moments, degree, family)

	r.mu.RLock()
	id, ok := r.byHash[hash]
	m := r.models[id]
	r.mu.RUnlock()
	if ok && m != nil {
		return m, nil
	}

	if r.store != nil {
		snap, err := r.store.ByHash(ctx, hash)
		if err != nil {
			r.logger.Warn().Err(err).Str("hash", hash).Msg("snapshot store lookup failed")
		} else if snap != nil {
			if m, err := r.restore(*snap); err == nil {
				if reg := r.register(m); reg != nil {
					r.metrics.CacheHit(tierStore)
					return reg, nil
				}
			}
		}
	}

	d, err := r.newDensity(req.Moments, degree, family)
	if err != nil {
		return nil, err
	}
	m = &Model{
		ID:        uuid.NewString(),
		Hash:      hash,
		Degree:    degree,
		Family:    family,
		CreatedAt: r.now().UTC(),
		density:   d,
	}
	registered := r.register(m)
	if registered == m {
		r.persist(ctx, m)
		r.logger.Info().Str("id", m.ID).Str("hash", hash).Int("degree", degree).Str("family", family).Msg("model built")
	}
	return registered, nil
}

func (r *Registry) newDensity(tb jointmom.Table, degree int, family string) (*denorig.Density, error) {
	opts := []denorig.Option{
		denorig.WithLogger(r.logger),
		denorig.WithApproximatorOptions(denappr.WithFitter(denappr.FamilyFitter(family))),
	}
	if r.metrics != nil {
		opts = append(opts, denorig.WithRepairObserver(r.metrics))
	}
	start := time.Now()
	d, err := denorig.New(tb, degree, opts...)
	r.metrics.ObserveBuild(family, time.Since(start), err)
	return d, err
}

// restore rebuilds a model from its snapshot, keeping id and creation time
func (r *Registry) restore(s persistence.Snapshot) (*Model, error) {
	d, err := r.newDensity(s.Moments, s.Degree, s.Family)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", s.ID, err)
	}
	return &Model{
		ID:        s.ID,
		Hash:      s.Hash,
		Degree:    s.Degree,
		Family:    s.Family,
		CreatedAt: s.CreatedAt,
		density:   d,
	}, nil
}

// register adds m unless a model with the same hash won a concurrent build,
// and returns the registered model. It returns nil when m.ID was deleted.
func (r *Registry) register(m *Model) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, gone := r.deleted[m.ID]; gone {
		return nil
	}
	if id, ok := r.byHash[m.Hash]; ok {
		if cur, ok := r.models[id]; ok {
			return cur
		}
	}
	r.models[m.ID] = m
	r.byHash[m.Hash] = m.ID
	r.metrics.SetActiveModels(len(r.models))
	return m
}

func cacheKey(id string) string { return "snapshot:" + id }

// persist pushes the snapshot to the cache and the store. Failures are
// logged; the model stays usable from memory.
func (r *Registry) persist(ctx context.Context, m *Model) {
	snap := m.Snapshot()
	if r.cache != nil {
		if data, err := json.Marshal(snap); err != nil {
			r.logger.Warn().Err(err).Str("id", m.ID).Msg("snapshot encoding failed")
		} else if err := r.cache.Set(ctx, cacheKey(m.ID), data, r.ttl); err != nil {
			r.logger.Warn().Err(err).Str("id", m.ID).Msg("snapshot cache write failed")
		}
	}
	if r.store != nil {
		if err := r.store.Upsert(ctx, snap); err != nil {
			r.logger.Warn().Err(err).Str("id", m.ID).Msg("snapshot store write failed")
		}
	}
}

// Get returns the model with id, restoring it from the cache or the store
// when it is not held in memory
func (r *Registry) Get(ctx context.Context, id string) (*Model, error) {
	r.mu.RLock()
	m, ok := r.models[id]
	r.mu.RUnlock()
	if ok {
		r.metrics.CacheHit(tierRegistry)
		return m, nil
	}
	r.metrics.CacheMiss(tierRegistry)
	if r.isDeleted(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if snap := r.fromCache(ctx, id); snap != nil {
		m, err := r.restore(*snap)
		if err == nil {
			if m = r.register(m); m == nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return m, nil
		}
		r.logger.Warn().Err(err).Str("id", id).Msg("cached snapshot unusable")
	}

	if r.store != nil {
		snap, err := r.store.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", id, err)
		}
		if snap != nil {
			r.metrics.CacheHit(tierStore)
			m, err := r.restore(*snap)
			if err != nil {
				return nil, err
			}
			if m = r.register(m); m == nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			r.persist(ctx, m)
			return m, nil
		}
		r.metrics.CacheMiss(tierStore)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Registry) fromCache(ctx context.Context, id string) *persistence.Snapshot {
	if r.cache == nil {
		return nil
	}
	data, found, err := r.cache.Get(ctx, cacheKey(id))
	if err != nil {
		r.logger.Warn().Err(err).Str("id", id).Msg("snapshot cache read failed")
		return nil
	}
	if !found {
		r.metrics.CacheMiss(tierCache)
		return nil
	}
	var snap persistence.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Warn().Err(err).Str("id", id).Msg("snapshot cache entry corrupt")
		return nil
	}
	r.metrics.CacheHit(tierCache)
	return &snap
}

// List returns snapshots of the models held in memory, oldest first
func (r *Registry) List() []persistence.Snapshot {
	r.mu.RLock()
	models := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	r.mu.RUnlock()

	sort.Slice(models, func(i, j int) bool {
		if !models[i].CreatedAt.Equal(models[j].CreatedAt) {
			return models[i].CreatedAt.Before(models[j].CreatedAt)
		}
		return models[i].ID < models[j].ID
	})
	out := make([]persistence.Snapshot, len(models))
	for i, m := range models {
		out[i] = m.Snapshot()
	}
	return out
}

// Delete removes the model from memory, the cache and the store. The id is
// remembered so a snapshot that survives in a remote tier is not restored.
// A store failure is returned; a cache failure is only logged.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	m, found := r.models[id]
	if found {
		delete(r.models, id)
		if r.byHash[m.Hash] == id {
			delete(r.byHash, m.Hash)
		}
		r.metrics.SetActiveModels(len(r.models))
	}
	_, already := r.deleted[id]
	r.deleted[id] = struct{}{}
	r.mu.Unlock()

	if r.cache != nil {
		key := cacheKey(id)
		if _, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			found = true
		}
		if err := r.cache.Delete(ctx, key); err != nil {
			r.logger.Warn().Err(err).Str("id", id).Msg("snapshot cache delete failed")
		}
	}

	var storeErr error
	if r.store != nil {
		ok, err := r.store.Delete(ctx, id)
		if err != nil {
			storeErr = fmt.Errorf("delete model %s: %w", id, err)
		}
		found = found || ok
	}

	if storeErr != nil {
		return storeErr
	}
	// a repeated delete retries remote cleanup but reports the id as gone
	if already {
		found = false
	}
	if !found {
		if !already {
			r.mu.Lock()
			delete(r.deleted, id)
			r.mu.Unlock()
		}
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.logger.Info().Str("id", id).Msg("model deleted")
	return nil
}

func (r *Registry) isDeleted(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, gone := r.deleted[id]
	return gone
}

// Joint evaluates the joint density of (v, y) under model id
func (r *Registry) Joint(ctx context.Context, id string, v, y bcast.Value) (bcast.Value, error) {
	m, err := r.Get(ctx, id)
	if err != nil {
		return bcast.Value{}, err
	}
	out, err := m.density.JointDensity(v, y)
	r.metrics.ObserveEval("joint", out.Len(), err)
	return out, err
}

// Conditional evaluates the density of y given v under model id
func (r *Registry) Conditional(ctx context.Context, id string, y, v bcast.Value, opts ...denorig.CondOption) (bcast.Value, error) {
	m, err := r.Get(ctx, id)
	if err != nil {
		return bcast.Value{}, err
	}
	out, err := m.density.ConditionalDensity(y, v, opts...)
	r.metrics.ObserveEval("conditional", out.Len(), err)
	return out, err
}
