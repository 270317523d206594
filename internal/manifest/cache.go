package manifest

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/partwise/partwise/internal/metrics"
	"github.com/partwise/partwise/internal/notify"
	"github.com/partwise/partwise/internal/partition"
)

// CacheConfig configures a SnapshotCache.
type CacheConfig struct {
	// TTL bounds how long a snapshot is served without reloading it.
	TTL time.Duration
	// Capacity bounds the number of cached tables; 0 means unbounded.
	Capacity uint64
}

// DefaultCacheConfig returns the cache defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 30 * time.Second, Capacity: 1024}
}

// SnapshotCache serves partitioning specs from memory in front of a
// SpecReader. Cached specs are immutable and are replaced whole, never updated
// in place. Subscribing it to a Notifier drops entries as soon as the catalog
// commits a change; the TTL bounds staleness for changes made by other
// processes.
type SnapshotCache struct {
	reader SpecReader
	cache  *ttlcache.Cache[string, *partition.Spec]
	logger *zap.Logger

	mu       sync.Mutex
	notifier *notify.Notifier
	sub      *notify.Subscriber
	done     chan struct{}
}

// NewSnapshotCache creates a cache over reader and starts its expiry loop.
func NewSnapshotCache(reader SpecReader, cfg CacheConfig, logger *zap.Logger) *SnapshotCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []ttlcache.Option[string, *partition.Spec]{
		ttlcache.WithTTL[string, *partition.Spec](cfg.TTL),
		ttlcache.WithDisableTouchOnHit[string, *partition.Spec](),
	}
	if cfg.Capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, *partition.Spec](cfg.Capacity))
	}

	c := &SnapshotCache{
		reader: reader,
		cache:  ttlcache.New[string, *partition.Spec](opts...),
		logger: logger,
	}
	go c.cache.Start()
	return c
}

// GetPartitioningSpec returns the cached snapshot of tableID, loading it on a
// miss. Errors are not cached.
func (c *SnapshotCache) GetPartitioningSpec(ctx context.Context, tableID string) (*partition.Spec, error) {
	if item := c.cache.Get(tableID); item != nil {
		return item.Value(), nil
	}
	spec, err := c.reader.GetPartitioningSpec(ctx, tableID)
	if err != nil {
		return nil, err
	}
	c.cache.Set(tableID, spec, ttlcache.DefaultTTL)
	metrics.CachedSnapshots.Set(float64(c.cache.Len()))
	return spec, nil
}

// Put installs spec as the current snapshot of its table unless a newer
// version is already cached.
func (c *SnapshotCache) Put(spec *partition.Spec) {
	if item := c.cache.Get(spec.TableID); item != nil && item.Value().Version > spec.Version {
		return
	}
	c.cache.Set(spec.TableID, spec, ttlcache.DefaultTTL)
}

// Invalidate drops tableID's snapshot.
func (c *SnapshotCache) Invalidate(tableID string) {
	c.cache.Delete(tableID)
	metrics.CachedSnapshots.Set(float64(c.cache.Len()))
}

// Len returns the number of cached snapshots.
func (c *SnapshotCache) Len() int {
	return c.cache.Len()
}

// Watch invalidates entries on every change published to n until Close.
func (c *SnapshotCache) Watch(n *notify.Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return
	}
	c.notifier = n
	c.sub = n.SubscribeAutoID()
	c.done = make(chan struct{})

	go func(ch <-chan notify.Notification, done chan struct{}) {
		defer close(done)
		for notif := range ch {
			c.Invalidate(notif.TableID)
			c.logger.Debug("snapshot invalidated",
				zap.String("table", notif.TableID),
				zap.Stringer("change", notif.Type),
				zap.Int64("version", notif.Version))
		}
	}(c.sub.Ch, c.done)
}

// Close stops the expiry loop and the change subscription.
func (c *SnapshotCache) Close() {
	c.mu.Lock()
	sub, done := c.sub, c.done
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		c.notifier.Unsubscribe(sub.ID)
		<-done
	}
	c.cache.Stop()
}
