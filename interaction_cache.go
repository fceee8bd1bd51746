package clipfeed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haileyok/clipfeed/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheUpdate tells subscribers that a post's entry was replaced.
type CacheUpdate struct {
	PostID string
	Kind   string // "comments" or "likes"
}

// InteractionCache holds the fetch-derived comment and like lists for
// each post. Entries are replaced wholesale on refresh, never patched,
// and live for the lifetime of the cache. It is the single source of
// truth for rendering and the only mutable state shared across views.
type InteractionCache struct {
	logger  *slog.Logger
	gateway RecordGateway

	mu      sync.Mutex
	entries map[string]*cacheEntry
	subs    map[string]map[int]chan<- CacheUpdate
	nextSub int

	refreshCounter *prometheus.CounterVec
}

type cacheEntry struct {
	comments []models.Comment
	likes    []models.Like

	// Monotonic refresh tokens. A response is applied only if no newer
	// refresh for the same entry was issued while it was in flight.
	commentSeq uint64
	likeSeq    uint64
}

type InteractionCacheArgs struct {
	Logger                  *slog.Logger
	Gateway                 RecordGateway
	PrometheusCounterPrefix string
}

func NewInteractionCache(args *InteractionCacheArgs) *InteractionCache {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	cache := &InteractionCache{
		logger:  args.Logger,
		gateway: args.Gateway,
		entries: make(map[string]*cacheEntry),
		subs:    make(map[string]map[int]chan<- CacheUpdate),
	}

	if args.PrometheusCounterPrefix != "" {
		cache.refreshCounter = promauto.NewCounterVec(prometheus.CounterOpts{
			Name:      "cache_refreshes",
			Namespace: args.PrometheusCounterPrefix,
			Help:      "total cache refreshes by kind and status",
		}, []string{"kind", "status"})
	} else {
		args.Logger.Info("no prometheus prefix provided, no metrics will be registered for this cache")
	}

	return cache
}

// CommentsFor returns the comments from the last completed fetch for the
// post, or nil if the post was never fetched. The returned
// slice is never mutated in place; refreshes swap in a new one.
func (c *InteractionCache) CommentsFor(postID string) []models.Comment {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[postID]
	if !ok {
		return nil
	}
	return e.comments
}

// LikesFor is the like-side counterpart of CommentsFor. Order is
// irrelevant for likes; membership is what matters.
func (c *InteractionCache) LikesFor(postID string) []models.Like {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[postID]
	if !ok {
		return nil
	}
	return e.likes
}

// RefreshComments fetches the full comment list for the post and
// replaces the cache entry. Responses made stale by a newer refresh are
// discarded. Cancel the context on view unmount to abandon the fetch.
func (c *InteractionCache) RefreshComments(ctx context.Context, postID string) error {
	c.mu.Lock()
	e := c.entry(postID)
	e.commentSeq++
	tok := e.commentSeq
	c.mu.Unlock()

	recs, err := c.gateway.ListRecords(ctx, models.KindComment, RecordFilter{PostID: postID})
	if err != nil {
		c.countRefresh("comments", "failed")
		return &GatewayError{Op: "list comments", Err: err}
	}

	comments := make([]models.Comment, 0, len(recs))
	for _, rec := range recs {
		cm, err := models.CommentFromRecord(rec)
		if err != nil {
			c.logger.Warn("skipping undecodable comment record", "record", rec.ID, "error", err)
			continue
		}
		comments = append(comments, cm)
	}

	c.mu.Lock()
	if tok != e.commentSeq {
		c.mu.Unlock()
		c.logger.Debug("discarding stale comment refresh", "post", postID, "token", tok)
		c.countRefresh("comments", "stale")
		return nil
	}
	e.comments = comments
	c.mu.Unlock()

	c.countRefresh("comments", "ok")
	c.notify(postID, "comments")

	return nil
}

// RefreshLikes is the like-side counterpart of RefreshComments.
func (c *InteractionCache) RefreshLikes(ctx context.Context, postID string) error {
	c.mu.Lock()
	e := c.entry(postID)
	e.likeSeq++
	tok := e.likeSeq
	c.mu.Unlock()

	recs, err := c.gateway.ListRecords(ctx, models.KindLike, RecordFilter{PostID: postID})
	if err != nil {
		c.countRefresh("likes", "failed")
		return &GatewayError{Op: "list likes", Err: err}
	}

	likes := make([]models.Like, 0, len(recs))
	for _, rec := range recs {
		lk, err := models.LikeFromRecord(rec)
		if err != nil {
			c.logger.Warn("skipping undecodable like record", "record", rec.ID, "error", err)
			continue
		}
		likes = append(likes, lk)
	}

	c.mu.Lock()
	if tok != e.likeSeq {
		c.mu.Unlock()
		c.logger.Debug("discarding stale like refresh", "post", postID, "token", tok)
		c.countRefresh("likes", "stale")
		return nil
	}
	e.likes = likes
	c.mu.Unlock()

	c.countRefresh("likes", "ok")
	c.notify(postID, "likes")

	return nil
}

// Subscribe registers a channel to receive updates for one post's entry.
// Sends never block; a full channel drops the update, and the subscriber
// is expected to re-read the cache anyway. The returned func must be
// called on view unmount.
func (c *InteractionCache) Subscribe(postID string, ch chan<- CacheUpdate) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs[postID] == nil {
		c.subs[postID] = make(map[int]chan<- CacheUpdate)
	}
	id := c.nextSub
	c.nextSub++
	c.subs[postID][id] = ch

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[postID], id)
		if len(c.subs[postID]) == 0 {
			delete(c.subs, postID)
		}
	}
}

// Tracked reports whether the post has a cache entry, meaning some view
// fetched it at least once this session.
func (c *InteractionCache) Tracked(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[postID]
	return ok
}

// entry returns the cache entry for the post, creating it on first use.
// Caller must hold mu.
func (c *InteractionCache) entry(postID string) *cacheEntry {
	e, ok := c.entries[postID]
	if !ok {
		e = &cacheEntry{}
		c.entries[postID] = e
	}
	return e
}

func (c *InteractionCache) notify(postID, kind string) {
	c.mu.Lock()
	chans := make([]chan<- CacheUpdate, 0, len(c.subs[postID]))
	for _, ch := range c.subs[postID] {
		chans = append(chans, ch)
	}
	c.mu.Unlock()

	update := CacheUpdate{PostID: postID, Kind: kind}
	for _, ch := range chans {
		select {
		case ch <- update:
		default:
		}
	}
}

func (c *InteractionCache) countRefresh(kind, status string) {
	if c.refreshCounter == nil {
		return
	}
	c.refreshCounter.WithLabelValues(kind, status).Inc()
}
