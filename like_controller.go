package clipfeed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haileyok/clipfeed/models"
	"github.com/prometheus/client_golang/prometheus"
)

// HasLiked reports whether the snapshot contains a like by the user on
// the post. Pure; callers pass whatever snapshot they rendered from.
func HasLiked(userID, postID string, likes []models.Like) bool {
	for _, lk := range likes {
		if lk.UserID == userID && lk.PostID == postID {
			return true
		}
	}
	return false
}

// LikeController owns the Idle -> Pending -> Idle cycle for each
// (user, post) like interaction. The pending flag is advisory: it is
// what the UI uses to disable the control, not a structural lock.
type LikeController struct {
	logger  *slog.Logger
	gateway RecordGateway
	session Session
	cache   *InteractionCache

	mu      sync.Mutex
	pending map[string]bool

	histogram *prometheus.HistogramVec
}

type LikeControllerArgs struct {
	Logger    *slog.Logger
	Gateway   RecordGateway
	Session   Session
	Cache     *InteractionCache
	Histogram *prometheus.HistogramVec
}

func NewLikeController(args *LikeControllerArgs) *LikeController {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	return &LikeController{
		logger:    args.Logger,
		gateway:   args.Gateway,
		session:   args.Session,
		cache:     args.Cache,
		pending:   make(map[string]bool),
		histogram: args.Histogram,
	}
}

// Pending reports whether a like mutation is in flight for the pair.
func (c *LikeController) Pending(userID, postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[userID+"/"+postID]
}

// LikeOrUnlike toggles the current user's like on the post. If the user
// has not liked it, one like record is created. If they have, every
// matching record in the current snapshot is deleted: duplicate likes
// are a tolerated data anomaly, and unliking removes all of them. Each
// deletion attempt is followed by its own refresh. Clicks landing while
// a mutation is already pending are dropped, matching a disabled
// control.
func (c *LikeController) LikeOrUnlike(ctx context.Context, postID string) error {
	user := c.session.CurrentUser()
	if user == nil {
		return ErrAuthRequired
	}

	key := user.UserID + "/" + postID

	c.mu.Lock()
	if c.pending[key] {
		c.mu.Unlock()
		return nil
	}
	c.pending[key] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}()

	if c.histogram != nil {
		start := time.Now()
		defer func() {
			c.histogram.WithLabelValues("like").Observe(time.Since(start).Seconds())
		}()
	}

	snapshot := c.cache.LikesFor(postID)

	if !HasLiked(user.UserID, postID, snapshot) {
		payload := map[string]any{
			"user_id":    user.UserID,
			"post_id":    postID,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		}
		if _, err := c.gateway.CreateRecord(ctx, models.KindLike, payload); err != nil {
			return &GatewayError{Op: "create like", Err: err}
		}
		return c.cache.RefreshLikes(ctx, postID)
	}

	var firstErr error
	for _, lk := range snapshot {
		if lk.UserID != user.UserID || lk.PostID != postID {
			continue
		}
		if err := c.gateway.DeleteRecord(ctx, models.KindLike, lk.ID); err != nil {
			c.logger.Error("failed to delete like", "like", lk.ID, "post", postID, "error", err)
			if firstErr == nil {
				firstErr = &GatewayError{Op: "delete like", Err: err}
			}
			continue
		}
		if err := c.cache.RefreshLikes(ctx, postID); err != nil {
			c.logger.Error("failed to refresh likes after delete", "post", postID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
