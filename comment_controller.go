package clipfeed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haileyok/clipfeed/models"
	"github.com/prometheus/client_golang/prometheus"
)

// CanDeleteComment is the display-layer check for showing the delete
// control: viewers may only delete their own comments. It is not a
// security boundary; the gateway authorizes independently.
func CanDeleteComment(viewer *models.UserSession, comment models.Comment) bool {
	return viewer != nil && viewer.UserID == comment.UserID
}

type CommentController struct {
	logger  *slog.Logger
	gateway RecordGateway
	session Session
	cache   *InteractionCache
	confirm func(prompt string) bool

	mu      sync.Mutex
	pending map[string]bool

	histogram *prometheus.HistogramVec
}

type CommentControllerArgs struct {
	Logger  *slog.Logger
	Gateway RecordGateway
	Session Session
	Cache   *InteractionCache

	// Confirm gates comment deletion. Nil means deletion proceeds
	// unprompted; inject a real prompt in interactive surfaces.
	Confirm   func(prompt string) bool
	Histogram *prometheus.HistogramVec
}

func NewCommentController(args *CommentControllerArgs) *CommentController {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	return &CommentController{
		logger:    args.Logger,
		gateway:   args.Gateway,
		session:   args.Session,
		cache:     args.Cache,
		confirm:   args.Confirm,
		pending:   make(map[string]bool),
		histogram: args.Histogram,
	}
}

// Pending reports whether a comment submission is in flight for the post.
func (c *CommentController) Pending(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[postID]
}

// AddComment creates a comment by the current user on the post and then
// refreshes the post's comment list. Resubmission while pending is
// dropped, matching a disabled submit control.
func (c *CommentController) AddComment(ctx context.Context, postID, text string) error {
	user := c.session.CurrentUser()
	if user == nil {
		return ErrAuthRequired
	}

	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "comment", Message: "A comment is required"}
	}

	c.mu.Lock()
	if c.pending[postID] {
		c.mu.Unlock()
		return nil
	}
	c.pending[postID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, postID)
		c.mu.Unlock()
	}()

	if c.histogram != nil {
		start := time.Now()
		defer func() {
			c.histogram.WithLabelValues("comment").Observe(time.Since(start).Seconds())
		}()
	}

	payload := map[string]any{
		"user_id":    user.UserID,
		"post_id":    postID,
		"text":       text,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if _, err := c.gateway.CreateRecord(ctx, models.KindComment, payload); err != nil {
		return &GatewayError{Op: "create comment", Err: err}
	}

	return c.cache.RefreshComments(ctx, postID)
}

// DeleteComment removes a comment after the irreversible-action prompt
// and refreshes the post's comment list. A declined prompt is a no-op.
func (c *CommentController) DeleteComment(ctx context.Context, commentID, postID string) error {
	if c.confirm != nil && !c.confirm("Are you sure you want to delete this comment?") {
		return nil
	}

	if c.histogram != nil {
		start := time.Now()
		defer func() {
			c.histogram.WithLabelValues("delete_comment").Observe(time.Since(start).Seconds())
		}()
	}

	if err := c.gateway.DeleteRecord(ctx, models.KindComment, commentID); err != nil {
		return &GatewayError{Op: "delete comment", Err: err}
	}

	return c.cache.RefreshComments(ctx, postID)
}
