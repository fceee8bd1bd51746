package clipfeed

import (
	"context"
	"log/slog"
	"time"

	"github.com/haileyok/clipfeed/models"
	"github.com/prometheus/client_golang/prometheus"
)

// PostController covers the one post mutation the client performs:
// deletion by the author. Posts are otherwise immutable from the client.
type PostController struct {
	logger    *slog.Logger
	gateway   RecordGateway
	session   Session
	confirm   func(prompt string) bool
	histogram *prometheus.HistogramVec
}

type PostControllerArgs struct {
	Logger    *slog.Logger
	Gateway   RecordGateway
	Session   Session
	Confirm   func(prompt string) bool
	Histogram *prometheus.HistogramVec
}

func NewPostController(args *PostControllerArgs) *PostController {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	return &PostController{
		logger:    args.Logger,
		gateway:   args.Gateway,
		session:   args.Session,
		confirm:   args.Confirm,
		histogram: args.Histogram,
	}
}

// CanDeletePost is the display-layer authorship check for the delete
// control.
func CanDeletePost(viewer *models.UserSession, post models.Post) bool {
	return viewer != nil && viewer.UserID == post.UserID
}

// DeletePost removes the post record and its video object after the
// irreversible-action prompt. The video object is deleted here, unlike
// replaced profile images, which are left in storage.
func (c *PostController) DeletePost(ctx context.Context, postID, videoObjectID string) error {
	if c.session.CurrentUser() == nil {
		return ErrAuthRequired
	}

	if c.confirm != nil && !c.confirm("Are you sure you want to delete this post?") {
		return nil
	}

	if c.histogram != nil {
		start := time.Now()
		defer func() {
			c.histogram.WithLabelValues("delete_post").Observe(time.Since(start).Seconds())
		}()
	}

	if err := c.gateway.DeleteRecord(ctx, models.KindPost, postID); err != nil {
		return &GatewayError{Op: "delete post", Err: err}
	}

	if videoObjectID != "" {
		if err := c.gateway.DeleteObject(ctx, videoObjectID); err != nil {
			// The record is already gone; the orphaned object stays in storage.
			c.logger.Error("failed to delete post video object", "object", videoObjectID, "error", err)
			return &GatewayError{Op: "delete video object", Err: err}
		}
	}

	return nil
}
