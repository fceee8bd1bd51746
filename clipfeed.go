package clipfeed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/haileyok/clipfeed/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecordFilter narrows a list query. A zero filter returns everything of
// the requested kind.
type RecordFilter struct {
	PostID string
}

// RecordGateway is the remote record/object store. The core treats it as
// an opaque async interface; implementations live outside this package.
// ListRecords must return records ordered by creation time descending.
type RecordGateway interface {
	CreateRecord(ctx context.Context, kind string, payload map[string]any) (*models.Record, error)
	UpdateRecord(ctx context.Context, kind, id string, payload map[string]any) (*models.Record, error)
	ListRecords(ctx context.Context, kind string, filter RecordFilter) ([]models.Record, error)
	DeleteRecord(ctx context.Context, kind, id string) error
	UploadObject(ctx context.Context, name string, blob []byte) (string, error)
	DeleteObject(ctx context.Context, objectID string) error
	ResolveObjectURL(objectID string) string
}

// Session gates mutations on an authenticated user and refreshes the
// user's own profile view after it changes.
type Session interface {
	CurrentUser() *models.UserSession
	Refresh(ctx context.Context) error
}

type Client struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	gateway RecordGateway
	session Session

	cache    *InteractionCache
	likes    *LikeController
	comments *CommentController
	posts    *PostController
	binder   *VisibilityBinder

	realtimeHost string
	cursor       string
	cursorFile   string
	metricsAddr  string

	confirm func(prompt string) bool

	mutationsHist *prometheus.HistogramVec
	eventsCounter *prometheus.CounterVec
}

type Args struct {
	Logger  *slog.Logger
	Gateway RecordGateway
	Session Session

	// RealtimeHost is the websocket endpoint for the gateway's record
	// event stream. Leave empty to disable realtime refresh.
	RealtimeHost string
	CursorFile   string
	MetricsAddr  string

	// Confirm gates irreversible actions (comment/post deletion). A nil
	// func means the caller handles confirmation itself.
	Confirm func(prompt string) bool

	// ExclusivePlayback pauses the previously playing video whenever a
	// new one starts. Off by default: the feed intentionally allows two
	// simultaneously visible cards to both play.
	ExclusivePlayback bool
}

func New(ctx context.Context, args *Args) (*Client, error) {
	if args.Gateway == nil {
		return nil, fmt.Errorf("a record gateway is required")
	}
	if args.Session == nil {
		return nil, fmt.Errorf("a session is required")
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	c := &Client{
		logger:       args.Logger,
		wg:           sync.WaitGroup{},
		gateway:      args.Gateway,
		session:      args.Session,
		realtimeHost: args.RealtimeHost,
		cursorFile:   args.CursorFile,
		metricsAddr:  args.MetricsAddr,
		confirm:      args.Confirm,
	}

	c.mutationsHist = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clipfeed_mutation_time",
		Help:    "histogram of record mutation round trips",
		Buckets: prometheus.ExponentialBucketsRange(0.0001, 30, 20),
	}, []string{"type"})

	c.eventsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clipfeed_realtime_events",
		Help: "realtime record events by kind and action",
	}, []string{"kind", "action"})

	c.cache = NewInteractionCache(&InteractionCacheArgs{
		Logger:                  c.logger,
		Gateway:                 c.gateway,
		PrometheusCounterPrefix: "clipfeed",
	})

	c.likes = NewLikeController(&LikeControllerArgs{
		Logger:    c.logger,
		Gateway:   c.gateway,
		Session:   c.session,
		Cache:     c.cache,
		Histogram: c.mutationsHist,
	})

	c.comments = NewCommentController(&CommentControllerArgs{
		Logger:    c.logger,
		Gateway:   c.gateway,
		Session:   c.session,
		Cache:     c.cache,
		Confirm:   c.confirm,
		Histogram: c.mutationsHist,
	})

	c.posts = NewPostController(&PostControllerArgs{
		Logger:    c.logger,
		Gateway:   c.gateway,
		Session:   c.session,
		Confirm:   c.confirm,
		Histogram: c.mutationsHist,
	})

	binderArgs := &VisibilityBinderArgs{Logger: c.logger}
	if args.ExclusivePlayback {
		binderArgs.Coordinator = NewExclusivePlayback()
	}
	c.binder = NewVisibilityBinder(binderArgs)

	return c, nil
}

func (c *Client) Cache() *InteractionCache     { return c.cache }
func (c *Client) Likes() *LikeController       { return c.likes }
func (c *Client) Comments() *CommentController { return c.comments }
func (c *Client) Posts() *PostController       { return c.posts }
func (c *Client) Binder() *VisibilityBinder    { return c.binder }
func (c *Client) Gateway() RecordGateway       { return c.gateway }

// NewPipeline builds a crop/upload pipeline for one profile editing
// surface. Pipelines are cheap; make a fresh one each time the edit
// overlay opens.
func (c *Client) NewPipeline(profileID string) *CropUploadPipeline {
	return NewCropUploadPipeline(&CropUploadPipelineArgs{
		Logger:    c.logger,
		Gateway:   c.gateway,
		Session:   c.session,
		ProfileID: profileID,
		Histogram: c.mutationsHist,
	})
}

// Run starts the metrics server and the realtime consumer and blocks
// until the context is cancelled.
func (c *Client) Run(baseCtx context.Context) error {
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	if c.metricsAddr != "" {
		metricsServer := http.NewServeMux()
		metricsServer.Handle("/metrics", promhttp.Handler())

		go func() {
			c.logger.Info("Starting metrics server")
			if err := http.ListenAndServe(c.metricsAddr, metricsServer); err != nil {
				c.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	if c.realtimeHost != "" {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.logger.Info("starting realtime consumer", "realtimeHost", c.realtimeHost)
			if err := c.startRealtime(ctx); err != nil {
				c.logger.Error("realtime consumer failed", "error", err)
			}
		}()
	}

	<-ctx.Done()

	c.binder.Close()
	c.wg.Wait()

	c.logger.Info("client shut down")

	return nil
}
