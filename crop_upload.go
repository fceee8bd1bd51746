package clipfeed

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/google/uuid"
	"github.com/haileyok/clipfeed/models"
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineState is where the crop/upload flow currently sits.
type PipelineState int

const (
	StateIdle PipelineState = iota
	StateFileSelected
	StateCropping
	StateUploading
	StateDone
	StateError
)

func (s PipelineState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFileSelected:
		return "file_selected"
	case StateCropping:
		return "cropping"
	case StateUploading:
		return "uploading"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CropRect is the captured crop geometry in source-image pixels.
type CropRect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// CropUploadPipeline runs one profile-image edit:
// select a file, adjust the crop, then submit. Submission crops the
// source, uploads the result as a new object, points the profile record
// at it, and refreshes the session. The replaced image object is left in
// storage. A failed submission keeps the file and crop so the user can
// retry without re-selecting.
type CropUploadPipeline struct {
	logger    *slog.Logger
	gateway   RecordGateway
	session   Session
	profileID string

	mu       sync.Mutex
	state    PipelineState
	file     []byte
	fileName string
	preview  string
	crop     *CropRect
	lastErr  error
	updating bool

	histogram *prometheus.HistogramVec

	// JPEGQuality for the cropped output. Zero means the default.
	JPEGQuality int
}

type CropUploadPipelineArgs struct {
	Logger    *slog.Logger
	Gateway   RecordGateway
	Session   Session
	ProfileID string
	Histogram *prometheus.HistogramVec
}

func NewCropUploadPipeline(args *CropUploadPipelineArgs) *CropUploadPipeline {
	if args.Logger == nil {
		args.Logger = slog.Default()
	}

	return &CropUploadPipeline{
		logger:    args.Logger,
		gateway:   args.Gateway,
		session:   args.Session,
		profileID: args.ProfileID,
		state:     StateIdle,
		histogram: args.Histogram,
	}
}

func (p *CropUploadPipeline) State() PipelineState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Preview is the local reference for the selected file, or empty when no
// file is selected.
func (p *CropUploadPipeline) Preview() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preview
}

func (p *CropUploadPipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SelectFile stores the raw image bytes and produces a local preview
// reference. Selecting while uploading is rejected.
func (p *CropUploadPipeline) SelectFile(name string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateUploading {
		return fmt.Errorf("cannot select a file while uploading")
	}

	p.file = data
	p.fileName = name
	p.preview = "local/" + uuid.NewString()
	p.crop = nil
	p.lastErr = nil
	p.state = StateFileSelected

	return nil
}

// ClearFile deselects the file and discards the preview and crop.
func (p *CropUploadPipeline) ClearFile() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateUploading {
		return
	}

	p.file = nil
	p.fileName = ""
	p.preview = ""
	p.crop = nil
	p.state = StateIdle
}

// SetCrop records the latest crop rectangle. Called on every adjustment,
// not just final submit; only the most recent rectangle is kept.
func (p *CropUploadPipeline) SetCrop(rect CropRect) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil || p.state == StateUploading {
		return
	}

	r := rect
	p.crop = &r
	p.state = StateCropping
}

// CropAndUpdateImage submits the edit. Missing file or crop fails
// immediately with a validation error and makes no gateway call. On
// failure mid-sequence the pipeline enters StateError with the file and
// crop preserved; submitting again retries.
func (p *CropUploadPipeline) CropAndUpdateImage(ctx context.Context) error {
	p.mu.Lock()

	if p.state == StateUploading {
		p.mu.Unlock()
		return nil
	}
	if p.file == nil {
		p.mu.Unlock()
		return &ValidationError{Field: "image", Message: "You have no file"}
	}
	if p.crop == nil {
		p.mu.Unlock()
		return &ValidationError{Field: "crop", Message: "You have no crop"}
	}

	user := p.session.CurrentUser()
	if user == nil {
		p.mu.Unlock()
		return ErrAuthRequired
	}

	file := p.file
	fileName := p.fileName
	crop := *p.crop
	quality := p.JPEGQuality
	p.state = StateUploading
	p.lastErr = nil
	p.mu.Unlock()

	if p.histogram != nil {
		start := time.Now()
		defer func() {
			p.histogram.WithLabelValues("profile_image").Observe(time.Since(start).Seconds())
		}()
	}

	blob, err := cropImage(file, crop, quality)
	if err != nil {
		return p.fail(fmt.Errorf("failed to crop image: %w", err))
	}

	objectID, err := p.gateway.UploadObject(ctx, uploadName(fileName), blob)
	if err != nil {
		return p.fail(&GatewayError{Op: "upload image", Err: err})
	}

	if _, err := p.gateway.UpdateRecord(ctx, models.KindProfile, p.profileID, map[string]any{
		"image": objectID,
	}); err != nil {
		return p.fail(&GatewayError{Op: "update profile image", Err: err})
	}

	if err := p.session.Refresh(ctx); err != nil {
		return p.fail(fmt.Errorf("failed to refresh session: %w", err))
	}

	p.mu.Lock()
	p.state = StateDone
	p.mu.Unlock()

	p.logger.Info("profile image updated", "profile", p.profileID, "object", objectID)

	return nil
}

// UpdateUserInfo is the non-cropped profile path: name and bio only,
// with its own idle -> updating -> idle cycle.
func (p *CropUploadPipeline) UpdateUserInfo(ctx context.Context, name, bio string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "A Username is required"}
	}

	if p.session.CurrentUser() == nil {
		return ErrAuthRequired
	}

	p.mu.Lock()
	if p.updating {
		p.mu.Unlock()
		return nil
	}
	p.updating = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.updating = false
		p.mu.Unlock()
	}()

	if p.histogram != nil {
		start := time.Now()
		defer func() {
			p.histogram.WithLabelValues("profile_info").Observe(time.Since(start).Seconds())
		}()
	}

	if _, err := p.gateway.UpdateRecord(ctx, models.KindProfile, p.profileID, map[string]any{
		"name": name,
		"bio":  bio,
	}); err != nil {
		return &GatewayError{Op: "update profile", Err: err}
	}

	if err := p.session.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to refresh session: %w", err)
	}

	return nil
}

// Updating reports whether a name/bio update is in flight.
func (p *CropUploadPipeline) Updating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.updating
}

func (p *CropUploadPipeline) fail(err error) error {
	p.mu.Lock()
	p.state = StateError
	p.lastErr = err
	p.mu.Unlock()

	p.logger.Error("crop/upload pipeline failed", "profile", p.profileID, "error", err)

	return err
}

// cropImage decodes the source, clips the crop rectangle to its bounds,
// and re-encodes the cropped region as JPEG.
func cropImage(data []byte, crop CropRect, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if crop.Width <= 0 || crop.Height <= 0 {
		return nil, fmt.Errorf("crop rectangle has no area")
	}

	rect := image.Rect(crop.X, crop.Y, crop.X+crop.Width, crop.Y+crop.Height)
	rect = rect.Intersect(src.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("crop rectangle is outside the image")
	}

	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)

	if quality == 0 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}

	return buf.Bytes(), nil
}

func uploadName(fileName string) string {
	base := fileName
	if i := strings.LastIndex(fileName, "."); i > 0 {
		base = fileName[:i]
	}
	if base == "" {
		base = "profile"
	}
	return base + "-" + uuid.NewString() + ".jpg"
}
