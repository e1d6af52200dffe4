// Package thumbnail derives a single still preview from a video at a
// pseudo-random point of its timeline.
//
// Every wait in the pipeline is bounded. A metadata timeout aborts the
// capture; a seek timeout only means the current frame gets drawn.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
	"media-quiz-service/internal/metrics"
)

const (
	// MinTimestamp keeps captures off the (often black) leading frames.
	MinTimestamp = 0.05
	// FallbackTimestamp is where a failed seek is retried.
	FallbackTimestamp = 0.5

	windowStart = 0.05
	windowWidth = 0.90
)

var (
	// ErrMetadataTimeout means duration/dimensions never became available.
	ErrMetadataTimeout = errors.New("thumbnail: metadata not ready in time")
	// ErrSeekFailed means both the random seek and the fallback seek failed.
	ErrSeekFailed = errors.New("thumbnail: seek failed")
)

// Metadata is what a Source reports once it is ready to seek.
type Metadata struct {
	Duration float64 // seconds; zero or non-finite when unknown
	Width    int
	Height   int
}

// Source is a video handle the capturer drives: wait for metadata, seek, draw.
type Source interface {
	Metadata(ctx context.Context) (Metadata, error)
	Seek(ctx context.Context, seconds float64) error
	// Frame returns the currently visible frame.
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Opener binds a local media file to a Source.
type Opener interface {
	Open(ctx context.Context, path string) (Source, error)
}

// Options tune the capture pipeline. Zero values fall back to defaults.
type Options struct {
	MetadataTimeout time.Duration
	SeekTimeout     time.Duration
	DrawTimeout     time.Duration
	MaxWidth        int
	MaxHeight       int
	Quality         int

	// Rand returns a uniform value in [0, 1); defaults to math/rand/v2.
	Rand func() float64
}

func (o Options) withDefaults() Options {
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = 3 * time.Second
	}
	if o.SeekTimeout <= 0 {
		o.SeekTimeout = 1500 * time.Millisecond
	}
	if o.DrawTimeout <= 0 {
		o.DrawTimeout = 3 * time.Second
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = 640
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 360
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 80
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	return o
}

// Result is a captured still.
type Result struct {
	JPEG         []byte
	Timestamp    float64 // where the capture was attempted
	Width        int
	Height       int
	SeekTimedOut bool
	Retried      bool
}

// Capturer runs the capture pipeline against Sources produced by an Opener.
type Capturer struct {
	opener Opener
	opts   Options
	logger zerolog.Logger
}

func NewCapturer(opener Opener, opts Options, logger zerolog.Logger) *Capturer {
	return &Capturer{opener: opener, opts: opts.withDefaults(), logger: logger}
}

// CaptureTimestamp maps a uniform u in [0,1) into the inner 90% of the
// timeline with a 0.05s floor. Unknown or non-positive durations count as 1s.
func CaptureTimestamp(duration, u float64) float64 {
	duration = normalizeDuration(duration)
	return math.Max(MinTimestamp, duration*(windowStart+u*windowWidth))
}

// FallbackSeek is the retry position: 0.5s, kept just below the end.
func FallbackSeek(duration float64) float64 {
	duration = normalizeDuration(duration)
	return math.Max(0, math.Min(FallbackTimestamp, duration-0.01))
}

// Capture produces a JPEG still for the video at path. Any error means the
// caller should treat the thumbnail as absent; it is never fatal to intake.
func (c *Capturer) Capture(ctx context.Context, path string) (Result, error) {
	res, err := c.capture(ctx, path)
	switch {
	case err == nil && res.Retried:
		metrics.ThumbnailCaptures.WithLabelValues("seek_retry").Inc()
	case err == nil:
		metrics.ThumbnailCaptures.WithLabelValues("ok").Inc()
	case errors.Is(err, context.Canceled):
		metrics.ThumbnailCaptures.WithLabelValues("superseded").Inc()
	case errors.Is(err, ErrMetadataTimeout):
		metrics.ThumbnailCaptures.WithLabelValues("metadata_timeout").Inc()
	default:
		metrics.ThumbnailCaptures.WithLabelValues("failed").Inc()
	}
	return res, err
}

func (c *Capturer) capture(ctx context.Context, path string) (Result, error) {
	src, err := c.opener.Open(ctx, path)
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: open: %w", err)
	}
	defer src.Close()

	meta, err := c.awaitMetadata(ctx, src)
	if err != nil {
		return Result{}, err
	}

	res := Result{Timestamp: CaptureTimestamp(meta.Duration, c.opts.Rand())}
	timedOut, err := c.seek(ctx, src, res.Timestamp, meta.Duration)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		c.logger.Debug().Err(err).Float64("t", res.Timestamp).Msg("seek failed, retrying at fallback")
		res.Retried = true
		res.Timestamp = FallbackSeek(meta.Duration)
		timedOut, err = c.seek(ctx, src, res.Timestamp, meta.Duration)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			return Result{}, fmt.Errorf("%w: %v", ErrSeekFailed, err)
		}
	}
	res.SeekTimedOut = timedOut

	drawCtx, cancel := context.WithTimeout(ctx, c.opts.DrawTimeout)
	defer cancel()
	frame, err := src.Frame(drawCtx)
	if err != nil {
		return Result{}, fmt.Errorf("thumbnail: draw: %w", err)
	}

	res.Width, res.Height = c.rasterSize(meta, frame)
	res.JPEG, err = encode(frame, res.Width, res.Height, c.opts.Quality)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func (c *Capturer) awaitMetadata(ctx context.Context, src Source) (Metadata, error) {
	metaCtx, cancel := context.WithTimeout(ctx, c.opts.MetadataTimeout)
	defer cancel()
	meta, err := src.Metadata(metaCtx)
	if err == nil {
		return meta, nil
	}
	if ctx.Err() != nil {
		return Metadata{}, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Metadata{}, ErrMetadataTimeout
	}
	return Metadata{}, fmt.Errorf("thumbnail: metadata: %w", err)
}

// seek reports timedOut=true when the seek did not complete in time; the
// pipeline then proceeds with the current frame.
func (c *Capturer) seek(ctx context.Context, src Source, t, duration float64) (timedOut bool, err error) {
	seekCtx, cancel := context.WithTimeout(ctx, c.opts.SeekTimeout)
	defer cancel()
	target := math.Max(0, math.Min(t, normalizeDuration(duration)-0.01))
	err = src.Seek(seekCtx, target)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		c.logger.Debug().Float64("t", target).Msg("seek did not complete in time, drawing current frame")
		return true, nil
	}
	return false, err
}

func (c *Capturer) rasterSize(meta Metadata, frame image.Image) (int, int) {
	w, h := meta.Width, meta.Height
	if w <= 0 || h <= 0 {
		b := frame.Bounds()
		w, h = b.Dx(), b.Dy()
	}
	if w <= 0 || w > c.opts.MaxWidth {
		w = c.opts.MaxWidth
	}
	if h <= 0 || h > c.opts.MaxHeight {
		h = c.opts.MaxHeight
	}
	return w, h
}

func encode(frame image.Image, w, h, quality int) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), frame, frame.Bounds(), draw.Over, nil)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("thumbnail: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func normalizeDuration(d float64) float64 {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 1
	}
	return d
}
