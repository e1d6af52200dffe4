package thumbnail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FFmpegOpener backs Sources with ffprobe (metadata) and ffmpeg (frames).
type FFmpegOpener struct {
	FFmpegBin  string
	FFprobeBin string
}

func NewFFmpegOpener(ffmpegBin, ffprobeBin string) *FFmpegOpener {
	if strings.TrimSpace(ffmpegBin) == "" {
		ffmpegBin = "ffmpeg"
	}
	if probe := resolveFFprobeBin(ffprobeBin, ffmpegBin, os.Stat); probe != "" {
		ffprobeBin = probe
	} else {
		ffprobeBin = "ffprobe"
	}
	return &FFmpegOpener{FFmpegBin: ffmpegBin, FFprobeBin: ffprobeBin}
}

func (o *FFmpegOpener) Open(_ context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return &ffmpegSource{opener: o, path: path}, nil
}

// resolveFFprobeBin prefers an explicit ffprobe, then one next to a concrete
// ffmpeg path. Empty means "use PATH".
func resolveFFprobeBin(ffprobeBin, ffmpegBin string, stat func(string) (os.FileInfo, error)) string {
	if ffprobeBin = strings.TrimSpace(ffprobeBin); ffprobeBin != "" {
		return ffprobeBin
	}
	ffmpegBin = strings.TrimSpace(ffmpegBin)
	if !strings.ContainsRune(ffmpegBin, '/') || filepath.Base(ffmpegBin) != "ffmpeg" {
		return ""
	}
	candidate := filepath.Join(filepath.Dir(ffmpegBin), "ffprobe")
	if fi, err := stat(candidate); err == nil && fi != nil && !fi.IsDir() {
		return candidate
	}
	return ""
}

// ffmpegSource emulates a paused video element: Seek decodes the frame at the
// requested position and makes it current; Frame returns it, or the first
// frame if no seek completed.
type ffmpegSource struct {
	opener  *FFmpegOpener
	path    string
	current image.Image
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (s *ffmpegSource) Metadata(ctx context.Context) (Metadata, error) {
	cmd := exec.CommandContext(ctx, s.opener.FFprobeBin,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		s.path,
	)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		return Metadata{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (Metadata, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return Metadata{}, fmt.Errorf("ffprobe output: %w", err)
	}
	if len(probe.Streams) == 0 {
		return Metadata{}, errors.New("ffprobe: no video stream")
	}
	meta := Metadata{Width: probe.Streams[0].Width, Height: probe.Streams[0].Height}
	if d, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64); err == nil {
		meta.Duration = d
	}
	return meta, nil
}

func (s *ffmpegSource) Seek(ctx context.Context, seconds float64) error {
	frame, err := s.extract(ctx, seconds)
	if err != nil {
		return err
	}
	s.current = frame
	return nil
}

func (s *ffmpegSource) Frame(ctx context.Context) (image.Image, error) {
	if s.current != nil {
		return s.current, nil
	}
	frame, err := s.extract(ctx, 0)
	if err != nil {
		return nil, err
	}
	s.current = frame
	return frame, nil
}

func (s *ffmpegSource) Close() error {
	s.current = nil
	return nil
}

func (s *ffmpegSource) extract(ctx context.Context, seconds float64) (image.Image, error) {
	cmd := exec.CommandContext(ctx, s.opener.FFmpegBin,
		"-v", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg: no frame at %.3fs", seconds)
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}
