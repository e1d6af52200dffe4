// Package media keeps the bytes of the files selected at intake for as long
// as their session lives. A stored file is addressed by an opaque reference.
package media

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned for references that do not (or no longer) exist.
var ErrNotFound = errors.New("media not found")

// ErrTooLarge is returned by Put when the file exceeds the configured cap.
var ErrTooLarge = errors.New("media file too large")

// Store persists selected media files.
type Store interface {
	// Put stores r under key and returns the reference to play it back.
	Put(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	// Open returns a seekable reader for playback.
	Open(ctx context.Context, ref string) (File, error)
	// LocalPath materialises ref as a local file for tools such as ffmpeg.
	// The returned release func must be called when done.
	LocalPath(ctx context.Context, ref string) (string, func(), error)
	// DeletePrefix removes every object whose key starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

// File is a stored media file opened for reading.
type File interface {
	io.ReadSeekCloser
	Size() int64
	ContentType() string
}
