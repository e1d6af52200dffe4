package media

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
)

// fakeBucket serves the path-style subset of the S3 API that S3Store uses.
type fakeBucket struct {
	name string

	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType string
}

type listResult struct {
	XMLName     xml.Name     `xml:"ListBucketResult"`
	Name        string       `xml:"Name"`
	Prefix      string       `xml:"Prefix"`
	KeyCount    int          `xml:"KeyCount"`
	MaxKeys     int          `xml:"MaxKeys"`
	IsTruncated bool         `xml:"IsTruncated"`
	Contents    []listObject `xml:"Contents"`
}

type listObject struct {
	Key  string `xml:"Key"`
	Size int    `xml:"Size"`
}

func newFakeBucket(t *testing.T, name string) (*fakeBucket, *httptest.Server) {
	t.Helper()
	b := &fakeBucket{name: name, objects: make(map[string]fakeObject)}
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)
	return b, server
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path != b.name && !strings.HasPrefix(path, b.name+"/") {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}
	key := strings.TrimPrefix(strings.TrimPrefix(path, b.name), "/")

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && key == "" && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		res := listResult{Name: b.name, Prefix: prefix, MaxKeys: 1000}
		for k, obj := range b.objects {
			if strings.HasPrefix(k, prefix) {
				res.Contents = append(res.Contents, listObject{Key: k, Size: len(obj.body)})
			}
		}
		sort.Slice(res.Contents, func(i, j int) bool { return res.Contents[i].Key < res.Contents[j].Key })
		res.KeyCount = len(res.Contents)
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(xml.Header))
		_ = xml.NewEncoder(w).Encode(res)
	case r.Method == http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		b.objects[key] = fakeObject{body: body, contentType: r.Header.Get("Content-Type")}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		obj, ok := b.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		_, _ = w.Write(obj.body)
	case r.Method == http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func (b *fakeBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header + "<Error><Code>" + code + "</Code><Message>" + code + "</Message></Error>"))
}

func newTestS3Store(t *testing.T, endpoint string, maxBytes int64) *S3Store {
	t.Helper()
	store, err := NewS3Store(context.Background(), S3Config{
		Endpoint:  endpoint,
		Bucket:    "quiz-media",
		AccessKey: "test",
		SecretKey: "test",
		MaxBytes:  maxBytes,
	})
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	return store
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3Config{Endpoint: "http://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected an error without a bucket")
	}
}

func TestS3StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket, server := newFakeBucket(t, "quiz-media")
	store := newTestS3Store(t, server.URL, 0)

	ref, err := store.Put(ctx, "session-1/A-1.mp4", "video/mp4", strings.NewReader("frames"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != "session-1/A-1.mp4" {
		t.Fatalf("unexpected ref %q", ref)
	}

	f, err := store.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Seek(2, io.SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}
	data, _ := io.ReadAll(f)
	if string(data) != "ames" || f.Size() != 6 || f.ContentType() != "video/mp4" {
		t.Fatalf("unexpected file data=%q size=%d type=%q", data, f.Size(), f.ContentType())
	}
	f.Close()

	path, release, err := store.LocalPath(ctx, ref)
	if err != nil {
		t.Fatalf("local path: %v", err)
	}
	onDisk, err := os.ReadFile(path)
	if err != nil || string(onDisk) != "frames" {
		t.Fatalf("expected spooled copy on disk, got %q %v", onDisk, err)
	}
	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected release to remove %s, got %v", path, err)
	}

	if got := bucket.keys(); len(got) != 1 || got[0] != ref {
		t.Fatalf("unexpected bucket contents %v", got)
	}
}

func TestS3StoreMissingObject(t *testing.T) {
	ctx := context.Background()
	_, server := newFakeBucket(t, "quiz-media")
	store := newTestS3Store(t, server.URL, 0)

	if _, err := store.Open(ctx, "session-1/none.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.LocalPath(ctx, "session-1/none.mp4"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from local path, got %v", err)
	}
}

func TestS3StoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	bucket, server := newFakeBucket(t, "quiz-media")
	store := newTestS3Store(t, server.URL, 0)

	for _, key := range []string{"s1/A-1.mp4", "s1/B-1.mp3", "s10/A-1.mp4", "s2/A-1.mp4"} {
		if _, err := store.Put(ctx, key, "video/mp4", strings.NewReader(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	if err := store.DeletePrefix(ctx, "s1/"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	got := bucket.keys()
	if len(got) != 2 || got[0] != "s10/A-1.mp4" || got[1] != "s2/A-1.mp4" {
		t.Fatalf("expected only other sessions to remain, got %v", got)
	}
}

func TestS3StoreRejectsOversizedUpload(t *testing.T) {
	bucket, server := newFakeBucket(t, "quiz-media")
	store := newTestS3Store(t, server.URL, 4)

	_, err := store.Put(context.Background(), "s1/A-1.mp4", "video/mp4", strings.NewReader("too long"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if got := bucket.keys(); len(got) != 0 {
		t.Fatalf("oversized file must not reach the bucket, got %v", got)
	}
}
