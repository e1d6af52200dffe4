package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"media-quiz-service/internal/domain"
)

func newTestStore(t *testing.T, ttl time.Duration) (*SessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionStore(client, ttl), mr
}

func testSession(id string) domain.QuizSession {
	s := domain.QuizSession{
		ID:           id,
		CorrectLabel: domain.LabelC,
		PlayOrder:    [domain.SlotCount]domain.Label{domain.LabelB, domain.LabelD, domain.LabelA, domain.LabelC},
		CreatedAt:    time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
	}
	for i, l := range domain.Labels {
		s.Slots[i] = domain.MediaSlot{Label: l, SourceRef: id + "/" + string(l), ContentType: "video/mp4", Kind: domain.KindVideo}
	}
	s.Slots[1].Thumbnail = []byte{0xff, 0xd8, 0xff}
	return s
}

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)

	if err := store.Create(ctx, testSession("tab-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !mr.Exists("quiz:session:tab-1") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:session:tab-1"); ttl != time.Minute {
		t.Fatalf("expected ttl 1m, got %v", ttl)
	}

	got, err := store.Get(ctx, "tab-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.PlayOrder != testSession("tab-1").PlayOrder || string(got.Slots[1].Thumbnail) != "\xff\xd8\xff" {
		t.Fatalf("record did not round trip: %+v", got)
	}

	if err := store.Delete(ctx, "tab-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if mr.Exists("quiz:session:tab-1") {
		t.Fatalf("expected redis key to be removed")
	}
	if err := store.Delete(ctx, "tab-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreExpires(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)
	_ = store.Create(ctx, testSession("tab-1"))

	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "tab-1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestSessionStoreCorruptRecord(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, time.Minute)
	if err := mr.Set("quiz:session:tab-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.Get(ctx, "tab-1"); !errors.Is(err, domain.ErrSessionCorrupt) {
		t.Fatalf("expected corrupt error from get, got %v", err)
	}
	_, err := store.Update(ctx, "tab-1", func(*domain.QuizSession) error { return nil })
	if !errors.Is(err, domain.ErrSessionCorrupt) {
		t.Fatalf("expected corrupt error from update, got %v", err)
	}
}

func TestSessionStoreUpdate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Minute)
	_ = store.Create(ctx, testSession("tab-1"))

	_, err := store.Update(ctx, "tab-1", func(s *domain.QuizSession) error {
		s.PlayCursor = 2
		return domain.ErrWrongPhase
	})
	if !errors.Is(err, domain.ErrWrongPhase) {
		t.Fatalf("expected fn error, got %v", err)
	}
	got, _ := store.Get(ctx, "tab-1")
	if got.PlayCursor != 0 {
		t.Fatalf("expected failed update to write nothing, cursor=%d", got.PlayCursor)
	}

	updated, err := store.Update(ctx, "tab-1", func(s *domain.QuizSession) error {
		s.MarkPlayed(domain.LabelB)
		s.PlayCursor = 1
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, _ = store.Get(ctx, "tab-1")
	if got.PlayCursor != 1 || !got.PlayedFlags[1] || updated.PlayCursor != 1 {
		t.Fatalf("update not persisted: %+v", got)
	}

	if _, err := store.Update(ctx, "missing", func(*domain.QuizSession) error { return nil }); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, time.Minute)
	_ = store.Create(ctx, testSession("tab-1"))

	var wg sync.WaitGroup
	for _, l := range domain.Labels {
		wg.Add(1)
		go func(l domain.Label) {
			defer wg.Done()
			if _, err := store.Update(ctx, "tab-1", func(s *domain.QuizSession) error {
				s.MarkPlayed(l)
				return nil
			}); err != nil {
				t.Errorf("update %s: %v", l, err)
			}
		}(l)
	}
	wg.Wait()

	got, _ := store.Get(ctx, "tab-1")
	if !got.AllPlayed() {
		t.Fatalf("expected all four updates to land, got %v", got.PlayedFlags)
	}
}
