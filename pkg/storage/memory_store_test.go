package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Put(ctx, "pictures/alice/profile_picture", strings.NewReader("png-bytes"), 9, "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	obj, err := s.Get(ctx, "pictures/alice/profile_picture")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	if string(data) != "png-bytes" || obj.ContentType != "image/png" || obj.Size != 9 {
		t.Fatalf("unexpected object: %q %+v", data, obj)
	}

	if err := s.Delete(ctx, "pictures/alice/profile_picture"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "pictures/alice/profile_picture"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMemoryStoreRejectsSizeMismatch(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put(context.Background(), "k", strings.NewReader("abc"), 5, "text/plain"); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}
