package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/danielpatrickdp/binder-design/go-runner/internal/config"
)

func TestObjectKey(t *testing.T) {
	if got := objectKey(" exp1 ", "/summary.json"); got != "exp1/summary.json" {
		t.Fatalf("objectKey = %q", got)
	}
}

func TestContentType(t *testing.T) {
	if contentType("summary.json") != "application/json" || contentType("a.pdb") != "chemical/x-pdb" || contentType("x") != "application/octet-stream" {
		t.Fatal("unexpected content types")
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	m.Put(ctx, "exp", "summary.json", []byte("{}"))
	m.Put(ctx, "exp", "candidates.json", []byte("[]"))
	m.Put(ctx, "other", "summary.json", []byte("{}"))

	got, err := m.Get(ctx, "exp", "summary.json")
	if err != nil || string(got) != "{}" {
		t.Fatalf("Get = %q %v", got, err)
	}
	if _, err := m.Get(ctx, "exp", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, _ := m.List(ctx, "exp")
	if len(list) != 2 || list[0] != "candidates.json" {
		t.Fatalf("List = %v", list)
	}
}

func TestNewS3StoreRequiresSettings(t *testing.T) {
	if _, err := NewS3Store(config.ArchiveConfig{Bucket: "b", AccessKey: "a", SecretKey: "s"}); err == nil {
		t.Error("expected error without endpoint")
	}
	if _, err := NewS3Store(config.ArchiveConfig{Endpoint: "localhost:9000", Bucket: "b"}); err == nil {
		t.Error("expected error without credentials")
	}
	s, err := NewS3Store(config.ArchiveConfig{Endpoint: "localhost:9000", Bucket: "runs", AccessKey: "a", SecretKey: "s"})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}
	if s.region != "us-east-1" || s.bucketName != "runs" {
		t.Fatalf("unexpected store %+v", s)
	}
}
