package localblob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

func TestStore_PutGetList(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	if err := s.Put(ctx, "snapshots/2025-01-01/run/kalshi.jsonl.gz", strings.NewReader("k"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "snapshots/2025-01-01/run/polymarket.jsonl.gz", strings.NewReader("p"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "cache/embeddings.json", strings.NewReader("{}"), ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rc, err := s.Get(ctx, "snapshots/2025-01-01/run/polymarket.jsonl.gz")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "p" {
		t.Fatalf("body=%q", body)
	}

	infos, err := s.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Path != "snapshots/2025-01-01/run/kalshi.jsonl.gz" {
		t.Fatalf("infos=%+v", infos)
	}

	ok, err := s.Exists(ctx, "cache/embeddings.json")
	if err != nil || !ok {
		t.Fatalf("Exists=%v err=%v", ok, err)
	}
}

func TestStore_MissingAndEscape(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
	if err := s.Put(ctx, "../outside", strings.NewReader("x"), ""); err == nil {
		t.Fatalf("path escaping the root should fail")
	}
	infos, err := s.List(ctx, "")
	if err != nil || len(infos) != 0 {
		t.Fatalf("infos=%v err=%v", infos, err)
	}
}
