package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// Snapshots writes the normalized market maps of each scan run as gzipped
// JSONL, one record per line in title order:
//
//	snapshots/2025-01-31/<run-id>/polymarket.jsonl.gz
//	snapshots/2025-01-31/<run-id>/kalshi.jsonl.gz
type Snapshots struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	now    func() time.Time
}

// NewSnapshots creates a snapshot store. reader may be nil when snapshots
// are only written.
func NewSnapshots(writer domain.BlobWriter, reader domain.BlobReader) *Snapshots {
	return &Snapshots{writer: writer, reader: reader, now: time.Now}
}

// WriteSnapshot implements domain.SnapshotWriter.
func (s *Snapshots) WriteSnapshot(ctx context.Context, runID string, exchange domain.Exchange, records map[string]domain.MarketRecord) error {
	titles := make([]string, 0, len(records))
	for t := range records {
		titles = append(titles, t)
	}
	sort.Strings(titles)

	ordered := make([]domain.MarketRecord, len(titles))
	for i, t := range titles {
		ordered[i] = records[t]
	}

	buf, err := gzipJSONL(ordered)
	if err != nil {
		return fmt.Errorf("s3blob: snapshot %s/%s: %w", runID, exchange, err)
	}
	path := snapshotPath(s.now(), runID, exchange)
	if err := s.writer.Put(ctx, path, bytes.NewReader(buf), "application/gzip"); err != nil {
		return fmt.Errorf("s3blob: snapshot upload: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot, keyed by title.
func (s *Snapshots) ReadSnapshot(ctx context.Context, path string) (map[string]domain.MarketRecord, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("s3blob: snapshot store is write-only")
	}
	body, err := s.reader.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: snapshot %s: %w", path, err)
	}
	defer zr.Close()

	out := make(map[string]domain.MarketRecord)
	dec := json.NewDecoder(zr)
	for dec.More() {
		var rec domain.MarketRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("s3blob: snapshot %s: %w", path, err)
		}
		out[rec.Title] = rec
	}
	return out, nil
}

// ListSnapshots returns the snapshot objects written on day.
func (s *Snapshots) ListSnapshots(ctx context.Context, day time.Time) ([]domain.BlobInfo, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("s3blob: snapshot store is write-only")
	}
	return s.reader.List(ctx, "snapshots/"+day.UTC().Format("2006-01-02")+"/")
}

func snapshotPath(at time.Time, runID string, exchange domain.Exchange) string {
	return fmt.Sprintf("snapshots/%s/%s/%s.jsonl.gz", at.UTC().Format("2006-01-02"), runID, exchange)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func gzipJSONL[T any](records []T) ([]byte, error) {
	raw, err := marshalJSONL(records)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ domain.SnapshotWriter = (*Snapshots)(nil)
