package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/vortexisalpha/polymarket-kalshi-interexchange-arb/internal/domain"
)

// HistoryStore is the slice of domain.ScanStore the archiver reads.
type HistoryStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.ScanRecord, error)
}

// Archiver copies detected arbitrage history older than a cutoff into JSONL
// under archive/arbitrage/YYYY-MM.jsonl. Rows are not deleted from the
// primary store here; pruning is a separate step once the upload is checked.
type Archiver struct {
	writer domain.BlobWriter
	store  HistoryStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, store HistoryStore) *Archiver {
	return &Archiver{writer: writer, store: store}
}

// ArchiveHistory uploads every record detected before the cutoff and
// returns the object path and record count. Nothing is written when there
// is no history.
func (a *Archiver) ArchiveHistory(ctx context.Context, before time.Time) (string, int, error) {
	records, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(records) == 0 {
		return "", 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	path := archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}
	return path, len(records), nil
}

func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/arbitrage/%s.jsonl", before.UTC().Format("2006-01"))
}
