package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bancorprotocol/bancor-arbitrage/internal/domain"
)

// archiveBatchSize bounds how many settlements are pulled per store query.
const archiveBatchSize = 500

// SettlementArchiver implements domain.Archiver: it drains aged settlement
// records from the hot store into JSONL objects in blob storage, then deletes
// them from the store. Deletion only happens after every upload succeeded.
type SettlementArchiver struct {
	writer *Writer
	store  domain.SettlementStore
	prefix string
	logger *slog.Logger
}

// NewSettlementArchiver creates a SettlementArchiver writing under the given
// key prefix.
func NewSettlementArchiver(writer *Writer, store domain.SettlementStore, prefix string, logger *slog.Logger) *SettlementArchiver {
	return &SettlementArchiver{
		writer: writer,
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// Archive uploads every settlement executed before the cutoff and removes the
// uploaded records from the store. It returns the number of archived records.
func (a *SettlementArchiver) Archive(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for batch := 0; ; batch++ {
		settlements, err := a.store.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(settlements) == 0 {
			break
		}

		buf, err := marshalJSONL(settlements)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		path := a.archivePath(cutoff, batch)
		if int64(len(buf)) >= minPartSize {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		// The batch is durable in blob storage; drop it from the hot store so
		// the next ListBefore call advances.
		last := settlements[len(settlements)-1].ExecutedAt
		if _, err := a.store.DeleteBefore(ctx, last.Add(time.Microsecond)); err != nil {
			return total, fmt.Errorf("s3blob: archive delete: %w", err)
		}

		total += int64(len(settlements))
		a.logger.Info("settlement batch archived",
			slog.String("path", path),
			slog.Int("count", len(settlements)),
		)

		if len(settlements) < archiveBatchSize {
			break
		}
	}
	return total, nil
}

// archivePath builds the object key for one archive batch, partitioned by the
// year-month of the cutoff:
//
//	settlements/2026-08/cutoff-20260801T000000Z-000.jsonl
func (a *SettlementArchiver) archivePath(cutoff time.Time, batch int) string {
	key := fmt.Sprintf("settlements/%s/cutoff-%s-%03d.jsonl",
		cutoff.Format("2006-01"), cutoff.UTC().Format("20060102T150405Z"), batch)
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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

// Compile-time interface check.
var _ domain.Archiver = (*SettlementArchiver)(nil)
