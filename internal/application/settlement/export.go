package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/storefront/backend/internal/domain/settlement"
	"github.com/storefront/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const exportContentType = "application/x-ndjson"

var errNoObjectStore = errors.New("ledger export has no object store configured")

// ObjectStore receives exported ledger files
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// ExportResult describes one uploaded day file
type ExportResult struct {
	Date    string `json:"date"`
	Key     string `json:"key"`
	Entries int    `json:"entries"`
	Bytes   int    `json:"bytes"`
	Skipped bool   `json:"skipped,omitempty"`
}

// ExportLink is a time-limited download location for an exported day
type ExportLink struct {
	Date      string    `json:"date"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LedgerExporter writes the entries attributed to a day, across all agents,
// as JSON lines and uploads them under prefix/YYYY/MM/DD.jsonl
type LedgerExporter struct {
	service *SettlementService
	store   ObjectStore
	prefix  string
	logger  *zap.Logger
}

// NewLedgerExporter creates a new LedgerExporter. store may be nil when only
// WriteDay is used.
func NewLedgerExporter(service *SettlementService, store ObjectStore, prefix string, logger *zap.Logger) *LedgerExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerExporter{
		service: service,
		store:   store,
		prefix:  prefix,
		logger:  logger,
	}
}

// ExportKey returns the object key for a day
func ExportKey(prefix string, day time.Time) string {
	day = settlement.NormalizeDay(day)
	return path.Join(prefix, day.Format("2006"), day.Format("01"), day.Format("02")+".jsonl")
}

// WriteDay encodes the day's entries to w, one JSON object per line, in
// ledger order. It returns the number of entries written.
func (e *LedgerExporter) WriteDay(ctx context.Context, day time.Time, w io.Writer) (int, error) {
	entries, err := e.service.LedgerForDay(ctx, settlement.NormalizeDay(day))
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(w)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return i, fmt.Errorf("failed to encode ledger entry: %w", err)
		}
	}
	return len(entries), nil
}

// ExportDay uploads one day file. Days without entries still produce an
// empty file so downstream consumers can tell "no activity" from "not run".
func (e *LedgerExporter) ExportDay(ctx context.Context, day time.Time) (*ExportResult, error) {
	if e.store == nil {
		return nil, errNoObjectStore
	}
	day = settlement.NormalizeDay(day)

	var buf bytes.Buffer
	n, err := e.WriteDay(ctx, day, &buf)
	if err != nil {
		return nil, err
	}

	key := ExportKey(e.prefix, day)
	if err := e.store.Upload(ctx, key, buf.Bytes(), exportContentType); err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	result := &ExportResult{
		Date:    day.Format(time.DateOnly),
		Key:     key,
		Entries: n,
		Bytes:   buf.Len(),
	}
	e.logger.Info("ledger day exported",
		zap.String("date", result.Date),
		zap.String("key", key),
		zap.Int("entries", n))
	return result, nil
}

// DownloadLink presigns the export file of a day. Days that were never
// exported return a NOT_FOUND domain error.
func (e *LedgerExporter) DownloadLink(ctx context.Context, day time.Time, expiresIn time.Duration) (*ExportLink, error) {
	if e.store == nil {
		return nil, errNoObjectStore
	}
	day = settlement.NormalizeDay(day)
	key := ExportKey(e.prefix, day)
	ok, err := e.store.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "No ledger export for "+day.Format(time.DateOnly))
	}
	u, expiresAt, err := e.store.GenerateDownloadURL(ctx, key, expiresIn)
	if err != nil {
		return nil, err
	}
	return &ExportLink{Date: day.Format(time.DateOnly), Key: key, URL: u, ExpiresAt: expiresAt}, nil
}

// ExportRange exports every day in [from, to] with at most concurrency
// uploads in flight. With skipExisting, days whose file is already stored
// are left alone. Results are in day order.
func (e *LedgerExporter) ExportRange(ctx context.Context, from, to time.Time, concurrency int, skipExisting bool) ([]ExportResult, error) {
	from, to = settlement.NormalizeDay(from), settlement.NormalizeDay(to)
	if to.Before(from) {
		return nil, invalidDate(to.Format(time.DateOnly))
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}

	results := make([]ExportResult, len(days))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, d := range days {
		g.Go(func() error {
			if skipExisting && e.store != nil {
				key := ExportKey(e.prefix, d)
				exists, err := e.store.Exists(gctx, key)
				if err != nil {
					return err
				}
				if exists {
					results[i] = ExportResult{Date: d.Format(time.DateOnly), Key: key, Skipped: true}
					return nil
				}
			}
			r, err := e.ExportDay(gctx, d)
			if err != nil {
				return err
			}
			results[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
