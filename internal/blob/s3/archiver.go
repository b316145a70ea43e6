package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictledger/internal/domain"
)

// StatusHistorySource lists superseded status versions for archival and
// deletes them once they are uploaded.
type StatusHistorySource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.StatusVersion, error)
	DeleteArchived(ctx context.Context, versions []domain.StatusVersion) (int64, error)
}

// ArchiveImpl implements domain.Archiver by serializing superseded status
// versions to JSONL, uploading the result and deleting the uploaded rows.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	history StatusHistorySource
	audit   domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, history StatusHistorySource, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		history: history,
		audit:   audit,
	}
}

// archivedStatus is one JSONL line. The blob is the authoritative record;
// the decoded fields make the archive greppable.
type archivedStatus struct {
	MarketID     string                `json:"market_id"`
	Version      int64                 `json:"version"`
	Kind         domain.TransitionKind `json:"kind"`
	Payment      int64                 `json:"payment"`
	TransitionID string                `json:"transition_id,omitempty"`
	Blob         []byte                `json:"blob"`
	Resolved     bool                  `json:"resolved"`
	Outcome      string                `json:"outcome"`
	Shares       domain.Shares         `json:"shares"`
	Root         domain.Digest         `json:"balance_table_root"`
	CreatedAt    time.Time             `json:"created_at"`
}

func toArchived(v domain.StatusVersion) archivedStatus {
	return archivedStatus{
		MarketID:     v.MarketID,
		Version:      v.Version,
		Kind:         v.Kind,
		Payment:      v.Payment,
		TransitionID: v.TransitionID,
		Blob:         v.Blob,
		Resolved:     v.Status.Resolved,
		Outcome:      v.Status.Outcome.String(),
		Shares:       v.Status.Shares,
		Root:         v.Status.BalanceTableRoot,
		CreatedAt:    v.CreatedAt,
	}
}

// ArchiveStatusHistory uploads every superseded status created before the
// cutoff, deletes the uploaded rows and records the run in the audit log. It
// returns the number of archived versions. Rows are only deleted after the
// upload succeeded, so a failed run is retried in full next time.
func (a *ArchiveImpl) ArchiveStatusHistory(ctx context.Context, before time.Time) (int64, error) {
	versions, err := a.history.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive status history query: %w", err)
	}
	if len(versions) == 0 {
		return 0, nil
	}

	records := make([]archivedStatus, len(versions))
	for i, v := range versions {
		records[i] = toArchived(v)
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive status history marshal: %w", err)
	}

	path := archivePath("status_history", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), ndjson); err != nil {
		return 0, fmt.Errorf("s3blob: archive status history upload: %w", err)
	}

	count := int64(len(versions))
	pruned, err := a.history.DeleteArchived(ctx, versions)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive status history prune %s: %w", path, err)
	}
	if err := a.audit.Log(ctx, "archive.status_history", map[string]any{
		"path":   path,
		"count":  count,
		"pruned": pruned,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive status history audit log: %w", err)
	}
	return count, nil
}

// archivePath builds the key for one archive run, partitioned by the
// year-month of the cutoff time. Each run writes its own object.
//
//	archive/status_history/2026-01/20260115T030000Z.jsonl
func archivePath(kind string, before time.Time) string {
	t := before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, t.Format("2006-01"), t.Format("20060102T150405Z"))
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
