package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alanyoungcy/predictledger/internal/domain"
	"github.com/alanyoungcy/predictledger/internal/lmsr"
)

const ladderPartSize = 8 << 20

// LadderSnapshots publishes precomputed price ladders so clients can fetch
// price proofs without rebuilding the tree themselves. A snapshot is keyed
// by its root, which makes uploads idempotent.
type LadderSnapshots struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewLadderSnapshots creates a LadderSnapshots over the given blob ports.
func NewLadderSnapshots(writer domain.BlobWriter, reader domain.BlobReader) *LadderSnapshots {
	return &LadderSnapshots{writer: writer, reader: reader}
}

const ladderPrefix = "ladders/"

// LadderPath returns the object key of the snapshot for root.
func LadderPath(root domain.Digest) string {
	return ladderPrefix + root.Hex() + ".jsonl"
}

// List returns the roots of every stored snapshot, sorted by hex.
func (s *LadderSnapshots) List(ctx context.Context) ([]string, error) {
	infos, err := s.reader.List(ctx, ladderPrefix)
	if err != nil {
		return nil, fmt.Errorf("s3blob: ladder list: %w", err)
	}
	roots := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Path, ladderPrefix)
		if root, ok := strings.CutSuffix(name, ".jsonl"); ok && !strings.Contains(root, "/") {
			roots = append(roots, root)
		}
	}
	sort.Strings(roots)
	return roots, nil
}

// Publish uploads the ladder entries unless a snapshot with the same root
// already exists. It reports whether an upload happened.
func (s *LadderSnapshots) Publish(ctx context.Context, l *lmsr.Ladder) (bool, error) {
	path := LadderPath(l.Root())
	exists, err := s.reader.Exists(ctx, path)
	if err != nil {
		return false, fmt.Errorf("s3blob: ladder exists: %w", err)
	}
	if exists {
		return false, nil
	}

	buf, err := marshalJSONL(l.Entries())
	if err != nil {
		return false, fmt.Errorf("s3blob: ladder marshal: %w", err)
	}
	if err := s.writer.PutMultipart(ctx, path, bytes.NewReader(buf), ladderPartSize); err != nil {
		return false, fmt.Errorf("s3blob: ladder upload: %w", err)
	}
	return true, nil
}

// Load reads back the snapshot for root.
func (s *LadderSnapshots) Load(ctx context.Context, root domain.Digest) ([]lmsr.LadderEntry, error) {
	rc, err := s.reader.Get(ctx, LadderPath(root))
	if err != nil {
		return nil, fmt.Errorf("s3blob: ladder get: %w", err)
	}
	defer rc.Close()
	return unmarshalLadder(rc)
}

func unmarshalLadder(r io.Reader) ([]lmsr.LadderEntry, error) {
	var entries []lmsr.LadderEntry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e lmsr.LadderEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("s3blob: ladder line %d: %w", len(entries)+1, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("s3blob: ladder read: %w", err)
	}
	return entries, nil
}
