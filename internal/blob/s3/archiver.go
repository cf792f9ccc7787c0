package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

const (
	latestName = "latest.json"

	// multipartThreshold is the encoded size above which dated boards are
	// uploaded in parts.
	multipartThreshold = 8 << 20
	partSize           = 5 << 20
)

// BoardArchiver implements domain.SnapshotArchiver. Each board is written to
// a day-partitioned key and to a fixed latest.json used for warm starts.
//
//	boards/2026/10/14/1791936000.json
//	boards/latest.json
type BoardArchiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	prefix    string
	multipart int
}

var _ domain.SnapshotArchiver = (*BoardArchiver)(nil)

// NewBoardArchiver creates a BoardArchiver rooted at prefix. reader may be
// nil, in which case LatestBoard always reports not found.
func NewBoardArchiver(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *BoardArchiver {
	if prefix == "" {
		prefix = "boards"
	}
	return &BoardArchiver{writer: writer, reader: reader, prefix: prefix, multipart: multipartThreshold}
}

// ArchiveBoard uploads b stamped at and returns the dated key.
func (a *BoardArchiver) ArchiveBoard(ctx context.Context, b domain.Board, at time.Time) (string, error) {
	data, err := marshalBoard(b)
	if err != nil {
		return "", err
	}

	key := boardPath(a.prefix, at)
	if len(data) > a.multipart {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(data), partSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive board: %w", err)
	}
	if err := a.writer.Put(ctx, path.Join(a.prefix, latestName), bytes.NewReader(data), "application/json"); err != nil {
		return key, fmt.Errorf("s3blob: archive latest board: %w", err)
	}
	return key, nil
}

// LatestBoard reads back the most recently archived board.
func (a *BoardArchiver) LatestBoard(ctx context.Context) (domain.Board, error) {
	if a.reader == nil {
		return domain.Board{}, fmt.Errorf("s3blob: latest board: %w", domain.ErrNotFound)
	}
	body, err := a.reader.Get(ctx, path.Join(a.prefix, latestName))
	if err != nil {
		return domain.Board{}, err
	}
	defer body.Close()

	var b domain.Board
	if err := json.NewDecoder(body).Decode(&b); err != nil {
		return domain.Board{}, fmt.Errorf("s3blob: decode latest board: %w", err)
	}
	return b, nil
}

// boardPath partitions archived boards by UTC day.
func boardPath(prefix string, at time.Time) string {
	at = at.UTC()
	return path.Join(prefix, at.Format("2006/01/02"), strconv.FormatInt(at.Unix(), 10)+".json")
}

func marshalBoard(b domain.Board) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b); err != nil {
		return nil, fmt.Errorf("s3blob: marshal board: %w", err)
	}
	return buf.Bytes(), nil
}
