package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/vango-dev/chatd/pkg/chatd"
	"github.com/vango-dev/chatd/pkg/protocol"
)

// ErrTooLarge is returned when an export exceeds the store's size limit.
var ErrTooLarge = errors.New("archive: export too large")

// ErrNotFound is returned when an export doesn't exist.
var ErrNotFound = errors.New("archive: export not found")

// ErrInvalidTarget is returned for a target string that names no store.
var ErrInvalidTarget = errors.New("archive: invalid target")

// ContentType is the media type of an export.
const ContentType = "application/x-ndjson"

// Store is the interface for export storage backends.
type Store interface {
	// Put stores the export read from r under name and returns where it
	// was written.
	Put(ctx context.Context, name string, r io.Reader) (location string, err error)

	// Get opens a stored export.
	Get(ctx context.Context, name string) (io.ReadCloser, error)
}

// Record is one exported message. Data is base64 in JSON.
type Record struct {
	Chat      string `json:"chat"`
	Index     int    `json:"idx"`
	ID        string `json:"id"`
	User      string `json:"user"`
	Timestamp uint32 `json:"ts"`
	Status    string `json:"status"`
	Data      []byte `json:"data"`
}

// NewRecord converts a buffered message.
func NewRecord(chatID protocol.ID, idx int, msg chatd.Message) Record {
	return Record{
		Chat:      chatID.String(),
		Index:     idx,
		ID:        msg.ID.String(),
		User:      msg.UserID.String(),
		Timestamp: msg.Timestamp,
		Status:    msg.Status.String(),
		Data:      append([]byte(nil), msg.Data...),
	}
}

// Snapshot returns the records of every message in m, oldest first. It
// must run on the client loop.
func Snapshot(m *chatd.Messages) []Record {
	out := make([]Record, 0, m.Len())
	for idx := m.LowNum(); idx <= m.HighNum(); idx++ {
		if msg, ok := m.At(idx); ok {
			out = append(out, NewRecord(m.ChatID(), idx, msg))
		}
	}
	return out
}

// Encode writes records as JSON Lines.
func Encode(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads JSON Lines records.
func Decode(r io.Reader) ([]Record, error) {
	var out []Record
	dec := json.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}

// Open resolves a target into a store and the name to use in it.
func Open(target string, s3cfg S3Config, maxSize int64) (Store, string, error) {
	if rest, ok := strings.CutPrefix(target, "s3://"); ok {
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
			return nil, "", ErrInvalidTarget
		}
		return NewS3Store(NewS3Client(s3cfg), bucket, "", maxSize), key, nil
	}
	if target == "" || strings.HasSuffix(target, "/") {
		return nil, "", ErrInvalidTarget
	}
	dir, name := splitPath(target)
	store, err := NewDiskStore(dir, maxSize)
	if err != nil {
		return nil, "", err
	}
	return store, name, nil
}
