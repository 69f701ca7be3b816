// Package snapshot serializes the full state of a collection and stores it
// as an opaque blob in a directory or in Redis.
//
// The binary layout is a fixed header, a JSON payload and a CRC32 footer:
//
//	header  [0:4] magic  [4:8] version  [8:16] created (unix)  [16:24] payload length
//	payload JSON
//	footer  [0:4] CRC32 (IEEE) of the payload
package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/sorter"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

const (
	MagicBytes    uint32 = 0x444f4353
	FormatVersion uint32 = 1
	HeaderSize    int    = 24
	FooterSize    int    = 4
)

type Snapshot struct {
	Version   uint32                     `json:"version"`
	CreatedAt time.Time                  `json:"createdAt"`
	Schema    schema.Schema              `json:"schema"`
	Language  string                     `json:"language"`
	NextID    uint64                     `json:"nextId"`
	Index     index.Data                 `json:"index"`
	Sorting   sorter.Data                `json:"sorting"`
	Docs      map[string]schema.Document `json:"docs"`
	Languages map[string]string          `json:"languages,omitempty"`
}

// payload mirrors Snapshot with the large sections pre-encoded.
type payload struct {
	Version   uint32            `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
	Schema    schema.Schema     `json:"schema"`
	Language  string            `json:"language"`
	NextID    uint64            `json:"nextId"`
	Index     json.RawMessage   `json:"index"`
	Sorting   json.RawMessage   `json:"sorting"`
	Docs      json.RawMessage   `json:"docs"`
	Languages map[string]string `json:"languages,omitempty"`
}

// Encode renders s in the snapshot file format. The index, sort and document
// sections are marshaled concurrently.
func Encode(s *Snapshot) ([]byte, error) {
	p := payload{
		Version:   FormatVersion,
		CreatedAt: s.CreatedAt,
		Schema:    s.Schema,
		Language:  s.Language,
		NextID:    s.NextID,
		Languages: s.Languages,
	}
	var g errgroup.Group
	g.Go(func() (err error) {
		p.Index, err = json.Marshal(s.Index)
		return err
	})
	g.Go(func() (err error) {
		p.Sorting, err = json.Marshal(s.Sorting)
		return err
	})
	g.Go(func() (err error) {
		p.Docs, err = json.Marshal(s.Docs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("marshaling snapshot sections: %w", err)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	out := make([]byte, HeaderSize+len(body)+FooterSize)
	binary.LittleEndian.PutUint32(out[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(out[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(out[8:16], uint64(s.CreatedAt.Unix()))
	binary.LittleEndian.PutUint64(out[16:24], uint64(len(body)))
	copy(out[HeaderSize:], body)
	binary.LittleEndian.PutUint32(out[HeaderSize+len(body):], crc32.ChecksumIEEE(body))
	return out, nil
}

// Decode parses the output of Encode, verifying magic, version, length and
// checksum.
func Decode(data []byte) (*Snapshot, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, apperrors.New(apperrors.ErrInvalidSnapshot, 400, "truncated snapshot")
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != MagicBytes {
		return nil, apperrors.Newf(apperrors.ErrInvalidSnapshot, 400, "bad magic bytes %x", magic)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != FormatVersion {
		return nil, apperrors.Newf(apperrors.ErrInvalidSnapshot, 400, "unsupported version %d", v)
	}
	size := binary.LittleEndian.Uint64(data[16:24])
	if size != uint64(len(data)-HeaderSize-FooterSize) {
		return nil, apperrors.Newf(apperrors.ErrInvalidSnapshot, 400, "payload length %d does not match file", size)
	}
	body := data[HeaderSize : HeaderSize+int(size)]
	want := binary.LittleEndian.Uint32(data[HeaderSize+int(size):])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, apperrors.Newf(apperrors.ErrInvalidSnapshot, 400, "checksum mismatch: %08x != %08x", got, want)
	}

	var s Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", apperrors.ErrInvalidSnapshot)
	}
	return &s, nil
}
