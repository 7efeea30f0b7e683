package cache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"
)

const snapshotVersion = 1

type snapshotItem struct {
	Key      string
	Value    []byte
	StoredAt int64
}

// EncodeSnapshot writes items as a gob stream: version, count, then one
// record per item in the given order.
func EncodeSnapshot(items []Item) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(snapshotVersion); err != nil {
		return nil, err
	}
	if err := enc.Encode(len(items)); err != nil {
		return nil, err
	}
	for _, it := range items {
		rec := snapshotItem{Key: it.Key, Value: it.Value, StoredAt: it.StoredAt.UnixNano()}
		if err := enc.Encode(&rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeSnapshot is the inverse of EncodeSnapshot. Any malformed input is
// reported as ErrCorruptSnapshot.
func DecodeSnapshot(data []byte) ([]Item, error) {
	dec := gob.NewDecoder(bytes.NewReader(data))

	var version int
	if err := dec.Decode(&version); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrCorruptSnapshot, err)
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, version)
	}
	var count int
	if err := dec.Decode(&count); err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrCorruptSnapshot, err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrCorruptSnapshot, count)
	}

	items := make([]Item, 0, min(count, 1024))
	for i := 0; i < count; i++ {
		var rec snapshotItem
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrCorruptSnapshot, i, err)
		}
		items = append(items, Item{Key: rec.Key, Value: rec.Value, StoredAt: time.Unix(0, rec.StoredAt)})
	}
	return items, nil
}
