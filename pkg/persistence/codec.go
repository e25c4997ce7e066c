package persistence

import (
	"encoding/json"
	"time"
)

// wireRecord is Record's on-disk representation for backends (Badger,
// bbolt) that only store raw bytes. ExpiresAt is carried explicitly
// because Badger's own TTL clears the key outright rather than letting
// Record.IsExpired make the call, and bbolt has no TTL concept at all.
type wireRecord struct {
	Value     []byte `json:"value"`
	Size      int    `json:"size"`
	ExpiresAt int64  `json:"expiresAt"` // unix nanos, 0 means never expires
}

func encodeRecord(rec Record) []byte {
	wr := wireRecord{Value: rec.Value, Size: rec.Size}
	if !rec.ExpiresAt.IsZero() {
		wr.ExpiresAt = rec.ExpiresAt.UnixNano()
	}
	b, _ := json.Marshal(wr)
	return b
}

func decodeRecord(data []byte) (Record, error) {
	var wr wireRecord
	if err := json.Unmarshal(data, &wr); err != nil {
		return Record{}, err
	}
	rec := Record{Value: wr.Value, Size: wr.Size}
	if wr.ExpiresAt != 0 {
		rec.ExpiresAt = time.Unix(0, wr.ExpiresAt)
	}
	return rec, nil
}
