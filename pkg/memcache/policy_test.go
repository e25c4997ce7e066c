package memcache

import (
	"testing"
	"time"
)

func TestRankFunc_TTLNeverExpiringSortsLast(t *testing.T) {
	rank := rankFunc(PolicyTTL)
	expiring := slotMeta{expiresAt: time.Unix(100, 0)}
	neverExpiring := slotMeta{expiresAt: time.Time{}}

	if rank(expiring) >= rank(neverExpiring) {
		t.Fatal("expected a never-expiring entry to rank after one with a concrete expiry")
	}
}

func TestRankFunc_LFUOrdersByAccessCount(t *testing.T) {
	rank := rankFunc(PolicyLFU)
	low := slotMeta{accessCount: 1}
	high := slotMeta{accessCount: 10}
	if rank(low) >= rank(high) {
		t.Fatal("expected lower access count to rank first")
	}
}

func TestRankFunc_FIFOOrdersByCreated(t *testing.T) {
	rank := rankFunc(PolicyFIFO)
	older := slotMeta{created: time.Unix(1, 0)}
	newer := slotMeta{created: time.Unix(2, 0)}
	if rank(older) >= rank(newer) {
		t.Fatal("expected older created time to rank first")
	}
}
