package leaderboard

import (
	"context"
	"testing"

	"github.com/elimulabs/elimu/core"
)

type memRepo struct{ entries []Entry }

func (m *memRepo) QueryTopEntries(ctx context.Context, limit int, exec ...core.DBExecutor) ([]Entry, error) {
	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]Entry, limit)
	copy(out, m.entries[:limit])
	return out, nil
}

type memCache struct {
	entries []Entry
	primed  bool
}

func (m *memCache) ReplaceTop(ctx context.Context, entries []Entry) error {
	m.entries, m.primed = entries, true
	return nil
}

func (m *memCache) Top(ctx context.Context, limit int) ([]Entry, bool, error) {
	if !m.primed {
		return nil, false, nil
	}
	if limit > len(m.entries) {
		limit = len(m.entries)
	}
	return m.entries[:limit], true, nil
}

func (m *memCache) RankOf(ctx context.Context, userID string) (int, bool, error) {
	for _, e := range m.entries {
		if e.UserID == userID {
			return e.Rank, true, nil
		}
	}
	return 0, false, nil
}

type nopLogger struct{}

func (nopLogger) Enable(on bool)                        {}
func (nopLogger) Debug(msg string, args ...interface{}) {}
func (nopLogger) Info(msg string, args ...interface{})  {}
func (nopLogger) Warn(msg string, args ...interface{})  {}
func (nopLogger) Error(msg string, args ...interface{}) {}
func (nopLogger) Fatal(msg string, args ...interface{}) {}

var board = []Entry{ // pre-sorted: XP desc, earlier creation first on ties
	{UserID: "u1", Username: "ada", XP: 2400, Level: 3, Streak: 9},
	{UserID: "u2", Username: "ben", XP: 1800, Level: 2, Streak: 2},
	{UserID: "u3", Username: "cleo", XP: 1800, Level: 2, Streak: 5},
	{UserID: "u4", Username: "dan", XP: 300, Level: 1, Streak: 1},
}

func TestAssignRanks(t *testing.T) {
	entries := make([]Entry, len(board))
	copy(entries, board)
	ranked := AssignRanks(entries)

	for i, e := range ranked {
		if e.Rank != i+1 {
			t.Errorf("row %d: expected rank %d; got %d", i, i+1, e.Rank)
		}
	}
	// XP never increases down the board
	for i := 1; i < len(ranked); i++ {
		if ranked[i].XP > ranked[i-1].XP {
			t.Errorf("row %d: XP %d exceeds row above (%d)", i, ranked[i].XP, ranked[i-1].XP)
		}
	}
	// ties keep distinct ranks in storage order
	if ranked[1].UserID != "u2" || ranked[2].UserID != "u3" {
		t.Errorf("tie broken out of order: got %s then %s", ranked[1].UserID, ranked[2].UserID)
	}
}

func TestTopFallsBackToRepo(t *testing.T) {
	svc := NewService(&memRepo{entries: board}, &memCache{}, nopLogger{})

	entries, err := svc.Top(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries; got %d", len(entries))
	}
	if entries[0].Rank != 1 || entries[0].UserID != "u1" {
		t.Errorf("expected u1 at rank 1; got %s at %d", entries[0].UserID, entries[0].Rank)
	}
}

func TestTopPrefersCache(t *testing.T) {
	cache := &memCache{}
	svc := NewService(&memRepo{entries: board}, cache, nopLogger{})
	ctx := context.Background()

	if err := svc.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if !cache.primed {
		t.Fatal("expected refresh to prime the cache")
	}

	entries, err := svc.Top(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[2].Rank != 3 {
		t.Errorf("expected 3 cached ranked entries; got %+v", entries)
	}
}

func TestRankOf(t *testing.T) {
	svc := NewService(&memRepo{entries: board}, &memCache{}, nopLogger{})
	ctx := context.Background()

	rank, found, err := svc.RankOf(ctx, "u3")
	if err != nil {
		t.Fatal(err)
	}
	if !found || rank != 3 {
		t.Errorf("expected rank 3 found; got %d/%v", rank, found)
	}

	if _, found, _ = svc.RankOf(ctx, "nobody"); found {
		t.Error("expected unranked user to report not found")
	}
}
