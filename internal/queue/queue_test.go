package queue

import (
	"errors"
	"slices"
	"testing"

	"github.com/satindergrewal/blancdj/internal/audio"
)

func names(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestAddAssignsIDs(t *testing.T) {
	t.Parallel()
	q := New()
	a := q.Add(audio.TrackInfo{Name: "one"}, "A")
	b := q.Add(audio.TrackInfo{Name: "two"}, "B")
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q, want distinct non-empty", a.ID, b.ID)
	}
	kept := q.Add(audio.TrackInfo{ID: "fixed", Name: "three"}, AnyDeck)
	if kept.ID != "fixed" {
		t.Errorf("ID = %q, want caller-provided id kept", kept.ID)
	}
	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3", q.Len())
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	q := New()
	a := q.Add(audio.TrackInfo{Name: "one"}, "A")
	q.Add(audio.TrackInfo{Name: "two"}, "A")
	if err := q.Remove(a.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if got := names(q.Items()); !slices.Equal(got, []string{"two"}) {
		t.Errorf("Items() = %v, want [two]", got)
	}
	if err := q.Remove(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() = %v, want ErrNotFound", err)
	}
}

func TestMove(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to int
		want     []string
	}{
		{0, 2, []string{"b", "c", "a"}},
		{2, 0, []string{"c", "a", "b"}},
		{1, 1, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		q := New()
		for _, n := range []string{"a", "b", "c"} {
			q.Add(audio.TrackInfo{Name: n}, "A")
		}
		if err := q.Move(tt.from, tt.to); err != nil {
			t.Fatalf("Move(%d, %d) error = %v", tt.from, tt.to, err)
		}
		if got := names(q.Items()); !slices.Equal(got, tt.want) {
			t.Errorf("Move(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	q := New()
	q.Add(audio.TrackInfo{Name: "a"}, "A")
	for _, bad := range [][2]int{{-1, 0}, {0, 1}, {1, 0}} {
		if err := q.Move(bad[0], bad[1]); !errors.Is(err, ErrIndex) {
			t.Errorf("Move(%d, %d) = %v, want ErrIndex", bad[0], bad[1], err)
		}
	}
}

func TestNextPicksFirstForDeck(t *testing.T) {
	t.Parallel()
	q := New()
	q.Add(audio.TrackInfo{Name: "b1"}, "B")
	q.Add(audio.TrackInfo{Name: "a1"}, "A")
	q.Add(audio.TrackInfo{Name: "any"}, AnyDeck)
	q.Add(audio.TrackInfo{Name: "a2"}, "A")

	seq := []struct {
		deck string
		want string
	}{
		{"A", "a1"},
		{"A", "any"},
		{"A", "a2"},
		{"B", "b1"},
	}
	for _, s := range seq {
		it, ok := q.Next(s.deck)
		if !ok || it.Name != s.want {
			t.Fatalf("Next(%s) = %q, %v; want %q", s.deck, it.Name, ok, s.want)
		}
	}
	if _, ok := q.Next("A"); ok {
		t.Error("Next() on empty queue returned an item")
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	q := New()
	q.Add(audio.TrackInfo{Name: "a"}, "A")
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", q.Len())
	}
}
