package snapshot

import (
	"errors"
	"testing"
	"time"

	"horse.fit/storify/internal/storify"
	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

var savedAt = time.Date(2017, 5, 8, 14, 0, 0, 0, time.UTC)

func sampleStories() []*storify.Story {
	c1 := storify.NewCluster(1, savedAt)
	c1.AddDocument(tweet.Document{ID: "1", CreatedAt: savedAt, Filtered: textsim.NewSet("tulp"), Tokens: []tweet.Token{{Lemma: "tulp", POS: "N(soort)"}}})
	c1.AddDocument(tweet.Document{ID: "2", CreatedAt: savedAt, Filtered: textsim.NewSet("tulp")})
	first := storify.NewStory(100, savedAt, c1)
	first.AddDelay()
	first.AddDocument(tweet.Document{ID: "3", CreatedAt: savedAt, Retweet: &tweet.Retweet{ID: "1"}})

	c2 := storify.NewCluster(2, savedAt)
	c2.AddDocument(tweet.Document{ID: "9", CreatedAt: savedAt, Filtered: textsim.NewSet("appel")})
	second := storify.NewStory(101, savedAt, c2)

	return []*storify.Story{first, second}
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	stories := sampleStories()
	blob, err := Encode("bloemen", stories, savedAt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	snap, err := Decode("bloemen", blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Stories) != len(stories) {
		t.Fatalf("unexpected story count: got %d want %d", len(snap.Stories), len(stories))
	}

	for i, got := range snap.Stories {
		want := stories[i]
		if got.ID != want.ID || got.IdleCount != want.IdleCount {
			t.Fatalf("story %d: got id=%d idle=%d want id=%d idle=%d", i, got.ID, got.IdleCount, want.ID, want.IdleCount)
		}
		gotIDs := toSet(got.MemberIDs())
		wantIDs := toSet(want.MemberIDs())
		if len(gotIDs) != len(wantIDs) {
			t.Fatalf("story %d: member ids got %v want %v", i, gotIDs, wantIDs)
		}
		for id := range wantIDs {
			if _, ok := gotIDs[id]; !ok {
				t.Fatalf("story %d: missing member %s", i, id)
			}
			if !got.Contains(id) {
				t.Fatalf("story %d: index does not contain %s after reload", i, id)
			}
		}
		if !got.OriginalFiltered.Has(want.OriginalFiltered.Sorted()[0]) {
			t.Fatalf("story %d: original filtered tokens lost", i)
		}
	}
}

func TestDecodeRejectsOtherVersion(t *testing.T) {
	t.Parallel()

	_, err := Decode("bloemen", []byte(`{"version":0,"key":"bloemen","stories":[]}`))
	if !errors.Is(err, ErrVersion) {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestDecodeRejectsForeignKeyAndGarbage(t *testing.T) {
	t.Parallel()

	blob, err := Encode("groente_en_fruit", nil, savedAt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode("bloemen", blob); err == nil {
		t.Fatalf("expected key mismatch error")
	}
	if _, err := Decode("bloemen", []byte("\x80\x03pickle")); err == nil {
		t.Fatalf("expected garbage to be rejected")
	}
}

func TestStateKey(t *testing.T) {
	t.Parallel()

	key, ok := KeyFromState(StateKey("bloemen"))
	if !ok || key != "bloemen" {
		t.Fatalf("unexpected key: %q %v", key, ok)
	}
	if _, ok := KeyFromState("nsfw:x"); ok {
		t.Fatalf("expected foreign prefix to be rejected")
	}
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}
