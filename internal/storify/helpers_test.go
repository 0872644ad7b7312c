package storify

import (
	"time"

	"horse.fit/storify/internal/textsim"
	"horse.fit/storify/internal/tweet"
)

var baseTime = time.Date(2017, 5, 8, 13, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func doc(id string, lemmas ...string) tweet.Document {
	d := tweet.Document{
		ID:        id,
		CreatedAt: baseTime.Add(5 * time.Minute),
		Text:      "tweet " + id,
		User:      tweet.User{ID: "u" + id, ScreenName: "user" + id},
		Filtered:  textsim.NewSet(lemmas...),
	}
	for _, lemma := range lemmas {
		d.Tokens = append(d.Tokens, tweet.Token{Lemma: lemma, POS: "N(soort,ev,basis,zijd,stan)"})
	}
	return d
}

func retweetOf(id string, original tweet.Document) tweet.Document {
	d := doc(id)
	d.Retweet = &tweet.Retweet{ID: original.ID, User: original.User}
	return d
}

func memberIDs(docs []tweet.Document) map[string]struct{} {
	out := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		out[d.ID] = struct{}{}
	}
	return out
}

func clusterOf(id int64, docs ...tweet.Document) *Cluster {
	c := NewCluster(id, baseTime)
	for _, d := range docs {
		c.AddDocument(d)
	}
	return c
}
