// Package tweet models annotated posts: tokens with their filter rules, the
// word lists behind those rules, and the immutable Document built from a
// validated payload.
package tweet

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"horse.fit/storify/internal/textsim"
	payloadschema "horse.fit/storify/schema"
)

type User struct {
	ID         string `json:"id"`
	ScreenName string `json:"screen_name"`
}

// Point is a WGS84 position.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

type Entities struct {
	Media    []string `json:"media,omitempty"`
	URLs     []string `json:"urls,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
	Mentions []User   `json:"mentions,omitempty"`
}

// Retweet links a retweet to the post it repeats.
type Retweet struct {
	ID   string `json:"id"`
	User User   `json:"user"`
}

// Document is a normalized post. Values are treated as immutable once
// built; optional parts are nil pointers and read through the accessors.
type Document struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Text      string      `json:"text,omitempty"`
	User      User        `json:"user"`
	Tokens    []Token     `json:"tokens,omitempty"`
	Filtered  textsim.Set `json:"filtered"`
	Retweet   *Retweet    `json:"retweet_of,omitempty"`
	ReplyTo   *User       `json:"reply_to,omitempty"`
	Entities  Entities    `json:"entities"`
	Location  *Point      `json:"location,omitempty"`
	Keywords  []string    `json:"keywords,omitempty"`
	Groups    []string    `json:"groups,omitempty"`
}

// RetweetTarget returns the id of the repeated post.
func (d Document) RetweetTarget() (string, bool) {
	if d.Retweet == nil || d.Retweet.ID == "" {
		return "", false
	}
	return d.Retweet.ID, true
}

func (d Document) IsRetweet() bool {
	_, ok := d.RetweetTarget()
	return ok
}

func (d Document) Point() (Point, bool) {
	if d.Location == nil {
		return Point{}, false
	}
	return *d.Location, true
}

func (d Document) Reply() (User, bool) {
	if d.ReplyTo == nil || d.ReplyTo.ID == "" {
		return User{}, false
	}
	return *d.ReplyTo, true
}

// Counts is the lemma multiset over all tokens, filtered or not.
func (d Document) Counts() textsim.Counts {
	counts := make(textsim.Counts, len(d.Tokens))
	for _, tok := range d.Tokens {
		counts.Add(tok.Lemma)
	}
	return counts
}

// Decode validates raw JSON and builds a Document from it.
func Decode(raw json.RawMessage, lex *Lexicon) (Document, error) {
	payload, err := payloadschema.ValidateTweetDocument(raw)
	if err != nil {
		return Document{}, err
	}
	return FromPayload(payload, lex)
}

// FromPayload converts a validated payload, classifying its tokens with lex.
func FromPayload(p *payloadschema.TweetDocument, lex *Lexicon) (Document, error) {
	if p == nil {
		return Document{}, fmt.Errorf("payload is nil")
	}
	if lex == nil {
		return Document{}, fmt.Errorf("lexicon is nil")
	}

	createdAt, err := payloadschema.ParseCreatedAt(p.CreatedAt)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:        strings.TrimSpace(p.ID),
		CreatedAt: createdAt,
		Text:      p.Text,
		User:      User{ID: p.User.ID, ScreenName: p.User.ScreenName},
		Tokens:    make([]Token, 0, len(p.Tokens)),
		Filtered:  make(textsim.Set, len(p.Tokens)),
		Keywords:  append([]string(nil), p.Keywords...),
		Groups:    append([]string(nil), p.Groups...),
	}

	for _, raw := range p.Tokens {
		tok := Token{Lemma: raw.Lemma, POS: raw.POS, POSProb: raw.POSProb}
		doc.Tokens = append(doc.Tokens, tok)
		if !lex.Filtered(tok) {
			doc.Filtered.Add(tok.Lemma)
		}
	}

	if rt := p.RetweetedStatus; rt != nil && strings.TrimSpace(rt.ID) != "" {
		doc.Retweet = &Retweet{
			ID:   strings.TrimSpace(rt.ID),
			User: User{ID: rt.User.ID, ScreenName: rt.User.ScreenName},
		}
	}

	if p.InReplyToUserID != nil && strings.TrimSpace(*p.InReplyToUserID) != "" {
		reply := User{ID: strings.TrimSpace(*p.InReplyToUserID)}
		if p.InReplyToScreenName != nil {
			reply.ScreenName = *p.InReplyToScreenName
		}
		doc.ReplyTo = &reply
	}

	if c := p.Coordinates; c != nil && strings.EqualFold(c.Type, "Point") && len(c.Coordinates) >= 2 {
		doc.Location = &Point{Lng: c.Coordinates[0], Lat: c.Coordinates[1]}
	}

	if e := p.Entities; e != nil {
		for _, m := range e.Media {
			if u := strings.TrimSpace(m.MediaURLHTTPS); u != "" {
				doc.Entities.Media = append(doc.Entities.Media, u)
			}
		}
		for _, u := range e.URLs {
			if u.ExpandedURL != nil && strings.TrimSpace(*u.ExpandedURL) != "" {
				doc.Entities.URLs = append(doc.Entities.URLs, strings.TrimSpace(*u.ExpandedURL))
			}
		}
		for _, h := range e.Hashtags {
			if text := strings.TrimSpace(h.Text); text != "" {
				doc.Entities.Hashtags = append(doc.Entities.Hashtags, text)
			}
		}
		for _, m := range e.UserMentions {
			if strings.TrimSpace(m.ID) != "" {
				doc.Entities.Mentions = append(doc.Entities.Mentions, User{ID: m.ID, ScreenName: m.ScreenName})
			}
		}
	}

	return doc, nil
}
