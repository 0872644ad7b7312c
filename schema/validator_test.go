package payloadschema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestValidateTweetDocument_Valid(t *testing.T) {
	payload := json.RawMessage(`{
		"id":"861579034563338240",
		"created_at":"Mon May 08 13:05:12 +0000 2017",
		"text":"Prachtige tulpen op de veiling https://t.co/x",
		"user":{"id":"42","screen_name":"kweker"},
		"entities":{
			"media":[{"media_url_https":"https://pbs.twimg.com/media/a.jpg"}],
			"urls":[{"expanded_url":"https://example.nl/tulpen"},{"expanded_url":null}],
			"hashtags":[{"text":"tulpen"}],
			"user_mentions":[{"id":"7","screen_name":"veiling"}]
		},
		"in_reply_to_user_id_str":null,
		"coordinates":{"type":"Point","coordinates":[4.89,52.37]},
		"tokens":[
			{"lemma":"prachtig","pos":"ADJ(prenom,basis,met-e,stan)","posprob":0.9},
			{"lemma":"tulp","pos":"N(soort,mv,basis)","posprob":0.99}
		],
		"keywords":["tulp"],
		"groups":["bloemen"]
	}`)

	doc, err := ValidateTweetDocument(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}

	if doc.User.ScreenName != "kweker" {
		t.Fatalf("expected screen_name=kweker, got %q", doc.User.ScreenName)
	}
	if doc.Entities == nil || len(doc.Entities.URLs) != 2 || doc.Entities.URLs[1].ExpandedURL != nil {
		t.Fatalf("unexpected urls: %+v", doc.Entities)
	}
	if doc.Coordinates == nil || doc.Coordinates.Coordinates[1] != 52.37 {
		t.Fatalf("unexpected coordinates: %+v", doc.Coordinates)
	}
}

func TestValidateTweetDocument_MissingTokens(t *testing.T) {
	payload := json.RawMessage(`{
		"id":"1",
		"created_at":"2017-05-08T13:05:12Z",
		"user":{"id":"42","screen_name":"kweker"}
	}`)

	if _, err := ValidateTweetDocument(payload); err == nil {
		t.Fatalf("expected validation to fail for missing tokens")
	}
}

func TestValidateTweetDocument_BadTime(t *testing.T) {
	payload := json.RawMessage(`{
		"id":"1",
		"created_at":"yesterday",
		"user":{"id":"42","screen_name":"kweker"},
		"tokens":[]
	}`)

	_, err := ValidateTweetDocument(payload)
	if err == nil {
		t.Fatalf("expected validation to fail for unparseable created_at")
	}
	if !strings.Contains(err.Error(), "created_at") {
		t.Fatalf("expected created_at error, got: %v", err)
	}
}

func TestValidateTweetDocument_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"id":"1"} {"id":"2"}`)

	if _, err := ValidateTweetDocument(payload); err == nil {
		t.Fatalf("expected trailing content to be rejected")
	}
}

func TestParseCreatedAt(t *testing.T) {
	t.Parallel()

	want := time.Date(2017, 5, 8, 13, 5, 12, 0, time.UTC)
	for _, raw := range []string{"Mon May 08 13:05:12 +0000 2017", "2017-05-08T15:05:12+02:00"} {
		got, err := ParseCreatedAt(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("unexpected time for %q: got %s want %s", raw, got, want)
		}
	}
}
