// Package payloadschema validates annotated tweet documents as delivered by
// the NLP annotator before they are decoded into domain types.
package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed tweet_document.schema.json
var tweetDocumentSchemaJSON string

// TwitterTimeFormat is the created_at layout of the Twitter v1.1 API.
const TwitterTimeFormat = "Mon Jan 02 15:04:05 +0000 2006"

type User struct {
	ID         string `json:"id"`
	ScreenName string `json:"screen_name"`
}

type Media struct {
	MediaURLHTTPS string `json:"media_url_https"`
}

type URL struct {
	ExpandedURL *string `json:"expanded_url,omitempty"`
}

type Hashtag struct {
	Text string `json:"text"`
}

type Entities struct {
	Media        []Media   `json:"media,omitempty"`
	URLs         []URL     `json:"urls,omitempty"`
	Hashtags     []Hashtag `json:"hashtags,omitempty"`
	UserMentions []User    `json:"user_mentions,omitempty"`
}

type RetweetedStatus struct {
	ID   string `json:"id"`
	User User   `json:"user"`
}

type Coordinates struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type Token struct {
	Lemma   string  `json:"lemma"`
	POS     string  `json:"pos"`
	POSProb float64 `json:"posprob"`
}

type TweetDocument struct {
	ID                  string           `json:"id"`
	CreatedAt           string           `json:"created_at"`
	Text                string           `json:"text"`
	User                User             `json:"user"`
	Entities            *Entities        `json:"entities,omitempty"`
	RetweetedStatus     *RetweetedStatus `json:"retweeted_status,omitempty"`
	InReplyToUserID     *string          `json:"in_reply_to_user_id_str,omitempty"`
	InReplyToScreenName *string          `json:"in_reply_to_screen_name,omitempty"`
	Coordinates         *Coordinates     `json:"coordinates,omitempty"`
	Tokens              []Token          `json:"tokens"`
	Keywords            []string         `json:"keywords,omitempty"`
	Groups              []string         `json:"groups,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateTweetDocument(payload json.RawMessage) (*TweetDocument, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var doc TweetDocument
	if err := json.Unmarshal(normalized, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// ParseCreatedAt accepts the Twitter layout and RFC3339.
func ParseCreatedAt(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if ts, err := time.Parse(TwitterTimeFormat, trimmed); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("created_at %q is neither Twitter nor RFC3339 time", raw)
	}
	return ts.UTC(), nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("tweet_document.schema.json", strings.NewReader(tweetDocumentSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("tweet_document.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(doc *TweetDocument) error {
	if doc == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("id must not be empty")
	}
	if strings.TrimSpace(doc.User.ID) == "" {
		return fmt.Errorf("user.id must not be empty")
	}
	if _, err := ParseCreatedAt(doc.CreatedAt); err != nil {
		return err
	}
	if doc.RetweetedStatus != nil && strings.TrimSpace(doc.RetweetedStatus.ID) == doc.ID {
		return fmt.Errorf("retweeted_status.id must differ from id")
	}
	if doc.Coordinates != nil && len(doc.Coordinates.Coordinates) < 2 {
		return fmt.Errorf("coordinates must carry longitude and latitude")
	}

	for i, tok := range doc.Tokens {
		if strings.TrimSpace(tok.Lemma) == "" {
			return fmt.Errorf("tokens[%d].lemma must not be empty", i)
		}
	}
	for i, group := range doc.Groups {
		if strings.TrimSpace(group) == "" {
			return fmt.Errorf("groups[%d] must not be empty", i)
		}
	}

	return nil
}
