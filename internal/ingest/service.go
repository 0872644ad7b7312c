// Package ingest loads annotated documents from files into the document
// store. Production ingestion happens upstream; this path serves backfills
// and local runs.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"horse.fit/storify/internal/db"
	"horse.fit/storify/internal/logging"
	payloadschema "horse.fit/storify/schema"
)

// TweetWriter stores one document.
type TweetWriter interface {
	InsertTweet(ctx context.Context, row db.InsertTweetParams) (bool, error)
}

type Service struct {
	writer TweetWriter
	logger zerolog.Logger
}

type Result struct {
	Read       int
	Inserted   int
	Duplicates int
	Invalid    int
}

// InvalidDocument describes one payload rejected by validation.
type InvalidDocument struct {
	Index int
	ID    string
	Err   error
}

func NewService(writer TweetWriter, logger zerolog.Logger) *Service {
	return &Service{
		writer: writer,
		logger: logging.Component(logger, "ingest"),
	}
}

// IngestReader stores every document in r. Invalid documents are counted
// and logged; a storage failure aborts.
func (s *Service) IngestReader(ctx context.Context, r io.Reader) (Result, error) {
	if s == nil || s.writer == nil {
		return Result{}, fmt.Errorf("ingest service is not initialized")
	}

	var result Result
	err := EachDocument(r, func(index int, raw []byte) error {
		result.Read++

		row, err := Prepare(raw)
		if err != nil {
			result.Invalid++
			s.logger.Warn().Err(err).Int("index", index).Msg("skipping invalid document")
			return nil
		}

		inserted, err := s.writer.InsertTweet(ctx, row)
		if err != nil {
			return err
		}
		if inserted {
			result.Inserted++
		} else {
			result.Duplicates++
		}
		return nil
	})
	return result, err
}

// Prepare validates one payload and maps it to a storage row.
func Prepare(raw []byte) (db.InsertTweetParams, error) {
	doc, err := payloadschema.ValidateTweetDocument(raw)
	if err != nil {
		return db.InsertTweetParams{}, err
	}
	createdAt, err := payloadschema.ParseCreatedAt(doc.CreatedAt)
	if err != nil {
		return db.InsertTweetParams{}, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return db.InsertTweetParams{}, fmt.Errorf("compact payload: %w", err)
	}

	return db.InsertTweetParams{
		TweetID:   strings.TrimSpace(doc.ID),
		CreatedAt: createdAt,
		Keywords:  doc.Keywords,
		Groups:    doc.Groups,
		Payload:   compact.Bytes(),
	}, nil
}

// Validate checks every document in r and returns the rejected ones.
func Validate(r io.Reader) (int, []InvalidDocument, error) {
	var (
		scanned int
		invalid []InvalidDocument
	)
	err := EachDocument(r, func(index int, raw []byte) error {
		scanned++
		if _, err := payloadschema.ValidateTweetDocument(raw); err != nil {
			invalid = append(invalid, InvalidDocument{Index: index, ID: peekID(raw), Err: err})
		}
		return nil
	})
	return scanned, invalid, err
}

// EachDocument calls fn for every JSON object in r. r may hold one object,
// an array of objects, or newline separated objects.
func EachDocument(r io.Reader, fn func(index int, raw []byte) error) error {
	dec := json.NewDecoder(r)
	index := 0
	for {
		var value json.RawMessage
		err := dec.Decode(&value)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode document %d: %w", index, err)
		}

		trimmed := bytes.TrimSpace(value)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal(trimmed, &items); err != nil {
				return fmt.Errorf("decode document array: %w", err)
			}
			for _, item := range items {
				if err := fn(index, item); err != nil {
					return err
				}
				index++
			}
			continue
		}

		if err := fn(index, trimmed); err != nil {
			return err
		}
		index++
	}
}

func peekID(raw []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ID
}
