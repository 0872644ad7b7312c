// Package snapshot encodes a key's active story list for the state store.
// Blobs carry an explicit format version; a blob with any other version is
// rejected rather than guessed at.
package snapshot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"horse.fit/storify/internal/storify"
)

const Version = 1

// KeyPrefix namespaces active story lists in the state store.
const KeyPrefix = "stories:"

var ErrVersion = errors.New("snapshot: unsupported version")

type Snapshot struct {
	Version int              `json:"version"`
	Key     string           `json:"key"`
	SavedAt time.Time        `json:"saved_at"`
	Stories []*storify.Story `json:"stories"`
}

// StateKey is the state-store key for a story key.
func StateKey(key string) string {
	return KeyPrefix + key
}

// KeyFromState reverses StateKey.
func KeyFromState(stateKey string) (string, bool) {
	if !strings.HasPrefix(stateKey, KeyPrefix) {
		return "", false
	}
	return strings.TrimPrefix(stateKey, KeyPrefix), true
}

func Encode(key string, stories []*storify.Story, savedAt time.Time) ([]byte, error) {
	if stories == nil {
		stories = []*storify.Story{}
	}
	data, err := json.Marshal(Snapshot{
		Version: Version,
		Key:     key,
		SavedAt: savedAt.UTC(),
		Stories: stories,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot key=%s: %w", key, err)
	}
	return data, nil
}

// Decode parses a blob written by Encode for key.
func Decode(key string, data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot key=%s: %w", key, err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("%w: got %d want %d", ErrVersion, snap.Version, Version)
	}
	if snap.Key != key {
		return nil, fmt.Errorf("decode snapshot: blob belongs to key=%q, not %q", snap.Key, key)
	}
	for i, s := range snap.Stories {
		if s == nil {
			return nil, fmt.Errorf("decode snapshot key=%s: story %d is null", key, i)
		}
		if s.Closed() {
			return nil, fmt.Errorf("decode snapshot key=%s: story %d is closed", key, s.ID)
		}
	}
	return &snap, nil
}
