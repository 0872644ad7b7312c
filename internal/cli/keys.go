package cli

import (
	"strings"
)

// KeyList is a repeatable flag.Value collecting story keys. Each occurrence
// may itself carry a comma separated list; repeats are dropped.
type KeyList []string

func (k *KeyList) String() string {
	if k == nil {
		return ""
	}
	return strings.Join(*k, ",")
}

func (k *KeyList) Set(value string) error {
	*k = SplitList(strings.Join(append(*k, value), ","))
	return nil
}

// SplitList splits a comma separated list, trimming blanks and dropping
// duplicates while keeping first-seen order.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
