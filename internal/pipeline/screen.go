package pipeline

import (
	"context"
	"errors"
	"sort"

	"horse.fit/storify/internal/nsfw"
	"horse.fit/storify/internal/storify"
)

// screen decides which members and photos of a closed story are published
// and which documents get flagged as spam. Obscene members are left out of
// the tweet list and flagged. Photos scored above the NSFW threshold are
// dropped and the documents carrying them flagged. Photos the scorer
// rejects or fails on are dropped without flagging.
func (s *Service) screen(ctx context.Context, key string, story *storify.Story) (storify.Screening, []string) {
	screening := storify.Screening{Excluded: make(map[string]struct{})}
	flagged := make(map[string]struct{})

	for _, doc := range story.Members() {
		if s.opts.Lexicon.ContainsObscene(doc) {
			screening.Excluded[doc.ID] = struct{}{}
			flagged[doc.ID] = struct{}{}
		}
	}

	views := story.Views()
	if s.deps.Images != nil && views != nil {
		screening.PhotosScreened = true
		screening.Photos = make([]storify.Occurrence, 0, len(views.Photos))
		for _, photo := range views.Photos {
			score, err := s.deps.Images.Score(ctx, photo.Link)
			switch {
			case errors.Is(err, nsfw.ErrInvalidImage):
				continue
			case err != nil:
				s.logger.Warn().Err(err).Str("key", key).Int64("story_id", story.ID).Str("url", photo.Link).Msg("image scoring failed; omitting photo")
				continue
			case score > s.opts.NSFWThreshold:
				for _, id := range views.Media[photo.Link] {
					flagged[id] = struct{}{}
				}
				continue
			}
			screening.Photos = append(screening.Photos, photo)
		}
	}

	ids := make([]string, 0, len(flagged))
	for id := range flagged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return screening, ids
}
