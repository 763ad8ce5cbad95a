package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/patchnotes"
	"github.com/starford/lorekeeper/internal/textutil"
)

// DefaultChunkSize keeps published messages under the Discord message limit.
const DefaultChunkSize = 1900

// Publisher posts finished patch notes to the announcement channel.
type Publisher interface {
	Publish(ctx context.Context, content string) error
}

// DraftService publishes drafts through a Publisher.
type DraftService struct {
	drafts    *patchnotes.DraftStore
	publisher Publisher
	chunkSize int

	mu         sync.Mutex
	publishing map[string]struct{}
}

// NewDraftService creates a DraftService. publisher may be nil, in which
// case publishing fails with an input error.
func NewDraftService(drafts *patchnotes.DraftStore, publisher Publisher, chunkSize int) *DraftService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &DraftService{
		drafts:     drafts,
		publisher:  publisher,
		chunkSize:  chunkSize,
		publishing: make(map[string]struct{}),
	}
}

// Publish posts the Discord rendering of a draft, headed by its version, and
// marks the draft published. It returns the draft and the number of messages sent.
// A second publish of the same version while one is running is a conflict.
// A publish that fails partway leaves the draft unpublished; the sent count
// tells how far it got.
func (s *DraftService) Publish(ctx context.Context, version string) (*models.PatchDraft, int, error) {
	if s.publisher == nil {
		return nil, 0, apperr.Input("publishing is not configured")
	}
	if !s.begin(version) {
		return nil, 0, fmt.Errorf("%w: draft %s is being published", apperr.ErrConflict, version)
	}
	defer s.end(version)

	d, _, err := s.drafts.Get(version)
	if err != nil {
		return nil, 0, err
	}
	if d.Status == models.DraftStatusPublished {
		return nil, 0, fmt.Errorf("%w: draft %s is already published", apperr.ErrConflict, version)
	}
	if d.Discord == "" {
		d.Discord = patchnotes.RenderDiscord(d.Categories)
	}

	chunks := textutil.Chunk("**"+d.Version+"**\n\n"+d.Discord, s.chunkSize)
	for i, c := range chunks {
		if err := s.publisher.Publish(ctx, c); err != nil {
			return nil, i, fmt.Errorf("publish %s part %d/%d: %w", version, i+1, len(chunks), err)
		}
	}

	d, err = s.drafts.Publish(version)
	if err != nil {
		return nil, len(chunks), err
	}
	return d, len(chunks), nil
}

func (s *DraftService) begin(version string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.publishing[version]; busy {
		return false
	}
	s.publishing[version] = struct{}{}
	return true
}

func (s *DraftService) end(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.publishing, version)
}
