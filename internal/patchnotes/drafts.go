package patchnotes

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/starford/lorekeeper/internal/apperr"
	"github.com/starford/lorekeeper/internal/checksum"
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/storage"
)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidVersion reports whether v is a plain x.y.z version.
func ValidVersion(v string) bool {
	return semverPattern.MatchString(v)
}

// DraftFile returns the file name of the draft for version.
func DraftFile(version string) string {
	return "draft-" + version + ".json"
}

// VersionFromFile extracts the version from a draft file name.
func VersionFromFile(name string) (string, bool) {
	v, ok := strings.CutPrefix(name, "draft-")
	if !ok {
		return "", false
	}
	v, ok = strings.CutSuffix(v, ".json")
	if !ok || !ValidVersion(v) {
		return "", false
	}
	return v, true
}

// CompareVersions orders two x.y.z versions numerically.
func CompareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, _ := strconv.Atoi(pa[i])
		nb, _ := strconv.Atoi(pb[i])
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return len(pa) - len(pb)
}

// DraftSummary is the listing view of a draft.
type DraftSummary struct {
	Version      string    `json:"version"`
	Status       string    `json:"status"`
	Generated    time.Time `json:"generated"`
	Updated      time.Time `json:"updated"`
	MessageCount int       `json:"messageCount"`
	ImageCount   int       `json:"imageCount"`
	ETag         string    `json:"etag"`
}

// DraftStore keeps one JSON file per draft version.
type DraftStore struct {
	fs         storage.Provider
	thresholds Thresholds
	now        func() time.Time

	// serialises read-modify-write cycles
	mu sync.Mutex
}

// NewDraftStore creates a DraftStore on fs.
func NewDraftStore(fs storage.Provider, th Thresholds) *DraftStore {
	return &DraftStore{fs: fs, thresholds: th, now: time.Now}
}

func (s *DraftStore) read(version string) (*models.PatchDraft, string, error) {
	if !ValidVersion(version) {
		return nil, "", apperr.Input("invalid version %q, expected x.y.z", version)
	}
	data, err := s.fs.Read(DraftFile(version))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, "", apperr.NotFound("no draft for version %s", version)
		}
		return nil, "", err
	}
	var d models.PatchDraft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, "", fmt.Errorf("patchnotes: decode draft %s: %w", version, err)
	}
	if d.ImageAssociations == nil {
		d.ImageAssociations = map[string][]int{}
	}
	return &d, checksum.ETag(data), nil
}

func (s *DraftStore) write(d *models.PatchDraft) (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("patchnotes: encode draft %s: %w", d.Version, err)
	}
	data = append(data, '\n')
	if err := s.fs.Write(DraftFile(d.Version), data); err != nil {
		return "", err
	}
	return checksum.ETag(data), nil
}

// Get loads the draft for version together with its entity tag.
func (s *DraftStore) Get(version string) (*models.PatchDraft, string, error) {
	return s.read(version)
}

// List returns every draft, newest version first.
func (s *DraftStore) List() ([]DraftSummary, error) {
	files, err := s.fs.List("", ".json")
	if err != nil {
		return nil, err
	}
	var out []DraftSummary
	for _, f := range files {
		version, ok := VersionFromFile(f.Path)
		if !ok {
			continue
		}
		d, etag, err := s.read(version)
		if err != nil {
			return nil, err
		}
		out = append(out, DraftSummary{
			Version:      d.Version,
			Status:       d.Status,
			Generated:    d.Generated,
			Updated:      d.Updated,
			MessageCount: d.MessageCount,
			ImageCount:   d.ImageCount,
			ETag:         etag,
		})
	}
	sort.Slice(out, func(i, j int) bool { return CompareVersions(out[i].Version, out[j].Version) > 0 })
	return out, nil
}

// Save writes d. When a draft for the same version exists its generated
// timestamp is kept.
func (s *DraftStore) Save(d *models.PatchDraft) (string, error) {
	if !ValidVersion(d.Version) {
		return "", apperr.Input("invalid version %q, expected x.y.z", d.Version)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if prev, _, err := s.read(d.Version); err == nil && !prev.Generated.IsZero() {
		d.Generated = prev.Generated
	} else if d.Generated.IsZero() {
		d.Generated = now
	}
	d.Updated = now
	if d.Status == "" {
		d.Status = models.DraftStatusDraft
	}
	return s.write(d)
}

// Delete removes the draft for version.
func (s *DraftStore) Delete(version string) error {
	if !ValidVersion(version) {
		return apperr.Input("invalid version %q, expected x.y.z", version)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fs.Delete(DraftFile(version)); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.NotFound("no draft for version %s", version)
		}
		return err
	}
	return nil
}

// Update replaces the categories of a draft, re-renders it and carries the
// image associations over. A non-empty ifMatch must match the current entity
// tag or ErrConflict is returned.
func (s *DraftStore) Update(version string, cats models.Categories, ifMatch string) (*models.PatchDraft, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, etag, err := s.read(version)
	if err != nil {
		return nil, "", err
	}
	if !checksum.Matches(ifMatch, etag) {
		return nil, "", fmt.Errorf("%w: draft %s changed since it was read", apperr.ErrConflict, version)
	}

	cats = Clean(cats)
	d.ImageAssociations = Reresolve(d.ImageAssociations, d.RawNotes, cats, s.thresholds)
	d.Categories = cats
	d.Discord = RenderDiscord(cats)
	d.HTML = RenderHTML(cats)
	d.AIFormatted = false
	d.Updated = s.now().UTC()

	etag, err = s.write(d)
	if err != nil {
		return nil, "", err
	}
	return d, etag, nil
}

// Publish marks a draft as published.
func (s *DraftStore) Publish(version string) (*models.PatchDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, _, err := s.read(version)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	d.Status = models.DraftStatusPublished
	d.PublishedAt = &now
	d.Updated = now
	if _, err := s.write(d); err != nil {
		return nil, err
	}
	return d, nil
}
