package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lorekeeper/internal/monitor"
	"github.com/starford/lorekeeper/internal/patchnotes"
	"github.com/starford/lorekeeper/internal/profile"
	"github.com/starford/lorekeeper/internal/sse"
)

// Deps are the stores and services behind the handlers.
type Deps struct {
	Monitor   *monitor.Monitor
	Profiles  *profile.Store
	Drafts    *patchnotes.DraftStore
	Publisher Publisher
	ImagesDir string
	ChunkSize int
	// Broker, if set, receives profile switches and publications.
	Broker *sse.Broker
	Logger *slog.Logger
}

// Handler holds API route handlers.
type Handler struct {
	monitor  *monitor.Monitor
	profiles *profile.Store
	drafts   *patchnotes.DraftStore
	service  *DraftService
	images   *ImageHandler
	imageDir string
	broker   *sse.Broker
	logger   *slog.Logger
	now      func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		monitor:  d.Monitor,
		profiles: d.Profiles,
		drafts:   d.Drafts,
		service:  NewDraftService(d.Drafts, d.Publisher, d.ChunkSize),
		images:   NewImageHandler(d.ImagesDir),
		imageDir: d.ImagesDir,
		broker:   d.Broker,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handler) notify(typ string, data map[string]string) {
	if h.broker != nil {
		h.broker.Publish(sse.Event{Type: typ, Data: data})
	}
}

// Health handles GET /health.
//
//	@Summary	Liveness check
//	@Tags		system
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status handles GET /status.
//
//	@Summary	Health, uptime and active profile
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Security	BasicAuth
//	@Router		/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.monitor.Status()
	resp := StatusResponse{
		Health:        h.monitor.Health(h.now()),
		Uptime:        st.Uptime,
		ActiveProfile: h.profiles.ActiveKey(),
	}
	if drafts, err := h.drafts.List(); err == nil {
		resp.Drafts = len(drafts)
	} else {
		h.logger.Warn("api: list drafts failed", slog.String("error", err.Error()))
	}
	if h.broker != nil {
		resp.Clients = h.broker.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Metrics handles GET /metrics.
//
//	@Summary	Bot counters
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	monitor.Status
//	@Security	BasicAuth
//	@Router		/metrics [get]
func (h *Handler) Metrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Status())
}

// Costs handles GET /costs.
//
//	@Summary	Token usage and spending
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	monitor.Costs
//	@Security	BasicAuth
//	@Router		/costs [get]
func (h *Handler) Costs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.monitor.Costs(r.Context()))
}

// ListProfiles handles GET /profiles.
//
//	@Summary	List profiles
//	@Tags		profiles
//	@Produce	json
//	@Success	200	{object}	ProfileListResponse
//	@Security	BasicAuth
//	@Router		/profiles [get]
func (h *Handler) ListProfiles(w http.ResponseWriter, _ *http.Request) {
	list, err := h.profiles.List()
	if err != nil {
		writeError(w, h.logger, "list profiles", err)
		return
	}
	active := h.profiles.ActiveKey()
	resp := ProfileListResponse{Active: active, Profiles: make([]ProfileResponse, 0, len(list))}
	for _, p := range list {
		resp.Profiles = append(resp.Profiles, profileResponse(p, active))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateProfile handles POST /profiles.
//
//	@Summary	Create a profile
//	@Tags		profiles
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ProfileRequest	true	"Profile to create"
//	@Success	201		{object}	ProfileResponse
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Security	BasicAuth
//	@Router		/profiles [post]
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "create profile", err)
		return
	}
	p := req.Profile
	p.Key = req.Key
	created, err := h.profiles.Create(p)
	if err != nil {
		writeError(w, h.logger, "create profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, profileResponse(created, h.profiles.ActiveKey()))
}

// UpdateProfile handles PUT /profiles/{key}.
//
//	@Summary	Update profile fields
//	@Tags		profiles
//	@Accept		json
//	@Produce	json
//	@Param		key		path		string			true	"Profile key"
//	@Param		body	body		profile.Patch	true	"Fields to change"
//	@Success	200		{object}	ProfileResponse
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Security	BasicAuth
//	@Router		/profiles/{key} [put]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch profile.Patch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, h.logger, "update profile", err)
		return
	}
	p, err := h.profiles.Update(chi.URLParam(r, "key"), patch)
	if err != nil {
		writeError(w, h.logger, "update profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(p, h.profiles.ActiveKey()))
}

// DeleteProfile handles DELETE /profiles/{key}.
//
//	@Summary	Delete a profile
//	@Tags		profiles
//	@Param		key	path	string	true	"Profile key"
//	@Success	204
//	@Failure	400	{object}	errResponse
//	@Failure	404	{object}	errResponse
//	@Security	BasicAuth
//	@Router		/profiles/{key} [delete]
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := h.profiles.Delete(chi.URLParam(r, "key")); err != nil {
		writeError(w, h.logger, "delete profile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SwitchProfile handles POST /profiles/{key}/switch.
//
//	@Summary	Make a profile active
//	@Tags		profiles
//	@Produce	json
//	@Param		key	path		string	true	"Profile key"
//	@Success	200	{object}	ProfileResponse
//	@Failure	404	{object}	errResponse
//	@Security	BasicAuth
//	@Router		/profiles/{key}/switch [post]
func (h *Handler) SwitchProfile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	prev := h.profiles.ActiveKey()
	p, err := h.profiles.Switch(key)
	if err != nil {
		writeError(w, h.logger, "switch profile", err)
		return
	}
	h.monitor.TrackProfileSwitch(prev, key)
	h.notify("profile.switched", map[string]string{"key": key, "previous": prev})
	writeJSON(w, http.StatusOK, profileResponse(p, key))
}

// ListDrafts handles GET /drafts.
//
//	@Summary	List patch-note drafts, newest first
//	@Tags		drafts
//	@Produce	json
//	@Success	200	{array}	patchnotes.DraftSummary
//	@Security	BasicAuth
//	@Router		/drafts [get]
func (h *Handler) ListDrafts(w http.ResponseWriter, _ *http.Request) {
	list, err := h.drafts.List()
	if err != nil {
		writeError(w, h.logger, "list drafts", err)
		return
	}
	if list == nil {
		list = []patchnotes.DraftSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetDraft handles GET /drafts/{version}.
//
//	@Summary	Get a draft
//	@Tags		drafts
//	@Produce	json
//	@Param		version	path		string	true	"Version (x.y.z)"
//	@Success	200		{object}	models.PatchDraft
//	@Failure	404		{object}	errResponse
//	@Security	BasicAuth
//	@Router		/drafts/{version} [get]
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, etag, err := h.drafts.Get(chi.URLParam(r, "version"))
	if err != nil {
		writeError(w, h.logger, "get draft", err)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, d)
}

// UpdateDraft handles PUT /drafts/{version}.
//
//	@Summary	Replace the categories of a draft
//	@Tags		drafts
//	@Accept		json
//	@Produce	json
//	@Param		version		path		string				true	"Version (x.y.z)"
//	@Param		If-Match	header		string				false	"ETag from GET"
//	@Param		body		body		UpdateDraftRequest	true	"New categories"
//	@Success	200			{object}	models.PatchDraft
//	@Failure	400			{object}	errResponse
//	@Failure	404			{object}	errResponse
//	@Failure	409			{object}	errResponse
//	@Security	BasicAuth
//	@Router		/drafts/{version} [put]
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req UpdateDraftRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, "update draft", err)
		return
	}
	if req.Categories == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("categories is required"))
		return
	}
	d, etag, err := h.drafts.Update(chi.URLParam(r, "version"), req.Categories, r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, h.logger, "update draft", err)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, d)
}

// DeleteDraft handles DELETE /drafts/{version}. Downloaded images of the
// draft are removed with it.
//
//	@Summary	Delete a draft
//	@Tags		drafts
//	@Param		version	path	string	true	"Version (x.y.z)"
//	@Success	204
//	@Failure	404	{object}	errResponse
//	@Security	BasicAuth
//	@Router		/drafts/{version} [delete]
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	if err := h.drafts.Delete(version); err != nil {
		writeError(w, h.logger, "delete draft", err)
		return
	}
	if h.imageDir != "" {
		if err := os.RemoveAll(filepath.Join(h.imageDir, version)); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("api: remove draft images failed", slog.String("version", version), slog.String("error", err.Error()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishDraft handles POST /drafts/{version}/publish.
//
//	@Summary	Post a draft to the announcement channel
//	@Tags		drafts
//	@Produce	json
//	@Param		version	path		string	true	"Version (x.y.z)"
//	@Success	200		{object}	PublishResponse
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Security	BasicAuth
//	@Router		/drafts/{version}/publish [post]
func (h *Handler) PublishDraft(w http.ResponseWriter, r *http.Request) {
	version := chi.URLParam(r, "version")
	d, sent, err := h.service.Publish(r.Context(), version)
	if err != nil {
		if sent > 0 {
			h.logger.Error("api: publish interrupted", slog.String("version", version), slog.Int("sent", sent))
		}
		writeError(w, h.logger, "publish draft", err)
		return
	}
	h.logger.Info("api: draft published", slog.String("version", version), slog.Int("messages", sent))
	h.notify("draft.published", map[string]string{"version": version})
	writeJSON(w, http.StatusOK, PublishResponse{Version: d.Version, Messages: sent, Status: d.Status})
}

// ServeImage handles GET /drafts/{version}/images/{filename}.
//
//	@Summary	Download a draft image
//	@Tags		drafts
//	@Param		version		path	string	true	"Version (x.y.z)"
//	@Param		filename	path	string	true	"Image file name"
//	@Success	200
//	@Failure	400	{object}	errResponse
//	@Failure	404	{object}	errResponse
//	@Security	BasicAuth
//	@Router		/drafts/{version}/images/{filename} [get]
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	h.images.ServeFile(w, r)
}
