package api

import (
	"github.com/starford/lorekeeper/internal/models"
	"github.com/starford/lorekeeper/internal/monitor"
)

// ProfileRequest is the request body for creating a profile.
type ProfileRequest struct {
	Key string `json:"key" example:"casual" validate:"required"`
	models.Profile
}

// ProfileResponse is a profile together with its key.
type ProfileResponse struct {
	Key    string `json:"key" example:"casual" validate:"required"`
	Active bool   `json:"active"`
	models.Profile
}

// ProfileListResponse wraps profile listings.
type ProfileListResponse struct {
	Active   string            `json:"active" example:"default" validate:"required"`
	Profiles []ProfileResponse `json:"profiles" validate:"required"`
}

// UpdateDraftRequest replaces the categories of a draft.
type UpdateDraftRequest struct {
	Categories models.Categories `json:"categories" validate:"required"`
}

// PublishResponse is returned after a draft was posted.
type PublishResponse struct {
	Version  string `json:"version" example:"1.2.3" validate:"required"`
	Messages int    `json:"messages" example:"2" validate:"required"`
	Status   string `json:"status" example:"published" validate:"required"`
}

// StatusResponse is the dashboard landing summary.
type StatusResponse struct {
	Health        monitor.Health `json:"health"`
	Uptime        string         `json:"uptime" example:"2d 4h 10m"`
	ActiveProfile string         `json:"activeProfile" example:"default"`
	Drafts        int            `json:"drafts" example:"3"`
	Clients       int            `json:"clients" example:"1"`
}

func profileResponse(p models.Profile, activeKey string) ProfileResponse {
	return ProfileResponse{Key: p.Key, Active: p.Key == activeKey, Profile: p}
}
