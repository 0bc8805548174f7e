package api

import (
	"plugin-store/orm"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// Timestamp marshals as second-precision UTC ISO 8601.
type Timestamp time.Time

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Time(t).UTC().Format(timestampLayout) + `"`), nil
}

func timestampPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	ts := Timestamp(*t)

	return &ts
}

type versionResponse struct {
	Name      string    `json:"name"`
	Hash      string    `json:"hash"`
	Created   Timestamp `json:"created"`
	Downloads int64     `json:"downloads"`
	Updates   int64     `json:"updates"`
}

type pluginResponse struct {
	ID          uint              `json:"id"`
	Name        string            `json:"name"`
	Author      string            `json:"author"`
	Description string            `json:"description"`
	Tags        []string          `json:"tags"`
	Versions    []versionResponse `json:"versions"`
	ImageURL    string            `json:"image_url"`
	Visible     bool              `json:"visible"`
	Created     *Timestamp        `json:"created"`
	Updated     *Timestamp        `json:"updated"`
	Downloads   int64             `json:"downloads"`
	Updates     int64             `json:"updates"`
}

func newPluginResponse(a *orm.Artifact, cdnURL string) pluginResponse {
	versions := make([]versionResponse, 0, len(a.Versions))
	for _, v := range a.Versions {
		versions = append(versions, versionResponse{
			Name:      v.Name,
			Hash:      v.Hash,
			Created:   Timestamp(v.Created),
			Downloads: v.Downloads,
			Updates:   v.Updates,
		})
	}

	return pluginResponse{
		ID:          a.ID,
		Name:        a.Name,
		Author:      a.Author,
		Description: a.Description,
		Tags:        a.TagNames(),
		Versions:    versions,
		ImageURL:    a.ImageURL(cdnURL),
		Visible:     a.Visible,
		Created:     timestampPtr(a.Created()),
		Updated:     timestampPtr(a.Updated()),
		Downloads:   a.Downloads(),
		Updates:     a.Updates(),
	}
}

func newPluginListResponse(artifacts []orm.Artifact, cdnURL string) []pluginResponse {
	out := make([]pluginResponse, 0, len(artifacts))
	for i := range artifacts {
		out = append(out, newPluginResponse(&artifacts[i], cdnURL))
	}

	return out
}

type versionPayload struct {
	Name string `json:"name" binding:"required"`
	Hash string `json:"hash" binding:"required"`
}

type updateRequest struct {
	ID          uint             `json:"id"          binding:"required"`
	Name        string           `json:"name"        binding:"required"`
	Author      string           `json:"author"`
	Description string           `json:"description"`
	Tags        []string         `json:"tags"`
	Versions    []versionPayload `json:"versions"    binding:"dive"`
	Visible     *bool            `json:"visible"`
}

type deleteRequest struct {
	ID uint `json:"id" binding:"required"`
}

type listQuery struct {
	Query         string   `form:"query"`
	Tags          []string `form:"tags"`
	Hidden        bool     `form:"hidden"`
	SortBy        string   `form:"sort_by"        binding:"omitempty,oneof=name date downloads"`
	SortDirection string   `form:"sort_direction" binding:"omitempty,oneof=asc desc"`
}

type announcementRequest struct {
	Title  string `json:"title"  binding:"required"`
	Text   string `json:"text"`
	Active *bool  `json:"active"`
}

type announcementResponse struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Text    string    `json:"text"`
	Active  bool      `json:"active"`
	Created Timestamp `json:"created"`
	Updated Timestamp `json:"updated"`
}

// currentAnnouncementResponse is the public view, without the active flag.
type currentAnnouncementResponse struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Text    string    `json:"text"`
	Created Timestamp `json:"created"`
	Updated Timestamp `json:"updated"`
}

func newAnnouncementResponse(a *orm.Announcement) announcementResponse {
	return announcementResponse{
		ID:      a.ID,
		Title:   a.Title,
		Text:    a.Text,
		Active:  a.Active,
		Created: Timestamp(a.Created),
		Updated: Timestamp(a.Updated),
	}
}

func newCurrentAnnouncementResponse(a *orm.Announcement) currentAnnouncementResponse {
	return currentAnnouncementResponse{
		ID:      a.ID,
		Title:   a.Title,
		Text:    a.Text,
		Created: Timestamp(a.Created),
		Updated: Timestamp(a.Updated),
	}
}
