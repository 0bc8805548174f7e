package orm

import (
	"net/url"
	"sort"
	"time"

	"github.com/google/uuid"
)

type Artifact struct {
	ID          uint    `gorm:"primaryKey;autoIncrement"       json:"id"`
	Name        string  `gorm:"uniqueIndex;size:255;not null"  json:"name"`
	Author      string  `gorm:"size:255;not null"              json:"author"`
	Description string  `gorm:"not null"                       json:"description"`
	Visible     bool    `gorm:"not null"                       json:"visible"`
	ImagePath   *string `gorm:"size:512"                       json:"image_path,omitempty"`

	Tags     []Tag     `gorm:"many2many:plugin_tag;constraint:OnDelete:CASCADE" json:"tags"`
	Versions []Version `gorm:"foreignKey:ArtifactID;constraint:OnDelete:CASCADE" json:"versions"`
}

type Tag struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"              json:"id"`
	Name string `gorm:"column:tag;uniqueIndex;size:255;not null" json:"tag"`
}

// PluginTag is the join row between artifacts and tags.
type PluginTag struct {
	ArtifactID uint `gorm:"primaryKey"`
	TagID      uint `gorm:"primaryKey"`
}

func (PluginTag) TableName() string {
	return "plugin_tag"
}

type Version struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"                             json:"id"`
	ArtifactID uint      `gorm:"not null;uniqueIndex:unique_version_artifact_id_name" json:"artifact_id"`
	Name       string    `gorm:"size:255;not null;uniqueIndex:unique_version_artifact_id_name" json:"name"`
	Hash       string    `gorm:"size:64;not null"                                     json:"hash"`
	Created    time.Time `gorm:"not null;index"                                       json:"created"`
	Downloads  int64     `gorm:"not null;default:0"                                   json:"downloads"`
	Updates    int64     `gorm:"not null;default:0"                                   json:"updates"`
}

type Announcement struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title   string    `gorm:"not null"             json:"title"`
	Text    string    `gorm:"not null"             json:"text"`
	Active  bool      `gorm:"not null"             json:"active"`
	Created time.Time `gorm:"not null;index"       json:"created"`
	Updated time.Time `gorm:"not null"             json:"updated"`
}

// Downloads is the sum of downloads over every version.
func (a *Artifact) Downloads() int64 {
	var total int64
	for _, v := range a.Versions {
		total += v.Downloads
	}

	return total
}

// Updates is the sum of updates over every version.
func (a *Artifact) Updates() int64 {
	var total int64
	for _, v := range a.Versions {
		total += v.Updates
	}

	return total
}

// Created is the timestamp of the oldest version, nil without versions.
func (a *Artifact) Created() *time.Time {
	var oldest *time.Time
	for i := range a.Versions {
		c := a.Versions[i].Created
		if oldest == nil || c.Before(*oldest) {
			oldest = &c
		}
	}

	return oldest
}

// Updated is the timestamp of the newest version, nil without versions.
func (a *Artifact) Updated() *time.Time {
	var newest *time.Time
	for i := range a.Versions {
		c := a.Versions[i].Created
		if newest == nil || c.After(*newest) {
			newest = &c
		}
	}

	return newest
}

// EffectiveImagePath returns the stored image path or the conventional
// artifact_images/<name>.png fallback.
func (a *Artifact) EffectiveImagePath() string {
	if a.ImagePath != nil && *a.ImagePath != "" {
		return *a.ImagePath
	}

	return "artifact_images/" + url.PathEscape(a.Name) + ".png"
}

func (a *Artifact) ImageURL(cdnURL string) string {
	return cdnURL + a.EffectiveImagePath()
}

func (a *Artifact) TagNames() []string {
	names := make([]string, 0, len(a.Tags))
	for _, t := range a.Tags {
		names = append(names, t.Name)
	}

	return names
}

func (a *Artifact) HasVersion(name string) bool {
	for _, v := range a.Versions {
		if v.Name == name {
			return true
		}
	}

	return false
}

// normalize puts associations in presentation order: tags by id ascending,
// versions newest first with ties broken by insertion order.
func (a *Artifact) normalize() {
	if a.Tags == nil {
		a.Tags = []Tag{}
	}
	if a.Versions == nil {
		a.Versions = []Version{}
	}

	sort.SliceStable(a.Tags, func(i, j int) bool {
		return a.Tags[i].ID < a.Tags[j].ID
	})
	sort.SliceStable(a.Versions, func(i, j int) bool {
		vi, vj := a.Versions[i], a.Versions[j]
		if !vi.Created.Equal(vj.Created) {
			return vi.Created.After(vj.Created)
		}

		return vi.ID < vj.ID
	})
}
