package orm

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AnnouncementInput struct {
	Title  string
	Text   string
	Active bool
}

func (db *DB) CreateAnnouncement(ctx context.Context, in AnnouncementInput) (*Announcement, error) {
	id, err := db.newID()
	if err != nil {
		return nil, &DatabaseError{Inner: fmt.Errorf("generate announcement id: %w", err)}
	}

	now := db.now()
	announcement := Announcement{
		ID:      id,
		Title:   in.Title,
		Text:    in.Text,
		Active:  in.Active,
		Created: now,
		Updated: now,
	}

	if err := gorm.G[Announcement](db.dbGorm).Create(ctx, &announcement); err != nil {
		return nil, wrapErrorWithDetails(err, "create announcement", fmt.Sprintf("title=%q", in.Title))
	}

	return &announcement, nil
}

// ListAnnouncements returns announcements newest first, optionally only the
// active ones.
func (db *DB) ListAnnouncements(ctx context.Context, activeOnly bool) ([]Announcement, error) {
	q := gorm.G[Announcement](db.dbGorm).Order("created DESC").Order("id DESC")
	if activeOnly {
		q = q.Where("active = ?", true)
	}

	announcements, err := q.Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "list announcements", fmt.Sprintf("active_only=%t", activeOnly))
	}

	if announcements == nil {
		announcements = []Announcement{}
	}

	return announcements, nil
}

func (db *DB) GetAnnouncement(ctx context.Context, id uuid.UUID) (*Announcement, error) {
	announcement, err := gorm.G[Announcement](db.dbGorm).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get announcement", "id="+id.String())
	}

	return &announcement, nil
}

func (db *DB) UpdateAnnouncement(
	ctx context.Context,
	id uuid.UUID,
	in AnnouncementInput,
) (*Announcement, error) {
	announcement, err := db.GetAnnouncement(ctx, id)
	if err != nil {
		return nil, err
	}

	announcement.Title = in.Title
	announcement.Text = in.Text
	announcement.Active = in.Active
	announcement.Updated = db.now()

	if err := db.dbGorm.WithContext(ctx).Save(announcement).Error; err != nil {
		return nil, wrapErrorWithDetails(err, "update announcement", "id="+id.String())
	}

	return announcement, nil
}

// DeleteAnnouncement is a no-op for unknown ids.
func (db *DB) DeleteAnnouncement(ctx context.Context, id uuid.UUID) error {
	_, err := gorm.G[Announcement](db.dbGorm).Where("id = ?", id).Delete(ctx)

	return wrapErrorWithDetails(err, "delete announcement", "id="+id.String())
}
