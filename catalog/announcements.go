package catalog

import (
	"context"
	"errors"
	"plugin-store/orm"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type AnnouncementRequest struct {
	Title  string
	Text   string
	Active bool
}

func validateAnnouncement(req AnnouncementRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return newInvalidInputError("title cannot be empty")
	}

	return nil
}

func (s *Service) CreateAnnouncement(ctx context.Context, req AnnouncementRequest) (*orm.Announcement, error) {
	if err := validateAnnouncement(req); err != nil {
		return nil, err
	}

	announcement, err := s.db.CreateAnnouncement(ctx, orm.AnnouncementInput(req))
	if err != nil {
		return nil, wrapServiceError(err, "creating announcement")
	}

	log.Info().Str("id", announcement.ID.String()).Msg("announcement created")

	return announcement, nil
}

// ListAnnouncements returns every announcement, newest first.
func (s *Service) ListAnnouncements(ctx context.Context) ([]orm.Announcement, error) {
	announcements, err := s.db.ListAnnouncements(ctx, false)
	if err != nil {
		return nil, wrapServiceError(err, "listing announcements")
	}

	return announcements, nil
}

// CurrentAnnouncements returns the active announcements, newest first.
func (s *Service) CurrentAnnouncements(ctx context.Context) ([]orm.Announcement, error) {
	announcements, err := s.db.ListAnnouncements(ctx, true)
	if err != nil {
		return nil, wrapServiceError(err, "listing current announcements")
	}

	return announcements, nil
}

func (s *Service) GetAnnouncement(ctx context.Context, id uuid.UUID) (*orm.Announcement, error) {
	announcement, err := s.db.GetAnnouncement(ctx, id)
	if err != nil {
		return nil, announcementError(err, "fetching announcement")
	}

	return announcement, nil
}

func (s *Service) UpdateAnnouncement(
	ctx context.Context,
	id uuid.UUID,
	req AnnouncementRequest,
) (*orm.Announcement, error) {
	if err := validateAnnouncement(req); err != nil {
		return nil, err
	}

	announcement, err := s.db.UpdateAnnouncement(ctx, id, orm.AnnouncementInput(req))
	if err != nil {
		return nil, announcementError(err, "updating announcement")
	}

	log.Info().Str("id", id.String()).Msg("announcement updated")

	return announcement, nil
}

func (s *Service) DeleteAnnouncement(ctx context.Context, id uuid.UUID) error {
	if err := s.db.DeleteAnnouncement(ctx, id); err != nil {
		return wrapServiceError(err, "deleting announcement")
	}

	log.Info().Str("id", id.String()).Msg("announcement deleted")

	return nil
}

func announcementError(err error, operation string) error {
	var notFound *orm.NotFoundError
	if errors.As(err, &notFound) {
		return newNotFoundError("Announcement not found", err)
	}

	return wrapServiceError(err, operation)
}
