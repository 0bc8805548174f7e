package catalog

import (
	"context"
	"errors"
	"plugin-store/notifier"
	"plugin-store/orm"
	"plugin-store/storage"
	"time"

	"github.com/rs/zerolog/log"
)

// BlobUploader stores a named blob, retrying as it sees fit.
type BlobUploader interface {
	Upload(ctx context.Context, name string, content []byte, contentType string) error
}

// ImageFetcher downloads and validates a preview image.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*storage.Image, error)
}

// Service orchestrates catalog writes and reads over the repository, the
// blob store and the release notifier.
type Service struct {
	db       *orm.DB
	uploader BlobUploader
	images   ImageFetcher
	notifier notifier.Notifier
	cdnURL   string
	now      func() time.Time
}

func NewService(
	db *orm.DB,
	uploader BlobUploader,
	images ImageFetcher,
	n notifier.Notifier,
	cdnURL string,
) *Service {
	if n == nil {
		n = notifier.Noop{}
	}

	return &Service{
		db:       db,
		uploader: uploader,
		images:   images,
		notifier: n,
		cdnURL:   cdnURL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CDNURL() string {
	return s.cdnURL
}

type SubmitRequest struct {
	Name        string
	Author      string
	Description string
	Tags        []string
	VersionName string
	ImageURL    string
	File        []byte
	Force       bool
}

type VersionPayload struct {
	Name string
	Hash string
}

type ReplaceRequest struct {
	ID          uint
	Name        string
	Author      string
	Description string
	Tags        []string
	Visible     bool
	// Versions are ordered newest first.
	Versions []VersionPayload
}

type ListRequest struct {
	Query         string
	Tags          []string
	IncludeHidden bool
	SortBy        orm.SortType
	SortDirection orm.SortDirection
}

// Submit adds a version to the named plugin, creating the plugin when it
// does not exist yet. With Force an existing plugin is replaced entirely.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*orm.Artifact, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("plugin", req.Name).
		Str("version", req.VersionName).
		Bool("force", req.Force).
		Logger()

	existing, err := s.db.GetPluginByName(ctx, req.Name)
	if err != nil {
		return nil, wrapServiceError(err, "submission lookup")
	}
	if existing != nil && !req.Force && existing.HasVersion(req.VersionName) {
		return nil, newVersionExistsError()
	}

	imagePath := s.storeImage(ctx, req.Name, req.ImageURL)
	hash := storage.Checksum(req.File)

	var artifactID uint
	err = s.db.Transaction(ctx, func(tx *orm.DB) error {
		current, err := tx.GetPluginByName(ctx, req.Name)
		if err != nil {
			return err
		}

		if current != nil && req.Force {
			if err := tx.DeletePlugin(ctx, current.ID); err != nil {
				return err
			}
			current = nil
		}

		if current == nil {
			current, err = tx.InsertArtifact(ctx, orm.ArtifactInput{
				Name:        req.Name,
				Author:      req.Author,
				Description: req.Description,
				Tags:        req.Tags,
				ImagePath:   imagePath,
			})
		} else {
			if current.HasVersion(req.VersionName) {
				return ErrVersionExists
			}

			tags := req.Tags
			if tags == nil {
				tags = []string{}
			}
			current, err = tx.UpdateArtifact(ctx, current, orm.ArtifactUpdate{
				Author:      &req.Author,
				Description: &req.Description,
				ImagePath:   imagePath,
				Tags:        tags,
			})
		}
		if err != nil {
			return err
		}

		if _, err := tx.InsertVersion(ctx, current.ID, orm.VersionInput{
			Name: req.VersionName,
			Hash: hash,
		}); err != nil {
			return err
		}

		artifactID = current.ID

		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("submission failed")
		return nil, wrapServiceError(err, "submission")
	}

	if err := s.uploader.Upload(ctx, storage.VersionPath(hash), req.File, storage.ZipContentType); err != nil {
		logger.Warn().Err(err).Str("hash", hash).Msg("release blob was not stored")
	}

	artifact, err := s.db.GetPluginByID(ctx, artifactID)
	if err != nil {
		return nil, wrapServiceError(err, "submission refresh")
	}

	s.notifier.Announce(ctx, notifier.Release{
		PluginName:  artifact.Name,
		Author:      artifact.Author,
		Description: artifact.Description,
		ImageURL:    artifact.ImageURL(s.cdnURL),
		VersionName: req.VersionName,
	})

	logger.Info().Uint("id", artifact.ID).Str("hash", hash).Msg("submission stored")

	return artifact, nil
}

// storeImage fetches and uploads the preview image. Any failure yields nil
// so the artifact keeps its current or default image.
func (s *Service) storeImage(ctx context.Context, pluginName, imageURL string) *string {
	if imageURL == "" || s.images == nil {
		return nil
	}

	img, err := s.images.Fetch(ctx, imageURL)
	if err != nil {
		log.Warn().Err(err).Str("plugin", pluginName).Str("url", imageURL).Msg("image not usable")
		return nil
	}

	path := storage.ImagePath(pluginName, img)
	if err := s.uploader.Upload(ctx, path, img.Content, img.MediaType); err != nil {
		log.Warn().Err(err).Str("plugin", pluginName).Msg("image was not stored")
		return nil
	}

	return &path
}

// Replace rewrites the artifact with req.ID in a single transaction. The id
// and image are kept; versions whose name existed before keep their creation
// date, new ones get fresh timestamps that preserve the payload order.
func (s *Service) Replace(ctx context.Context, req ReplaceRequest) (*orm.Artifact, error) {
	if err := validateReplace(req); err != nil {
		return nil, err
	}

	err := s.db.Transaction(ctx, func(tx *orm.DB) error {
		old, err := tx.GetPluginByID(ctx, req.ID)
		if err != nil {
			return err
		}

		dates := make(map[string]time.Time, len(old.Versions))
		for _, v := range old.Versions {
			dates[v.Name] = v.Created
		}

		if err := tx.DeletePlugin(ctx, old.ID); err != nil {
			return err
		}

		visible := req.Visible
		if _, err := tx.InsertArtifact(ctx, orm.ArtifactInput{
			ID:          old.ID,
			Name:        req.Name,
			Author:      req.Author,
			Description: req.Description,
			Tags:        req.Tags,
			ImagePath:   old.ImagePath,
			Visible:     &visible,
		}); err != nil {
			return err
		}

		now := s.now()
		for i := len(req.Versions) - 1; i >= 0; i-- {
			v := req.Versions[i]

			created, known := dates[v.Name]
			if !known {
				inserted := len(req.Versions) - 1 - i
				created = now.Add(time.Duration(inserted) * time.Microsecond)
			}

			if _, err := tx.InsertVersion(ctx, old.ID, orm.VersionInput{
				Name:    v.Name,
				Hash:    v.Hash,
				Created: &created,
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		var notFound *orm.NotFoundError
		if errors.As(err, &notFound) {
			return nil, newNotFoundError("Plugin not found", err)
		}
		log.Error().Err(err).Uint("id", req.ID).Msg("replace failed")

		return nil, wrapServiceError(err, "update")
	}

	artifact, err := s.db.GetPluginByID(ctx, req.ID)
	if err != nil {
		return nil, wrapServiceError(err, "update refresh")
	}

	log.Info().Uint("id", artifact.ID).Str("plugin", artifact.Name).Msg("plugin replaced")

	return artifact, nil
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	if err := s.db.DeletePlugin(ctx, id); err != nil {
		return wrapServiceError(err, "delete")
	}

	log.Info().Uint("id", id).Msg("plugin deleted")

	return nil
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]orm.Artifact, error) {
	artifacts, err := s.db.Search(ctx, orm.SearchQuery{
		Name:          req.Query,
		Tags:          req.Tags,
		IncludeHidden: req.IncludeHidden,
		SortBy:        req.SortBy,
		SortDirection: req.SortDirection,
		Limit:         orm.DefaultSearchLimit,
	})
	if err != nil {
		return nil, wrapServiceError(err, "listing plugins")
	}

	return artifacts, nil
}

// Increment records one install or update of a plugin version and reports
// whether the version exists.
func (s *Service) Increment(ctx context.Context, pluginName, versionName string, isUpdate bool) (bool, error) {
	found, err := s.db.IncrementInstalls(ctx, pluginName, versionName, isUpdate)
	if err != nil {
		return false, wrapServiceError(err, "increment")
	}

	return found, nil
}
