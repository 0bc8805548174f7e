package orm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ArtifactInput struct {
	// ID forces the primary key; zero lets the database assign one.
	ID          uint
	Name        string
	Author      string
	Description string
	Tags        []string
	ImagePath   *string
	// Visible defaults to true when nil.
	Visible *bool
}

// ArtifactUpdate lists the fields to overwrite. Nil fields are left as is;
// a nil Tags slice keeps the current tags, an empty one clears them.
type ArtifactUpdate struct {
	Author      *string
	Description *string
	ImagePath   *string
	Visible     *bool
	Tags        []string
}

type VersionInput struct {
	Name string
	Hash string
	// Created defaults to the current time when nil.
	Created *time.Time
}

// Transaction runs fn inside a single database transaction holding the write
// lock. Nested calls reuse the surrounding transaction.
func (db *DB) Transaction(ctx context.Context, fn func(tx *DB) error) error {
	if db.inTx {
		return fn(db)
	}

	db.writeLock.Lock()
	defer db.writeLock.Unlock()

	return db.dbGorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(db.UseTransaction(tx))
	})
}

func preloadArtifact(q *gorm.DB) *gorm.DB {
	return q.
		Preload("Tags", func(db *gorm.DB) *gorm.DB {
			return db.Order("tags.id ASC")
		}).
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("versions.created DESC").Order("versions.id ASC")
		})
}

// prepareTags resolves names to tag rows, creating the missing ones. Blank
// and duplicate names are dropped. The result is ordered by id.
func (db *DB) prepareTags(ctx context.Context, names []string) ([]Tag, error) {
	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}

	if len(unique) == 0 {
		return []Tag{}, nil
	}

	rows := make([]Tag, 0, len(unique))
	for _, n := range unique {
		rows = append(rows, Tag{Name: n})
	}

	err := db.dbGorm.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "tag"}}, DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "create tags", fmt.Sprintf("tags=%v", unique))
	}

	tags, err := gorm.G[Tag](db.dbGorm).
		Where("tag IN ?", unique).
		Order("id ASC").
		Find(ctx)
	if err != nil {
		return nil, wrapErrorWithDetails(err, "load tags", fmt.Sprintf("tags=%v", unique))
	}

	return tags, nil
}

func (db *DB) linkTags(ctx context.Context, artifactID uint, tags []Tag) error {
	if len(tags) == 0 {
		return nil
	}

	links := make([]PluginTag, 0, len(tags))
	for _, t := range tags {
		links = append(links, PluginTag{ArtifactID: artifactID, TagID: t.ID})
	}

	return db.dbGorm.WithContext(ctx).Create(&links).Error
}

func (db *DB) InsertArtifact(ctx context.Context, in ArtifactInput) (*Artifact, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &BadInputError{Reason: "artifact name must not be empty"}
	}

	detailString := fmt.Sprintf("id=%d, name=%q, author=%q, tags=%v", in.ID, in.Name, in.Author, in.Tags)

	visible := true
	if in.Visible != nil {
		visible = *in.Visible
	}

	var inserted *Artifact
	err := db.Transaction(ctx, func(tx *DB) error {
		tags, err := tx.prepareTags(ctx, in.Tags)
		if err != nil {
			return err
		}

		artifact := Artifact{
			ID:          in.ID,
			Name:        in.Name,
			Author:      in.Author,
			Description: in.Description,
			Visible:     visible,
			ImagePath:   in.ImagePath,
		}
		err = tx.dbGorm.WithContext(ctx).Omit(clause.Associations).Create(&artifact).Error
		if err != nil {
			return wrapErrorWithDetails(err, "insert artifact", detailString)
		}

		if err := tx.linkTags(ctx, artifact.ID, tags); err != nil {
			return wrapErrorWithDetails(err, "link artifact tags", detailString)
		}

		inserted, err = tx.GetPluginByID(ctx, artifact.ID)

		return err
	})
	if err != nil {
		return nil, wrapErrorWithDetails(err, "insert artifact", detailString)
	}

	return inserted, nil
}

func (db *DB) UpdateArtifact(
	ctx context.Context,
	artifact *Artifact,
	upd ArtifactUpdate,
) (*Artifact, error) {
	if artifact == nil || artifact.ID == 0 {
		return nil, &BadInputError{Reason: "update of an artifact without id"}
	}

	detailString := fmt.Sprintf("id=%d, name=%q", artifact.ID, artifact.Name)

	var updated *Artifact
	err := db.Transaction(ctx, func(tx *DB) error {
		columns := map[string]any{}
		if upd.Author != nil {
			columns["author"] = *upd.Author
		}
		if upd.Description != nil {
			columns["description"] = *upd.Description
		}
		if upd.ImagePath != nil {
			columns["image_path"] = *upd.ImagePath
		}
		if upd.Visible != nil {
			columns["visible"] = *upd.Visible
		}

		if len(columns) > 0 {
			res := tx.dbGorm.WithContext(ctx).
				Model(&Artifact{}).
				Where("id = ?", artifact.ID).
				Updates(columns)
			if res.Error != nil {
				return wrapErrorWithDetails(res.Error, "update artifact", detailString)
			}
			if res.RowsAffected == 0 {
				return &NotFoundError{Search: "update artifact (" + detailString + ")"}
			}
		}

		if upd.Tags != nil {
			tags, err := tx.prepareTags(ctx, upd.Tags)
			if err != nil {
				return err
			}

			err = tx.dbGorm.WithContext(ctx).
				Where("artifact_id = ?", artifact.ID).
				Delete(&PluginTag{}).Error
			if err != nil {
				return wrapErrorWithDetails(err, "unlink artifact tags", detailString)
			}

			if err := tx.linkTags(ctx, artifact.ID, tags); err != nil {
				return wrapErrorWithDetails(err, "link artifact tags", detailString)
			}
		}

		var err error
		updated, err = tx.GetPluginByID(ctx, artifact.ID)

		return err
	})
	if err != nil {
		return nil, wrapErrorWithDetails(err, "update artifact", detailString)
	}

	return updated, nil
}

func (db *DB) InsertVersion(
	ctx context.Context,
	artifactID uint,
	in VersionInput,
) (*Version, error) {
	if in.Name == "" || in.Hash == "" {
		return nil, &BadInputError{
			Reason: fmt.Sprintf(
				"version name and hash must be provided: name=%q, hash=%q",
				in.Name,
				in.Hash,
			),
		}
	}

	detailString := fmt.Sprintf("artifact_id=%d, version=%q", artifactID, in.Name)

	version := Version{
		ArtifactID: artifactID,
		Name:       in.Name,
		Hash:       in.Hash,
	}

	err := db.Transaction(ctx, func(tx *DB) error {
		if in.Created != nil {
			version.Created = in.Created.UTC()
		} else {
			version.Created = tx.now()
		}

		return gorm.G[Version](tx.dbGorm).Create(ctx, &version)
	})
	if err != nil {
		return nil, wrapErrorWithDetails(err, "insert version", detailString)
	}

	return &version, nil
}

// GetPluginByName returns nil without error when no artifact has that name.
func (db *DB) GetPluginByName(ctx context.Context, name string) (*Artifact, error) {
	var artifact Artifact

	err := preloadArtifact(db.dbGorm.WithContext(ctx)).
		Where("name = ?", name).
		Take(&artifact).Error
	if err != nil {
		err = wrapErrorWithDetails(err, "get plugin by name", fmt.Sprintf("name=%q", name))
		if _, ok := err.(*NotFoundError); ok {
			return nil, nil
		}

		return nil, err
	}

	artifact.normalize()

	return &artifact, nil
}

func (db *DB) GetPluginByID(ctx context.Context, id uint) (*Artifact, error) {
	var artifact Artifact

	err := preloadArtifact(db.dbGorm.WithContext(ctx)).
		Where("id = ?", id).
		Take(&artifact).Error
	if err != nil {
		return nil, wrapErrorWithDetails(err, "get plugin by id", fmt.Sprintf("id=%d", id))
	}

	artifact.normalize()

	return &artifact, nil
}

// DeletePlugin removes the artifact, its versions and its tag links. Tags
// themselves are kept. Deleting an unknown id is not an error.
func (db *DB) DeletePlugin(ctx context.Context, id uint) error {
	detailString := fmt.Sprintf("id=%d", id)

	return db.Transaction(ctx, func(tx *DB) error {
		q := tx.dbGorm.WithContext(ctx)

		if err := q.Where("artifact_id = ?", id).Delete(&PluginTag{}).Error; err != nil {
			return wrapErrorWithDetails(err, "delete plugin tags", detailString)
		}

		if _, err := gorm.G[Version](tx.dbGorm).Where("artifact_id = ?", id).Delete(ctx); err != nil {
			return wrapErrorWithDetails(err, "delete plugin versions", detailString)
		}

		if _, err := gorm.G[Artifact](tx.dbGorm).Where("id = ?", id).Delete(ctx); err != nil {
			return wrapErrorWithDetails(err, "delete plugin", detailString)
		}

		return nil
	})
}

// IncrementInstalls bumps the download or update counter of one version of
// the named plugin. It reports false when the plugin or version is unknown.
func (db *DB) IncrementInstalls(
	ctx context.Context,
	pluginName, versionName string,
	isUpdate bool,
) (bool, error) {
	artifact, err := db.GetPluginByName(ctx, pluginName)
	if err != nil {
		return false, err
	}
	if artifact == nil {
		return false, nil
	}

	column := "downloads"
	if isUpdate {
		column = "updates"
	}

	res := db.dbGorm.WithContext(ctx).
		Model(&Version{}).
		Where("artifact_id = ? AND name = ?", artifact.ID, versionName).
		UpdateColumn(column, gorm.Expr(column+" + ?", 1))
	if res.Error != nil {
		return false, wrapErrorWithDetails(
			res.Error,
			"increment installs",
			fmt.Sprintf("plugin=%q, version=%q, column=%s", pluginName, versionName, column),
		)
	}

	return res.RowsAffected == 1, nil
}
