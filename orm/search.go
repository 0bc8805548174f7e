package orm

import (
	"context"
	"fmt"
	"strings"
)

type SortType string

const (
	SortNone      SortType = ""
	SortName      SortType = "name"
	SortDate      SortType = "date"
	SortDownloads SortType = "downloads"
)

type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

const DefaultSearchLimit = 50

type SearchQuery struct {
	// Name is matched case-insensitively as a substring.
	Name string
	// Tags must all be present on a matching artifact.
	Tags          []string
	IncludeHidden bool
	SortBy        SortType
	// SortDirection defaults to descending.
	SortDirection SortDirection
	// Limit defaults to DefaultSearchLimit.
	Limit int
	Page  int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search lists artifacts matching q with their tags and versions loaded.
func (db *DB) Search(ctx context.Context, q SearchQuery) ([]Artifact, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	page := q.Page
	if page < 0 {
		page = 0
	}

	direction := "DESC"
	switch q.SortDirection {
	case SortAsc:
		direction = "ASC"
	case SortDesc, "":
	default:
		return nil, &BadInputError{Reason: fmt.Sprintf("unknown sort direction %q", q.SortDirection)}
	}

	query := db.dbGorm.WithContext(ctx).Model(&Artifact{})

	if q.Name != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(q.Name)) + "%"
		query = query.Where(`LOWER(artifacts.name) LIKE ? ESCAPE '\'`, pattern)
	}

	for _, tag := range q.Tags {
		query = query.Where(
			"EXISTS (SELECT 1 FROM plugin_tag JOIN tags ON tags.id = plugin_tag.tag_id "+
				"WHERE plugin_tag.artifact_id = artifacts.id AND tags.tag = ?)",
			tag,
		)
	}

	if !q.IncludeHidden {
		query = query.Where("artifacts.visible = ?", true)
	}

	switch q.SortBy {
	case SortName:
		query = query.Order("LOWER(artifacts.name) " + direction)
	case SortDate:
		query = query.Order(
			"(SELECT MIN(versions.created) FROM versions WHERE versions.artifact_id = artifacts.id) " +
				direction,
		)
	case SortDownloads:
		query = query.Order(
			"(SELECT COALESCE(SUM(versions.downloads), 0) FROM versions " +
				"WHERE versions.artifact_id = artifacts.id) " + direction,
		)
	case SortNone:
	default:
		return nil, &BadInputError{Reason: fmt.Sprintf("unknown sort type %q", q.SortBy)}
	}
	// ties on a sort key fall back to insertion order
	if q.SortBy == SortNone {
		query = query.Order("artifacts.id " + direction)
	} else {
		query = query.Order("artifacts.id ASC")
	}

	var artifacts []Artifact
	err := preloadArtifact(query).
		Limit(limit).
		Offset(page * limit).
		Find(&artifacts).Error
	if err != nil {
		return nil, wrapErrorWithDetails(
			err,
			"search plugins",
			fmt.Sprintf("name=%q, tags=%v, sort=%s %s", q.Name, q.Tags, q.SortBy, direction),
		)
	}

	if artifacts == nil {
		artifacts = []Artifact{}
	}
	for i := range artifacts {
		artifacts[i].normalize()
	}

	return artifacts, nil
}
