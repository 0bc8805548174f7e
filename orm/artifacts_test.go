package orm

import (
	"context"
	"fmt"
	"plugin-store/config"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())

	t.Cleanup(func() {
		if sqlDB, err := db.dbGorm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }

// seedPlugins inserts plugin-<i> for i in [1, n], each with two versions one
// second apart, tags tag-1..tag-i (capped at 3) and every third one hidden.
func seedPlugins(t *testing.T, db *DB, n int) []*Artifact {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2022, 2, 25, 0, 0, 0, 0, time.UTC)

	var plugins []*Artifact
	for i := 1; i <= n; i++ {
		var tags []string
		for j := 1; j <= min(i, 3); j++ {
			tags = append(tags, fmt.Sprintf("tag-%d", j))
		}

		a, err := db.InsertArtifact(ctx, ArtifactInput{
			Name:        fmt.Sprintf("plugin-%d", i),
			Author:      fmt.Sprintf("author-%d", i),
			Description: fmt.Sprintf("Description %d", i),
			Tags:        tags,
			Visible:     boolPtr(i%3 != 0),
		})
		require.NoError(t, err)

		for v := 0; v < 2; v++ {
			created := base.Add(time.Duration(i*10+v) * time.Second)
			_, err := db.InsertVersion(ctx, a.ID, VersionInput{
				Name:    fmt.Sprintf("0.%d.0", v+1),
				Hash:    fmt.Sprintf("%064d", i*10+v),
				Created: &created,
			})
			require.NoError(t, err)
		}

		a, err = db.GetPluginByID(ctx, a.ID)
		require.NoError(t, err)
		plugins = append(plugins, a)
	}

	return plugins
}

func TestInsertArtifact(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	a, err := db.InsertArtifact(ctx, ArtifactInput{
		Name:        "my-plugin",
		Author:      "me",
		Description: "does things",
		Tags:        []string{"b", "a", "b", " ", ""},
	})
	require.NoError(t, err)

	assert.NotZero(t, a.ID)
	assert.True(t, a.Visible, "visible defaults to true")
	assert.Nil(t, a.ImagePath)
	assert.Equal(t, []string{"b", "a"}, a.TagNames())
	assert.Empty(t, a.Versions)
	assert.Nil(t, a.Created())
	assert.Equal(t, "artifact_images/my-plugin.png", a.EffectiveImagePath())

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := db.InsertArtifact(ctx, ArtifactInput{Name: "my-plugin", Author: "other"})
		var conflict *ConflictError
		assert.ErrorAs(t, err, &conflict)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := db.InsertArtifact(ctx, ArtifactInput{Name: "  "})
		var badInput *BadInputError
		assert.ErrorAs(t, err, &badInput)
	})

	t.Run("tags are shared between artifacts", func(t *testing.T) {
		other, err := db.InsertArtifact(ctx, ArtifactInput{
			Name: "other-plugin",
			Tags: []string{"a", "c"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c"}, other.TagNames())
		assert.Equal(t, a.Tags[1].ID, other.Tags[0].ID)
	})

	t.Run("explicit id is kept", func(t *testing.T) {
		forced, err := db.InsertArtifact(ctx, ArtifactInput{ID: 4242, Name: "forced"})
		require.NoError(t, err)
		assert.Equal(t, uint(4242), forced.ID)
	})
}

func TestUpdateArtifact(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	a, err := db.InsertArtifact(ctx, ArtifactInput{
		Name:        "plugin",
		Author:      "old",
		Description: "old description",
		Tags:        []string{"x", "y"},
		ImagePath:   strPtr("artifact_images/plugin-abc.png"),
	})
	require.NoError(t, err)

	updated, err := db.UpdateArtifact(ctx, a, ArtifactUpdate{
		Author:      strPtr("new"),
		Description: strPtr("new description"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Author)
	assert.Equal(t, "new description", updated.Description)
	assert.Equal(t, []string{"x", "y"}, updated.TagNames(), "nil tags keep current tags")
	require.NotNil(t, updated.ImagePath)
	assert.Equal(t, "artifact_images/plugin-abc.png", *updated.ImagePath)

	updated, err = db.UpdateArtifact(ctx, updated, ArtifactUpdate{
		Tags:    []string{"z"},
		Visible: boolPtr(false),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"z"}, updated.TagNames())
	assert.False(t, updated.Visible)

	updated, err = db.UpdateArtifact(ctx, updated, ArtifactUpdate{Tags: []string{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Tags)

	_, err = db.UpdateArtifact(ctx, &Artifact{ID: 999}, ArtifactUpdate{Author: strPtr("x")})
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestInsertVersion(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	a, err := db.InsertArtifact(ctx, ArtifactInput{Name: "plugin"})
	require.NoError(t, err)

	v, err := db.InsertVersion(ctx, a.ID, VersionInput{Name: "1.0.0", Hash: "abc"})
	require.NoError(t, err)
	assert.Equal(t, fixed, v.Created)
	assert.Zero(t, v.Downloads)
	assert.Zero(t, v.Updates)

	_, err = db.InsertVersion(ctx, a.ID, VersionInput{Name: "1.0.0", Hash: "def"})
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	_, err = db.InsertVersion(ctx, a.ID, VersionInput{Name: "", Hash: "def"})
	var badInput *BadInputError
	assert.ErrorAs(t, err, &badInput)
}

func TestVersionOrderingAndAggregates(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	a, err := db.InsertArtifact(ctx, ArtifactInput{Name: "plugin"})
	require.NoError(t, err)

	base := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	same := base.Add(time.Hour)
	inputs := []VersionInput{
		{Name: "0.1.0", Hash: "h1", Created: &base},
		{Name: "0.3.0", Hash: "h3", Created: &same},
		{Name: "0.2.0", Hash: "h2", Created: &same},
	}
	for _, in := range inputs {
		_, err := db.InsertVersion(ctx, a.ID, in)
		require.NoError(t, err)
	}

	_, err = db.IncrementInstalls(ctx, "plugin", "0.1.0", false)
	require.NoError(t, err)
	_, err = db.IncrementInstalls(ctx, "plugin", "0.2.0", false)
	require.NoError(t, err)
	_, err = db.IncrementInstalls(ctx, "plugin", "0.2.0", true)
	require.NoError(t, err)

	a, err = db.GetPluginByName(ctx, "plugin")
	require.NoError(t, err)
	require.NotNil(t, a)

	var names []string
	for _, v := range a.Versions {
		names = append(names, v.Name)
	}
	// equal timestamps keep insertion order
	assert.Equal(t, []string{"0.3.0", "0.2.0", "0.1.0"}, names)

	assert.Equal(t, int64(2), a.Downloads())
	assert.Equal(t, int64(1), a.Updates())
	require.NotNil(t, a.Created())
	require.NotNil(t, a.Updated())
	assert.True(t, base.Equal(*a.Created()))
	assert.True(t, same.Equal(*a.Updated()))
}

func TestGetPlugin(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	missing, err := db.GetPluginByName(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = db.GetPluginByID(ctx, 12)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDeletePlugin(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	plugins := seedPlugins(t, db, 2)

	require.NoError(t, db.DeletePlugin(ctx, plugins[0].ID))

	_, err := db.GetPluginByID(ctx, plugins[0].ID)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)

	var versions int64
	require.NoError(t, db.dbGorm.Model(&Version{}).Where("artifact_id = ?", plugins[0].ID).Count(&versions).Error)
	assert.Zero(t, versions)

	var links int64
	require.NoError(t, db.dbGorm.Model(&PluginTag{}).Where("artifact_id = ?", plugins[0].ID).Count(&links).Error)
	assert.Zero(t, links)

	// tags stay for reuse
	var tags int64
	require.NoError(t, db.dbGorm.Model(&Tag{}).Count(&tags).Error)
	assert.Equal(t, int64(2), tags)

	other, err := db.GetPluginByID(ctx, plugins[1].ID)
	require.NoError(t, err)
	assert.Len(t, other.Versions, 2)

	assert.NoError(t, db.DeletePlugin(ctx, 9999), "unknown id is not an error")
}

func TestIncrementInstalls(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	seedPlugins(t, db, 1)

	tests := []struct {
		name     string
		plugin   string
		version  string
		isUpdate bool
		found    bool
	}{
		{name: "download", plugin: "plugin-1", version: "0.1.0", isUpdate: false, found: true},
		{name: "update", plugin: "plugin-1", version: "0.2.0", isUpdate: true, found: true},
		{name: "unknown version", plugin: "plugin-1", version: "9.9.9", found: false},
		{name: "unknown plugin", plugin: "plugin-9", version: "0.1.0", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := db.IncrementInstalls(ctx, tt.plugin, tt.version, tt.isUpdate)
			require.NoError(t, err)
			assert.Equal(t, tt.found, found)
		})
	}

	a, err := db.GetPluginByName(ctx, "plugin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Downloads())
	assert.Equal(t, int64(1), a.Updates())
}

func TestConcurrentIncrementsAreNotLost(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	seedPlugins(t, db, 1)

	const workers = 20
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.IncrementInstalls(ctx, "plugin-1", "0.1.0", false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a, err := db.GetPluginByName(ctx, "plugin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), a.Downloads())
}

func TestTransactionRollsBack(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	ctx := context.Background()

	plugins := seedPlugins(t, db, 1)
	original := plugins[0]

	err := db.Transaction(ctx, func(tx *DB) error {
		if err := tx.DeletePlugin(ctx, original.ID); err != nil {
			return err
		}

		_, err := tx.InsertArtifact(ctx, ArtifactInput{ID: original.ID, Name: original.Name})
		if err != nil {
			return err
		}

		// duplicate version names abort the whole replacement
		if _, err := tx.InsertVersion(ctx, original.ID, VersionInput{Name: "1.0", Hash: "a"}); err != nil {
			return err
		}
		_, err = tx.InsertVersion(ctx, original.ID, VersionInput{Name: "1.0", Hash: "b"})

		return err
	})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	after, err := db.GetPluginByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, original.Author, after.Author)
	assert.Len(t, after.Versions, 2)
	assert.Equal(t, original.TagNames(), after.TagNames())
}
