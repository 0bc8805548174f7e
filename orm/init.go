package orm

import (
	"fmt"
	"plugin-store/config"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the repository over the catalog tables. Writes that touch artifacts,
// tags or versions are serialized by a lock shared between a DB and every
// transaction-scoped copy made from it.
type DB struct {
	dbGorm    *gorm.DB
	writeLock *sync.Mutex
	inTx      bool
	now       func() time.Time
	newID     func() (uuid.UUID, error)
}

func New(dbGorm *gorm.DB) *DB {
	return &DB{
		dbGorm:    dbGorm,
		writeLock: &sync.Mutex{},
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewV7,
	}
}

// UseTransaction returns a copy of db bound to tx. Write operations on the
// copy run inside tx without taking the write lock again.
func (db *DB) UseTransaction(tx *gorm.DB) *DB {
	return &DB{
		dbGorm:    tx,
		writeLock: db.writeLock,
		inTx:      true,
		now:       db.now,
		newID:     db.newID,
	}
}

func (db *DB) Gorm() *gorm.DB {
	return db.dbGorm
}

// Open connects to the configured database without migrating it.
func Open(cfg config.DatabaseConfig) (*DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "sqlite":
		log.Debug().Str("path", cfg.Path).Msg("Connecting to sqlite")
		dialector = sqlite.Open(cfg.Path)
	case "postgres", "":
		dsn := fmt.Sprintf(
			"host='%s' port='%d' user='%s' password='%s' dbname='%s' sslmode='%s'",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
			cfg.SSLMode,
		)

		dsnRedacted := dsn
		if cfg.Password != "" {
			dsnRedacted = strings.ReplaceAll(dsn, cfg.Password, "*****")
		}
		log.Debug().
			Msgf("Connecting to postgres using the following information: %s", dsnRedacted)

		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	dbGorm, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// single connection: one writer, one in-memory database
		sqlDB, err := dbGorm.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Debug().Str("driver", dialector.Name()).Msg("Successfully connected to the database")

	return New(dbGorm), nil
}

// Migrate creates or updates the catalog schema.
func (db *DB) Migrate() error {
	if err := db.dbGorm.SetupJoinTable(&Artifact{}, "Tags", &PluginTag{}); err != nil {
		return fmt.Errorf("failed to set up plugin_tag join table: %w", err)
	}

	err := db.dbGorm.AutoMigrate(
		&Artifact{},
		&Tag{},
		&PluginTag{},
		&Version{},
		&Announcement{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// InitDB opens and migrates the database described by cfg.
func InitDB(cfg *config.AppConfig) (*DB, error) {
	db, err := Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.dbGorm.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Ping reports whether the database answers.
func (db *DB) Ping() error {
	sqlDB, err := db.dbGorm.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}
