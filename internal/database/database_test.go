package database

import (
	"context"
	"testing"

	"kinship/internal/config"
	"kinship/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestSchemaPolicy(t *testing.T) {
	tests := []struct {
		name      string
		env, mode string
		wantSQL   bool
		wantAuto  bool
		wantErr   bool
	}{
		{"hybrid in development", "development", "", true, true, false},
		{"hybrid in production", "production", "hybrid", true, false, false},
		{"sql only", "development", "sql", true, false, false},
		{"auto in development", "test", "auto", false, true, false},
		{"auto refused in staging", "staging", "auto", false, false, true},
		{"unknown mode", "development", "magic", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSQL, runAuto, err := schemaPolicy(&config.Config{Env: tt.env, DBSchemaMode: tt.mode})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, runSQL)
			assert.Equal(t, tt.wantAuto, runAuto)
		})
	}
}

func TestConfigurePool_SQLiteSingleConnection(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, configurePool(db, &config.Config{DBMaxOpenConns: 10, DBConnMaxLifetimeMinutes: 15}))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestMigrateUpAndDown_SQLite(t *testing.T) {
	db := openMemoryDB(t)

	require.NoError(t, MigrateUp(db))
	require.NoError(t, MigrateUp(db), "second run is a no-op")

	status, err := GetMigrationStatus(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Version)
	assert.Equal(t, uint(1), status.Latest)
	assert.Zero(t, status.Pending)
	assert.False(t, status.Dirty)

	for _, table := range []string{"users", "posts", "comments", "replies", "relations", "image_blobs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	user := models.User{Username: "alice", Email: "alice@example.com", Password: "x"}
	require.NoError(t, db.Create(&user).Error)
	dup := models.Relation{Kind: models.RelationFollow, ActorID: user.ID, TargetID: 99}
	require.NoError(t, db.Create(&dup).Error)
	again := models.Relation{Kind: models.RelationFollow, ActorID: user.ID, TargetID: 99}
	assert.Error(t, db.Create(&again).Error, "relation key is unique")

	require.NoError(t, MigrateDown(db, 0))
	assert.False(t, db.Migrator().HasTable("users"))

	status, err = GetMigrationStatus(db)
	require.NoError(t, err)
	assert.Equal(t, uint(1), status.Pending)
}

func TestApplySchema_AutoMigrate(t *testing.T) {
	db := openMemoryDB(t)

	err := ApplySchema(context.Background(), db, &config.Config{Env: "test", DBSchemaMode: SchemaModeAuto})
	require.NoError(t, err)

	for _, m := range PersistentModels() {
		assert.True(t, db.Migrator().HasTable(m))
	}
	assert.False(t, db.Migrator().HasColumn(&models.Post{}, "likes_count"))
	assert.True(t, db.Migrator().HasIndex(&models.Relation{}, "idx_relations_key"))
}

func TestPing(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
	assert.NoError(t, Ping(context.Background(), openMemoryDB(t)))
	assert.False(t, IsPostgres(openMemoryDB(t)))
}
