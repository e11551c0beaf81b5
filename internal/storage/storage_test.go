package storage

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"kinship/internal/config"
	"kinship/internal/models"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupBlobDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.ImageBlob{}))
	return db
}

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s BlobStore) {
	t.Helper()
	ctx := context.Background()
	key := NewBlobKey("posts")

	_, err := s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	require.NoError(t, s.Put(ctx, key, []byte("png-bytes")))
	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), got)

	require.NoError(t, s.Put(ctx, key, []byte("replaced")))
	got, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("replaced"), got)

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.NoError(t, s.Delete(ctx, key), "deleting a missing blob is not an error")
}

func TestNewBlobKey(t *testing.T) {
	a := NewBlobKey("posts")
	assert.True(t, strings.HasPrefix(a, "posts/"))
	assert.Len(t, strings.TrimPrefix(a, "posts/"), 36)
	assert.NotEqual(t, a, NewBlobKey("posts"))
	assert.True(t, strings.HasPrefix(NewBlobKey("users"), "users/"))
}

func TestMemoryBlobStore(t *testing.T) {
	exerciseStore(t, NewMemoryBlobStore())
}

func TestDatabaseBlobStore(t *testing.T) {
	exerciseStore(t, NewDatabaseBlobStore(setupBlobDB(t)))
}

func TestFileSystemBlobStore(t *testing.T) {
	s, err := NewFileSystemBlobStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)

	err = s.Put(context.Background(), "../escape", []byte("x"))
	assert.Error(t, err)
}

func TestEncryptedBlobStore(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	inner := NewMemoryBlobStore()
	s, err := NewEncryptedBlobStore(inner, identity.String())
	require.NoError(t, err)
	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "users/k", []byte("secret image")))
	raw, err := inner.Get(ctx, "users/k")
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret image")
	assert.Equal(t, "memory+age", s.Name())

	_, err = NewEncryptedBlobStore(inner, "not-a-key")
	assert.Error(t, err)
}

// fakeS3 is a path-style S3 endpoint good enough for PutObject, GetObject and DeleteObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_ = xml.NewEncoder(w).Encode(struct {
				XMLName xml.Name `xml:"Error"`
				Code    string   `xml:"Code"`
				Message string   `xml:"Message"`
			}{Code: "NoSuchKey", Message: "The specified key does not exist."})
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3BlobStore(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3BlobStore(context.Background(), S3Options{
		Bucket:          "kinship",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Prefix:          "images",
	})
	require.NoError(t, err)
	exerciseStore(t, s)

	require.NoError(t, s.Put(context.Background(), "posts/abc", []byte("x")))
	fake.mu.Lock()
	_, ok := fake.objects["kinship/images/posts/abc"]
	fake.mu.Unlock()
	assert.True(t, ok, "objects are addressed path-style under the prefix")
}

func TestNewBlobStoreFromConfig(t *testing.T) {
	ctx := context.Background()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	tests := []struct {
		name     string
		cfg      config.Config
		db       *gorm.DB
		wantName string
		wantErr  bool
	}{
		{name: "database", cfg: config.Config{BlobStore: "database"}, db: setupBlobDB(t), wantName: "database"},
		{name: "database without db", cfg: config.Config{BlobStore: "database"}, wantErr: true},
		{name: "memory", cfg: config.Config{BlobStore: "memory"}, wantName: "memory"},
		{name: "filesystem", cfg: config.Config{BlobStore: "filesystem", BlobFSRoot: t.TempDir()}, wantName: "filesystem"},
		{name: "filesystem without root", cfg: config.Config{BlobStore: "filesystem"}, wantErr: true},
		{name: "encrypted memory", cfg: config.Config{BlobStore: "memory", BlobEncryptionKey: identity.String()}, wantName: "memory+age"},
		{name: "bad key", cfg: config.Config{BlobStore: "memory", BlobEncryptionKey: "nope"}, wantErr: true},
		{name: "unknown", cfg: config.Config{BlobStore: "tape"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewBlobStoreFromConfig(ctx, &tt.cfg, tt.db)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, s.Name())
			exerciseStore(t, s)
		})
	}
}
