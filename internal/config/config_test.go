package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                      "development",
		Port:                     "8080",
		JWTSecret:                "secure-secret-at-least-32-chars-long",
		DBDriver:                 "postgres",
		DBPassword:               "secure-password",
		DBSSLMode:                "require",
		BlobStore:                "database",
		ImageMaxUploadSizeMB:     10,
		DBConnMaxLifetimeMinutes: 1,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid development config", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"missing jwt secret", func(c *Config) { c.JWTSecret = "" }, true},
		{"unknown db driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"sqlite driver", func(c *Config) { c.DBDriver = "sqlite" }, false},
		{"unknown blob store", func(c *Config) { c.BlobStore = "ftp" }, true},
		{"s3 without bucket", func(c *Config) { c.BlobStore = "s3" }, true},
		{"s3 with bucket", func(c *Config) { c.BlobStore = "s3"; c.S3Bucket = "images" }, false},
		{"filesystem without root", func(c *Config) { c.BlobStore = "filesystem" }, true},
		{"zero upload limit", func(c *Config) { c.ImageMaxUploadSizeMB = 0 }, true},
		{"production with ssl disabled", func(c *Config) { c.Env = "production"; c.DBSSLMode = "disable" }, true},
		{"production with default secret", func(c *Config) { c.Env = "production"; c.JWTSecret = defaultJWTSecret }, true},
		{"production with memory blobs", func(c *Config) { c.Env = "prod"; c.BlobStore = "memory" }, true},
		{"production with weak db password", func(c *Config) { c.Env = "production"; c.DBPassword = "password" }, true},
		{"production fully configured", func(c *Config) { c.Env = "production" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_Normalization(t *testing.T) {
	defer viper.Reset()

	t.Setenv("APP_ENV", "test")
	t.Setenv("DB_SSLMODE", "  DISABLE  ")
	t.Setenv("BLOB_STORE", " Memory ")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "memory", c.BlobStore)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, int64(10*1024*1024), c.ImageMaxUploadBytes())
}
