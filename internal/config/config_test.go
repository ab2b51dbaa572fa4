package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"VERCEL", "VERCEL_ENV", "AWS_LAMBDA_FUNCTION_NAME",
		"NODE_ENV", "APP_ENV", "PORT", "DATABASE_URI", "MONGODB_URI", "LOG_LEVEL",
		"RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "APP_MODULES", "UPLOAD_DRIVER", "UPLOAD_DIR",
		"S3_BUCKET", "SUPABASE_URL", "SUPABASE_SECRET_KEY", "CORS_ORIGINS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/nebs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "mongodb://localhost:27017/nebs", cfg.DatabaseURI)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 10*time.Second, cfg.DBWaitTimeout)
	assert.Equal(t, []string{"api"}, cfg.AppModules)
	assert.Equal(t, UploadLocal, cfg.Upload.Driver)
	assert.Equal(t, "uploads", cfg.Upload.Dir)
	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxFileSize)
	assert.Len(t, cfg.CORSOrigins, 3)
	assert.False(t, cfg.Serverless)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_DatabaseURITakesPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URI", "postgres://u:p@db:5432/nebs")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/nebs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/nebs", cfg.DatabaseURI)
}

func TestLoad_MissingDatabaseURI(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	assert.Nil(t, cfg)
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"DATABASE_URI"}, cerr.Missing)
	assert.Contains(t, err.Error(), "missing required environment variables")
}

func TestLoad_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/nebs")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("NODE_ENV", "staging")

	_, err := Load()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Empty(t, cerr.Missing)
	assert.Equal(t, []string{"LOG_LEVEL", "NODE_ENV"}, cerr.Invalid)
}

func TestLoad_S3DriverRequiresBucket(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/nebs")
	t.Setenv("UPLOAD_DRIVER", "s3")

	_, err := Load()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"S3_BUCKET"}, cerr.Missing)
}

func TestLoad_ServerlessUsesTmpUploads(t *testing.T) {
	clearEnv(t)
	t.Setenv("VERCEL", "1")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017/nebs")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Serverless)
	assert.Equal(t, "/tmp/uploads", cfg.Upload.Dir)
}

func TestLoadOrExit_ExitsOutsideServerless(t *testing.T) {
	clearEnv(t)
	code := -1
	orig := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = orig })

	_, err := LoadOrExit()
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

func TestLoadOrExit_ReturnsErrorUnderServerless(t *testing.T) {
	clearEnv(t)
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "nebs-api")
	code := -1
	orig := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = orig })

	_, err := LoadOrExit()
	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, -1, code)
}

func TestMode(t *testing.T) {
	clearEnv(t)
	assert.Equal(t, EnvDevelopment, Mode())
	t.Setenv("APP_ENV", "Production")
	assert.Equal(t, EnvProduction, Mode())
	t.Setenv("NODE_ENV", "test")
	assert.Equal(t, EnvTest, Mode())
}

func TestReadBasics(t *testing.T) {
	clearEnv(t)
	b := ReadBasics()
	assert.Equal(t, EnvDevelopment, b.Env)
	assert.Equal(t, "info", b.LogLevel)
	assert.Equal(t, []string{"api"}, b.Modules)

	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("APP_MODULES", "legacy, api")
	b = ReadBasics()
	assert.Equal(t, "debug", b.LogLevel)
	assert.Equal(t, []string{"legacy", "api"}, b.Modules)
}
