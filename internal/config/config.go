package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Run modes (NODE_ENV / APP_ENV).
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Upload drivers.
const (
	UploadLocal    = "local"
	UploadS3       = "s3"
	UploadSupabase = "supabase"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env              string        `env:"NODE_ENV" validate:"oneof=development production test"`
	Port             string        `env:"PORT" validate:"required,numeric"`
	DatabaseURI      string        `env:"DATABASE_URI" validate:"required"`
	DatabaseName     string        `env:"MONGODB_DATABASE"`
	LogLevel         string        `env:"LOG_LEVEL" validate:"oneof=error warn info debug"`
	Serverless       bool          `env:"-"`
	RedisURL         string        `env:"REDIS_URL"`
	CORSOrigins      []string      `env:"CORS_ORIGINS"`
	RateLimitMax     int           `env:"RATE_LIMIT_MAX" validate:"min=1"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW" validate:"gt=0"`
	DBWaitTimeout    time.Duration `env:"DB_WAIT_TIMEOUT" validate:"gt=0"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" validate:"gt=0"`
	AppModules       []string      `env:"APP_MODULES" validate:"min=1"`
	HealthAdminKey   string        `env:"HEALTH_ADMIN_KEY"`
	Upload           UploadConfig  `env:"-"`
}

// UploadConfig selects where notice attachments are stored.
type UploadConfig struct {
	Driver            string `env:"UPLOAD_DRIVER" validate:"oneof=local s3 supabase"`
	Dir               string `env:"UPLOAD_DIR" validate:"required_if=Driver local"`
	MaxFileSize       int64  `env:"UPLOAD_MAX_FILE_SIZE" validate:"gt=0"`
	S3Bucket          string `env:"S3_BUCKET" validate:"required_if=Driver s3"`
	S3Region          string `env:"S3_REGION"`
	S3PublicBaseURL   string `env:"S3_PUBLIC_BASE_URL" validate:"omitempty,url"`
	SupabaseURL       string `env:"SUPABASE_URL" validate:"required_if=Driver supabase"`
	SupabaseSecretKey string `env:"SUPABASE_SECRET_KEY" validate:"required_if=Driver supabase"`
	SupabaseBucket    string `env:"SUPABASE_BUCKET"`
}

// Error reports missing or invalid settings. Serverless callers turn it into a
// 500 with a configuration hint instead of exiting.
type Error struct {
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid environment variables: "+strings.Join(e.Invalid, ", "))
	}
	if len(parts) == 0 {
		return "invalid configuration"
	}
	return strings.Join(parts, "; ")
}

var defaultCORSOrigins = []string{
	"http://localhost:5173",
	"http://localhost:3000",
	"http://localhost:3001",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := f.Tag.Get("env")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// exit is swapped in tests.
var exit = os.Exit

// IsServerless reports whether the process runs under a per-request function host
// (Vercel or AWS Lambda), where exiting the process is never acceptable.
func IsServerless() bool {
	return os.Getenv("VERCEL") != "" ||
		os.Getenv("VERCEL_ENV") != "" ||
		os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// Mode returns the run mode without validating the rest of the configuration.
func Mode() string {
	v := newViper()
	return runMode(v)
}

// Basics are the settings a function host needs before the full
// configuration validates: run mode, log level and application modules.
type Basics struct {
	Env      string
	LogLevel string
	Modules  []string
}

// ReadBasics never fails; unset values fall back to their defaults.
func ReadBasics() Basics {
	v := newViper()
	b := Basics{
		Env:      runMode(v),
		LogLevel: strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		Modules:  splitList(v.GetString("APP_MODULES")),
	}
	if b.LogLevel == "" {
		b.LogLevel = "info"
	}
	if len(b.Modules) == 0 {
		b.Modules = []string{"api"}
	}
	return b
}

// IsDevelopment reports whether errors may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := newViper()
	serverless := IsServerless()

	uploadDir := "uploads"
	if serverless {
		// Function hosts only allow writes under /tmp.
		uploadDir = "/tmp/uploads"
	}
	v.SetDefault("PORT", "3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("RATE_LIMIT_MAX", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "15m")
	v.SetDefault("DB_WAIT_TIMEOUT", "10s")
	v.SetDefault("DB_CONNECT_TIMEOUT", "10s")
	v.SetDefault("APP_MODULES", "api")
	v.SetDefault("UPLOAD_DRIVER", UploadLocal)
	v.SetDefault("UPLOAD_DIR", uploadDir)
	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("SUPABASE_BUCKET", "notice-attachments")

	dbURI := strings.TrimSpace(v.GetString("DATABASE_URI"))
	if dbURI == "" {
		dbURI = strings.TrimSpace(v.GetString("MONGODB_URI"))
	}
	s3Region := v.GetString("S3_REGION")
	if s3Region == "" {
		s3Region = v.GetString("AWS_REGION")
	}
	corsOrigins := splitList(v.GetString("CORS_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = defaultCORSOrigins
	}

	cfg := &Config{
		Env:              runMode(v),
		Port:             v.GetString("PORT"),
		DatabaseURI:      dbURI,
		DatabaseName:     v.GetString("MONGODB_DATABASE"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		Serverless:       serverless,
		RedisURL:         v.GetString("REDIS_URL"),
		CORSOrigins:      corsOrigins,
		RateLimitMax:     v.GetInt("RATE_LIMIT_MAX"),
		RateLimitWindow:  v.GetDuration("RATE_LIMIT_WINDOW"),
		DBWaitTimeout:    v.GetDuration("DB_WAIT_TIMEOUT"),
		DBConnectTimeout: v.GetDuration("DB_CONNECT_TIMEOUT"),
		AppModules:       splitList(v.GetString("APP_MODULES")),
		HealthAdminKey:   v.GetString("HEALTH_ADMIN_KEY"),
		Upload: UploadConfig{
			Driver:            strings.ToLower(v.GetString("UPLOAD_DRIVER")),
			Dir:               v.GetString("UPLOAD_DIR"),
			MaxFileSize:       v.GetInt64("UPLOAD_MAX_FILE_SIZE"),
			S3Bucket:          v.GetString("S3_BUCKET"),
			S3Region:          s3Region,
			S3PublicBaseURL:   v.GetString("S3_PUBLIC_BASE_URL"),
			SupabaseURL:       v.GetString("SUPABASE_URL"),
			SupabaseSecretKey: v.GetString("SUPABASE_SECRET_KEY"),
			SupabaseBucket:    v.GetString("SUPABASE_BUCKET"),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, toConfigError(err)
	}
	return cfg, nil
}

// LoadOrExit loads the configuration. Outside a serverless host a failure is
// logged and the process exits with status 1; inside one the error is returned
// so the invocation can answer with a 500.
func LoadOrExit() (*Config, error) {
	cfg, err := Load()
	if err == nil {
		return cfg, nil
	}
	if IsServerless() {
		log.Error().Err(err).Msg("Invalid environment variables")
		return nil, err
	}
	log.Error().Err(err).Msg("Invalid environment variables, exiting")
	exit(1)
	return nil, err
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func runMode(v *viper.Viper) string {
	env := strings.ToLower(strings.TrimSpace(v.GetString("NODE_ENV")))
	if env == "" {
		env = strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	}
	if env == "" {
		env = EnvDevelopment
	}
	return env
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func toConfigError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation: %w", err)
	}
	cerr := &Error{}
	for _, fe := range verrs {
		name := fe.Field()
		switch fe.Tag() {
		case "required", "required_if":
			cerr.Missing = appendUnique(cerr.Missing, name)
		default:
			cerr.Invalid = appendUnique(cerr.Invalid, name)
		}
	}
	sort.Strings(cerr.Missing)
	sort.Strings(cerr.Invalid)
	return cerr
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
