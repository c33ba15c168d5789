package internal

import (
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ecglabel/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// DefaultContainer is the blob container used when none is configured.
const DefaultContainer = "ecg-report-app-database"

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Ingest  IngestConfig      `yaml:"ingest"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Ingest.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects where documents and annotation records live.
//
// With the local backend Documents.Path and Annotations.Path are directories
// and may be the same one. With the azure backend both live in one container
// and are told apart by Prefix.
type StorageConfig struct {
	Backend     string          `yaml:"backend"`
	Documents   LocationConfig  `yaml:"documents"`
	Annotations LocationConfig  `yaml:"annotations"`
	Azure       AzureBlobConfig `yaml:"azure"`
}

// LocationConfig addresses one key namespace.
type LocationConfig struct {
	Path   string `yaml:"path"`
	Prefix string `yaml:"prefix"`
}

// AzureBlobConfig holds Azure Blob Storage settings.
type AzureBlobConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = storage.BackendLocal
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(storage.BackendLocal, storage.BackendAzure)),
	); err != nil {
		return err
	}

	switch c.Backend {
	case storage.BackendLocal:
		if c.Documents.Path == "" || c.Annotations.Path == "" {
			return errors.New("storage: local backend needs documents.path and annotations.path")
		}
	case storage.BackendAzure:
		if c.Azure.Container == "" {
			c.Azure.Container = DefaultContainer
		}
		if c.Azure.ConnectionString == "" {
			return errors.New("storage: azure backend needs azure.connection_string")
		}
	}
	return nil
}

// DocumentOptions returns the provider options of the document namespace.
func (c *StorageConfig) DocumentOptions() storage.Options {
	return c.options(c.Documents)
}

// AnnotationOptions returns the provider options of the annotation namespace.
// Records are small, so local listings carry content checksums matching the
// etags the index stores on save.
func (c *StorageConfig) AnnotationOptions() storage.Options {
	opts := c.options(c.Annotations)
	opts.ContentETags = true
	return opts
}

func (c *StorageConfig) options(loc LocationConfig) storage.Options {
	return storage.Options{
		Backend:          c.Backend,
		Path:             loc.Path,
		ConnectionString: c.Azure.ConnectionString,
		Container:        c.Azure.Container,
		Prefix:           loc.Prefix,
	}
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IngestConfig bounds document uploads.
type IngestConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// MaxArchiveBytes caps the uncompressed archive members of one batch.
	MaxArchiveBytes int64 `yaml:"max_archive_bytes"`
	Workers         int   `yaml:"workers"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.MaxArchiveBytes, validation.Required, validation.Min(c.MaxUploadBytes)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Backend:     storage.BackendLocal,
			Documents:   LocationConfig{Path: "./data"},
			Annotations: LocationConfig{Path: "./data"},
			Azure:       AzureBlobConfig{Container: DefaultContainer},
		},
		SQLite: SQLiteConfig{
			Path: "./ecglabel.db",
		},
		Ingest: IngestConfig{
			MaxUploadBytes:  50 << 20,
			MaxArchiveBytes: 512 << 20,
			Workers:         4,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
