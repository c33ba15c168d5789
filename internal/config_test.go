package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ecglabel/internal/storage"
	pkgconfig "github.com/starford/ecglabel/pkg/config"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled || cfg.AuthEnabled() {
		t.Errorf("mode = %q, enabled = %v", cfg.Mode, cfg.AuthEnabled())
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: AuthModeToken, Token: "s3cret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("expected empty token error, got %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestStorageConfig_AzureNeedsConnectionString(t *testing.T) {
	cfg := StorageConfig{Backend: storage.BackendAzure}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "connection_string") {
		t.Fatalf("expected connection string error, got %v", err)
	}

	cfg.Azure.ConnectionString = "UseDevelopmentStorage=true"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("azure with connection string should pass: %v", err)
	}
	if cfg.Azure.Container != DefaultContainer {
		t.Errorf("container = %q, want %q", cfg.Azure.Container, DefaultContainer)
	}
}

func TestStorageConfig_UnknownBackend(t *testing.T) {
	cfg := StorageConfig{Backend: "s3"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}

func TestStorageConfig_Options(t *testing.T) {
	cfg := StorageConfig{
		Backend:     storage.BackendAzure,
		Documents:   LocationConfig{Prefix: "reports"},
		Annotations: LocationConfig{Prefix: "labels"},
		Azure:       AzureBlobConfig{ConnectionString: "cs", Container: "box"},
	}
	docs := cfg.DocumentOptions()
	if docs.Prefix != "reports" || docs.Container != "box" || docs.ConnectionString != "cs" {
		t.Errorf("document options = %+v", docs)
	}
	if got := cfg.AnnotationOptions().Prefix; got != "labels" {
		t.Errorf("annotation prefix = %q", got)
	}
	if docs.ContentETags || !cfg.AnnotationOptions().ContentETags {
		t.Error("only the annotation namespace should list content etags")
	}
}

func TestIngestConfig_Bounds(t *testing.T) {
	cfg := IngestConfig{MaxUploadBytes: 1024, MaxArchiveBytes: 4096, Workers: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero workers should fail validation")
	}
	cfg = IngestConfig{MaxUploadBytes: 1024, MaxArchiveBytes: 512, Workers: 2}
	if err := cfg.Validate(); err == nil {
		t.Fatal("archive budget below the upload limit should fail validation")
	}
}

func TestLoadYAML_ExpandsEnv(t *testing.T) {
	t.Setenv("ECGLABEL_TEST_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
app:
  http:
    port: 9090
storage:
  backend: local
  documents:
    path: ./docs
  annotations:
    path: ./labels
sqlite:
  path: ./idx.db
auth:
  mode: token
  token: ${ECGLABEL_TEST_TOKEN}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
	if cfg.Auth.Token != "from-env" {
		t.Errorf("token = %q, want from-env", cfg.Auth.Token)
	}
	if cfg.Storage.Annotations.Path != "./labels" {
		t.Errorf("annotations path = %q", cfg.Storage.Annotations.Path)
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("workers default lost: %d", cfg.Ingest.Workers)
	}
}
