package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/getserve/internal/errors"
	"github.com/vango-dev/getserve/pkg/resolve"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var ce *errors.CodedError
	if !stderrors.As(err, &ce) {
		t.Fatalf("error %v is not a CodedError", err)
	}
	return ce.Code
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Port)
	}
	if cfg.Backlog != 5 {
		t.Errorf("Backlog = %d, want 5", cfg.Backlog)
	}
	if cfg.Capacity != 8 {
		t.Errorf("Capacity = %d, want 8", cfg.Capacity)
	}
	if got := strings.Join(cfg.FamilyOrder, ","); got != "ipv6,ipv4" {
		t.Errorf("FamilyOrder = %q, want ipv6,ipv4", got)
	}
	if cfg.Root != DefaultRoot || cfg.Index != DefaultIndex {
		t.Errorf("Root/Index = %q/%q", cfg.Root, cfg.Index)
	}
	if cfg.KeepAlive == nil || !*cfg.KeepAlive {
		t.Error("KeepAlive should default to true")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
	if cfg.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), dir)
	}
	if cfg.RootPath() != filepath.Join(dir, "public") {
		t.Errorf("RootPath() = %q", cfg.RootPath())
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{
  "host": "localhost",
  "port": 8080,
  "capacity": 2,
  "familyOrder": ["ipv4"],
  "root": "/srv/files",
  "keepAlive": false,
  "idleTimeout": "15s",
  "admin": {"address": "127.0.0.1:9090", "statsInterval": "250ms"},
  "log": {"level": "debug", "format": "json"}
}
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Host != "localhost" || cfg.Port != 8080 || cfg.Capacity != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Backlog != 5 {
		t.Errorf("Backlog = %d, want default 5", cfg.Backlog)
	}
	if cfg.RootPath() != "/srv/files" {
		t.Errorf("RootPath() = %q, absolute root should be kept", cfg.RootPath())
	}
	if cfg.StatsInterval() != 250*time.Millisecond {
		t.Errorf("StatsInterval() = %v", cfg.StatsInterval())
	}

	sc, err := cfg.ServerConfig()
	if err != nil {
		t.Fatalf("ServerConfig() error: %v", err)
	}
	if !sc.CloseAfterResponse {
		t.Error("keepAlive false should set CloseAfterResponse")
	}
	if sc.IdleTimeout != 15*time.Second {
		t.Errorf("IdleTimeout = %v", sc.IdleTimeout)
	}
	if sc.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v", sc.ShutdownTimeout)
	}
	if len(sc.FamilyOrder) != 1 || sc.FamilyOrder[0] != resolve.IPv4 {
		t.Errorf("FamilyOrder = %v", sc.FamilyOrder)
	}
	if sc.Host != "localhost" || sc.Port != 8080 || sc.Capacity != 2 || sc.Backlog != 5 {
		t.Errorf("server config = %+v", sc)
	}
}

func TestLoadFile_SyntaxError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "{\n  \"port\": 9001,\n  \"capacity\": ,\n}\n")

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("LoadFile() should fail on invalid JSON")
	}
	var ce *errors.CodedError
	if !stderrors.As(err, &ce) || ce.Code != "E120" {
		t.Fatalf("error = %v, want E120", err)
	}
	if ce.Location == nil || ce.Location.Line != 3 {
		t.Errorf("Location = %+v, want line 3", ce.Location)
	}
}

func TestLoadFile_TypeError(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "{\n  \"port\": \"9001\"\n}\n")

	_, err := LoadFile(path)
	var ce *errors.CodedError
	if !stderrors.As(err, &ce) || ce.Code != "E120" {
		t.Fatalf("error = %v, want E120", err)
	}
	if ce.Location == nil || ce.Location.Line != 2 {
		t.Errorf("Location = %+v, want line 2", ce.Location)
	}
	if !strings.Contains(ce.Suggestion, "port") {
		t.Errorf("Suggestion = %q, should name the field", ce.Suggestion)
	}
}

func TestLoadFile_UnknownField(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"prot": 9001}`)

	_, err := LoadFile(path)
	if code := codeOf(t, err); code != "E120" {
		t.Errorf("code = %s, want E120", code)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode string
	}{
		{"port too large", func(c *Config) { c.Port = 70000 }, "E122"},
		{"negative port", func(c *Config) { c.Port = -1 }, "E122"},
		{"zero capacity", func(c *Config) { c.Capacity = 0 }, "E123"},
		{"zero backlog", func(c *Config) { c.Backlog = -3 }, "E123"},
		{"unknown family", func(c *Config) { c.FamilyOrder = []string{"ipx"} }, "E101"},
		{"duplicate family", func(c *Config) { c.FamilyOrder = []string{"ipv4", "ipv4"} }, "E101"},
		{"bad duration", func(c *Config) { c.IdleTimeout = "soon" }, "E126"},
		{"negative duration", func(c *Config) { c.WriteTimeout = "-1s" }, "E126"},
		{"bad stats interval", func(c *Config) { c.Admin.StatsInterval = "1 second" }, "E126"},
		{"s3 without region", func(c *Config) { c.S3.Bucket = "files" }, "E125"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "E121"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "E121"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if code := codeOf(t, err); code != tt.wantCode {
				t.Errorf("code = %s, want %s", code, tt.wantCode)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)

	cfg := New()
	if err := cfg.Save(); err == nil {
		t.Error("Save() without a path should fail")
	}

	cfg.Port = 9100
	cfg.S3 = S3Config{Bucket: "assets", Region: "eu-west-1", PathStyle: true}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if loaded.Port != 9100 || !loaded.UsesS3() || loaded.S3.Region != "eu-west-1" {
		t.Errorf("reloaded = %+v", loaded)
	}

	loaded.Capacity = 3
	if err := loaded.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if again.Capacity != 3 {
		t.Errorf("Capacity = %d, want 3", again.Capacity)
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `{}`)
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot() error: %v", err)
	}
	if got != root {
		t.Errorf("FindProjectRoot() = %q, want %q", got, root)
	}

	if !Exists(root) || Exists(nested) {
		t.Error("Exists() should only report the directory holding the file")
	}
}

func TestFindProjectRoot_NotFound(t *testing.T) {
	dir := t.TempDir()
	if Exists(filepath.Dir(dir)) {
		t.Skip("a parent of the temp dir has getserve.json")
	}

	_, err := FindProjectRoot(dir)
	if err == nil {
		t.Skip("a getserve.json exists above the temp dir")
	}
	if code := codeOf(t, err); code != "E141" {
		t.Errorf("code = %s, want E141", code)
	}
}

func TestLineColumn(t *testing.T) {
	data := []byte("ab\ncd\nef")
	line, col := lineColumn(data, 5)
	if line != 2 || col != 2 {
		t.Errorf("lineColumn(5) = %d:%d, want 2:2", line, col)
	}
	line, col = lineColumn(data, 100)
	if line != 3 {
		t.Errorf("lineColumn past end line = %d, want 3", line)
	}
}
