package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/getserve/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = run(args, &out, &errOut)
	return code, out.String(), errOut.String()
}

// startServe runs the serve stack on an ephemeral IPv4 port and returns
// its address.
func startServe(t *testing.T, cfg *config.Config) *net.TCPAddr {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, discardLogger(), func(a net.Addr) { addrCh <- a })
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("runServe() error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("runServe did not stop")
		}
	})

	select {
	case a := <-addrCh:
		return a.(*net.TCPAddr)
	case err := <-done:
		t.Fatalf("runServe() error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello, world\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>home</h1>"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.New()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.FamilyOrder = []string{"ipv4"}
	cfg.Root = root
	return cfg
}

// writeClientConfig writes a getserve.json pointing the client at addr.
func writeClientConfig(t *testing.T, addr *net.TCPAddr) string {
	t.Helper()
	cfg := config.New()
	cfg.Port = addr.Port
	cfg.Log.Level = "error"
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	code, out, _ := runCLI(t, "version", "--short")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if strings.TrimSpace(out) != version {
		t.Errorf("output = %q, want %q", out, version)
	}

	_, out, _ = runCLI(t, "version")
	if !strings.Contains(out, "Go version:") {
		t.Errorf("output = %q", out)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()

	code, out, _ := runCLI(t, "init", dir)
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, config.ConfigFileName) {
		t.Errorf("output = %q", out)
	}

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != config.DefaultPort || cfg.Capacity != 8 {
		t.Errorf("written config = %+v", cfg)
	}

	code, _, errOut := runCLI(t, "init", dir)
	if code != 1 || !strings.Contains(errOut, "E121") {
		t.Errorf("second init: code = %d, stderr = %q", code, errOut)
	}

	if code, _, _ := runCLI(t, "init", "--force", dir); code != 0 {
		t.Errorf("init --force exit code = %d", code)
	}
}

func TestGet(t *testing.T) {
	addr := startServe(t, testConfig(t))
	cfgPath := writeClientConfig(t, addr)

	code, out, errOut := runCLI(t, "get", "-c", cfgPath, "--host", "127.0.0.1", "/hello.txt", "/")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, errOut)
	}
	if out != "hello, world\n<h1>home</h1>" {
		t.Errorf("output = %q", out)
	}
}

func TestGet_Include(t *testing.T) {
	addr := startServe(t, testConfig(t))

	code, out, errOut := runCLI(t, "get", "--log-level", "error",
		"--host", "127.0.0.1", "--port", strconv.Itoa(addr.Port), "-i", "/hello.txt")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, errOut)
	}
	for _, want := range []string{"HTTP/1.1 200 OK\n", "Content-Length: 13\n", "Content-Type: text/plain\n", "\nhello, world\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	addr := startServe(t, testConfig(t))
	cfgPath := writeClientConfig(t, addr)

	code, out, errOut := runCLI(t, "get", "-c", cfgPath, "--host", "127.0.0.1", "/missing.txt", "/hello.txt")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if out != "hello, world\n" {
		t.Errorf("remaining paths should still be fetched, output = %q", out)
	}
	if !strings.Contains(errOut, "E143") || !strings.Contains(errOut, "/missing.txt") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestGet_OutputFile(t *testing.T) {
	addr := startServe(t, testConfig(t))
	cfgPath := writeClientConfig(t, addr)
	dest := filepath.Join(t.TempDir(), "out.txt")

	code, out, errOut := runCLI(t, "get", "-c", cfgPath, "--host", "127.0.0.1", "-o", dest, "/hello.txt")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, errOut)
	}
	if out != "" {
		t.Errorf("stdout = %q, want empty", out)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello, world\n" {
		t.Errorf("file = %q", data)
	}
}

func TestGet_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	code, _, errOut := runCLI(t, "get", "--log-level", "error",
		"--host", "127.0.0.1", "--port", strconv.Itoa(port), "/hello.txt")
	if code != 1 || !strings.Contains(errOut, "E140") {
		t.Errorf("code = %d, stderr = %q", code, errOut)
	}
}

func TestGet_BadFamily(t *testing.T) {
	code, _, errOut := runCLI(t, "get", "--log-level", "error", "--family", "ipx", "/")
	if code != 1 || !strings.Contains(errOut, "E101") {
		t.Errorf("code = %d, stderr = %q", code, errOut)
	}
}

func TestServe_MissingRoot(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.ConfigFileName)
	if err := config.New().SaveTo(cfgPath); err != nil {
		t.Fatal(err)
	}

	code, _, errOut := runCLI(t, "serve", "-c", cfgPath, "--log-level", "error",
		"--root", filepath.Join(dir, "nope"), "--port", "0")
	if code != 1 || !strings.Contains(errOut, "E124") {
		t.Errorf("code = %d, stderr = %q", code, errOut)
	}
}

func TestServe_InvalidCapacity(t *testing.T) {
	code, _, errOut := runCLI(t, "serve", "--capacity", "-1", "--port", "0")
	if code != 1 || !strings.Contains(errOut, "E123") {
		t.Errorf("code = %d, stderr = %q", code, errOut)
	}
}

func TestServe_InvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.New()
	cfg.Root = dir
	cfgPath := filepath.Join(dir, config.ConfigFileName)
	if err := cfg.SaveTo(cfgPath); err != nil {
		t.Fatal(err)
	}

	code, _, errOut := runCLI(t, "serve", "-c", cfgPath, "--log-level", "chatty")
	if code != 1 || !strings.Contains(errOut, "E121") {
		t.Errorf("code = %d, stderr = %q", code, errOut)
	}
}

func TestBuildStack_Admin(t *testing.T) {
	cfg := testConfig(t)
	cfg.Admin.Address = "127.0.0.1:0"

	st, err := buildStack(cfg, discardLogger())
	if err != nil {
		t.Fatalf("buildStack() error: %v", err)
	}
	defer st.Close()
	if st.admin == nil {
		t.Fatal("admin server should be built when admin.address is set")
	}

	ts := httptest.NewServer(st.admin.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"capacity":8`) {
		t.Errorf("/healthz = %s", body)
	}
}

func TestServeFlags_Apply(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	flags := &serveFlags{}
	flags.register(cmd)
	if err := cmd.ParseFlags([]string{"--port", "0", "--capacity", "3", "--family", "ipv4,ipv6", "--keep-alive=false", "--idle-timeout", "2s"}); err != nil {
		t.Fatalf("ParseFlags() error: %v", err)
	}

	cfg := config.New()
	cfg.Host = "example.org"
	flags.apply(cmd, cfg)

	if cfg.Port != 0 || cfg.Capacity != 3 {
		t.Errorf("port/capacity = %d/%d", cfg.Port, cfg.Capacity)
	}
	if cfg.Host != "example.org" {
		t.Errorf("unset flag should keep file value, Host = %q", cfg.Host)
	}
	if strings.Join(cfg.FamilyOrder, ",") != "ipv4,ipv6" {
		t.Errorf("FamilyOrder = %v", cfg.FamilyOrder)
	}
	if *cfg.KeepAlive {
		t.Error("KeepAlive should be false")
	}
	if cfg.IdleTimeout != "2s" {
		t.Errorf("IdleTimeout = %q", cfg.IdleTimeout)
	}
}
