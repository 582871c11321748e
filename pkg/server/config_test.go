package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/getserve/pkg/protocol"
	"github.com/vango-dev/getserve/pkg/resolve"
)

var nopHandler = HandlerFunc(func(context.Context, *protocol.Request) *protocol.Response { return nil })

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Port != 9001 {
		t.Errorf("Port = %d, want 9001", config.Port)
	}
	if config.Host != "" {
		t.Errorf("Host = %q, want empty", config.Host)
	}
	if len(config.FamilyOrder) != 2 || config.FamilyOrder[0] != resolve.IPv6 {
		t.Errorf("FamilyOrder = %v, want IPv6 first", config.FamilyOrder)
	}
	if config.Backlog != 5 {
		t.Errorf("Backlog = %d, want 5", config.Backlog)
	}
	if config.Capacity != 8 {
		t.Errorf("Capacity = %d, want 8", config.Capacity)
	}
	if config.ReadBufferSize != 4096 {
		t.Errorf("ReadBufferSize = %d, want 4096", config.ReadBufferSize)
	}
	if config.MaxRequestBytes <= config.ReadBufferSize {
		t.Error("MaxRequestBytes should exceed ReadBufferSize")
	}
	if config.CloseAfterResponse {
		t.Error("CloseAfterResponse should be false by default")
	}
	if config.ShutdownTimeout <= 0 {
		t.Error("ShutdownTimeout should be positive")
	}
}

func TestConfigChaining(t *testing.T) {
	var called []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx context.Context, req *protocol.Request) *protocol.Response {
				called = append(called, name)
				return next.ServeRequest(ctx, req)
			})
		}
	}

	config := DefaultConfig().
		WithAddress("localhost", 8080).
		WithCapacity(3).
		WithHandler(nopHandler).
		WithMiddleware(mw("a"), mw("b"))

	if config.Host != "localhost" || config.Port != 8080 {
		t.Errorf("address = %s:%d, want localhost:8080", config.Host, config.Port)
	}
	if config.Capacity != 3 {
		t.Errorf("Capacity = %d, want 3", config.Capacity)
	}
	if config.Handler == nil {
		t.Fatal("Handler should be set")
	}

	Chain(config.Handler, config.Middleware...).ServeRequest(context.Background(), &protocol.Request{Method: protocol.MethodGet, Target: "/"})
	if strings.Join(called, ",") != "a,b" {
		t.Errorf("middleware order = %v, want [a b]", called)
	}
}

func TestConfigClone(t *testing.T) {
	original := DefaultConfig().WithHandler(nopHandler)
	clone := original.Clone()

	clone.Port = 1
	clone.FamilyOrder[0] = resolve.IPv4
	clone.Middleware = append(clone.Middleware, func(h Handler) Handler { return h })

	if original.Port != 9001 {
		t.Error("Clone should not share Port")
	}
	if original.FamilyOrder[0] != resolve.IPv6 {
		t.Error("Clone should not share FamilyOrder")
	}
	if len(original.Middleware) != 0 {
		t.Error("Clone should not share Middleware")
	}

	var nilConfig *Config
	if nilConfig.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestApplyDefaults(t *testing.T) {
	config := &Config{Handler: nopHandler}
	config.applyDefaults()

	if config.Port != 0 {
		t.Errorf("Port = %d, want 0 (ephemeral) to be kept", config.Port)
	}
	if config.Capacity != 8 || config.Backlog != 5 || config.ReadBufferSize != 4096 {
		t.Errorf("defaults not applied: %+v", config)
	}
	if len(config.FamilyOrder) == 0 {
		t.Error("FamilyOrder should be defaulted")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
		wantMsg string
	}{
		{"valid", func(*Config) {}, nil, ""},
		{"no handler", func(c *Config) { c.Handler = nil }, ErrNoHandler, ""},
		{"port too large", func(c *Config) { c.Port = 70000 }, nil, "port 70000"},
		{"negative capacity", func(c *Config) { c.Capacity = -1 }, nil, "capacity"},
		{"negative backlog", func(c *Config) { c.Backlog = -2 }, nil, "backlog"},
		{"read buffer above max request", func(c *Config) { c.ReadBufferSize = 8192; c.MaxRequestBytes = 4096 }, nil, "read buffer"},
		{"negative timeout", func(c *Config) { c.IdleTimeout = -time.Second }, nil, "timeouts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig().WithHandler(nopHandler)
			tt.modify(config)
			err := config.ValidateConfig()

			if tt.name == "valid" {
				if err != nil {
					t.Fatalf("ValidateConfig() error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateConfig() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateConfig() = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("ValidateConfig() = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(DefaultConfig()); !errors.Is(err, ErrNoHandler) {
		t.Errorf("New() without handler error = %v, want ErrNoHandler", err)
	}
}

func TestGetConfigWarnings(t *testing.T) {
	config := DefaultConfig().WithHandler(nopHandler)
	warnings := config.GetConfigWarnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "IdleTimeout") {
		t.Errorf("default warnings = %v, want one IdleTimeout warning", warnings)
	}

	config.IdleTimeout = time.Minute
	config.Capacity = 100
	config.Backlog = 5
	warnings = config.GetConfigWarnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "Backlog") {
		t.Errorf("warnings = %v, want one Backlog warning", warnings)
	}
}
