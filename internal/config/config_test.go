package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BACKEND_URL", "UPLOAD_URL", "WEBSOCKET_ENABLED", "APP_ID", "PAGE_SIZE", "PORT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.BackendURL != "https://irdop.org" {
		t.Fatalf("BackendURL = %q", cfg.Client.BackendURL)
	}
	if cfg.Client.UploadURL != cfg.Client.BackendURL {
		t.Fatalf("UploadURL should default to BackendURL, got %q", cfg.Client.UploadURL)
	}
	if !cfg.Client.WebSocketEnabled {
		t.Fatal("WebSocket should default to enabled")
	}
	if cfg.Client.AppID != "LIMS-IRDOP-DEV" {
		t.Fatalf("AppID = %q", cfg.Client.AppID)
	}
	if cfg.Client.PageSize != 10 {
		t.Fatalf("PageSize = %d", cfg.Client.PageSize)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://localhost:8080")
	t.Setenv("WEBSOCKET_ENABLED", "false")
	t.Setenv("PAGE_SIZE", "25")
	t.Setenv("PORT", "127.0.0.1:9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Client.BackendURL != "http://localhost:8080" {
		t.Fatalf("BackendURL = %q", cfg.Client.BackendURL)
	}
	if cfg.Client.UploadURL != "http://localhost:8080" {
		t.Fatalf("UploadURL = %q", cfg.Client.UploadURL)
	}
	if cfg.Client.WebSocketEnabled {
		t.Fatal("WebSocket should be disabled")
	}
	if cfg.Client.PageSize != 25 {
		t.Fatalf("PageSize = %d", cfg.Client.PageSize)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("PAGE_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for PAGE_SIZE=0")
	}

	t.Setenv("PAGE_SIZE", "ten")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric PAGE_SIZE")
	}
}

func TestAIConfigEnabled(t *testing.T) {
	cases := []struct {
		name string
		cfg  AIConfig
		want bool
	}{
		{"api key", AIConfig{Model: "m", APIKey: "k"}, true},
		{"ak/sk pair", AIConfig{Model: "m", AccessKey: "a", SecretKey: "s"}, true},
		{"no model", AIConfig{APIKey: "k"}, false},
		{"half pair", AIConfig{Model: "m", AccessKey: "a"}, false},
		{"nothing", AIConfig{}, false},
	}
	for _, tc := range cases {
		if got := tc.cfg.Enabled(); got != tc.want {
			t.Errorf("%s: Enabled() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
