package postgres

import (
	"context"
	"testing"
	"time"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig("postgres://localhost/relay")
	if cfg.URL != "postgres://localhost/relay" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.MaxConns != 10 || cfg.MinConns != 1 {
		t.Errorf("conns = %d/%d, want 10/1", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.ApplicationName != "oracle-relay" {
		t.Errorf("ApplicationName = %q", cfg.ApplicationName)
	}
}

func TestPoolConfig_PgxConfig(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantApp string
		wantErr bool
	}{
		{name: "defaults applied", url: "postgres://relay:pw@localhost:5432/relay", wantApp: "oracle-relay"},
		{name: "url application name kept", url: "postgres://localhost/relay?application_name=audit", wantApp: "audit"},
		{name: "bad url", url: "postgres://localhost:notaport/relay", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultPoolConfig(tt.url).pgxConfig()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.MaxConns != 10 || got.MinConns != 1 {
				t.Errorf("conns = %d/%d, want 10/1", got.MaxConns, got.MinConns)
			}
			if got.MaxConnIdleTime != time.Minute || got.MaxConnLifetime != 30*time.Minute {
				t.Errorf("lifetimes = %v/%v", got.MaxConnIdleTime, got.MaxConnLifetime)
			}
			if got.ConnConfig.ConnectTimeout != 5*time.Second {
				t.Errorf("connect timeout = %v", got.ConnConfig.ConnectTimeout)
			}
			if app := got.ConnConfig.RuntimeParams["application_name"]; app != tt.wantApp {
				t.Errorf("application_name = %q, want %q", app, tt.wantApp)
			}
		})
	}
}

func TestOpenPool_RejectsBadURL(t *testing.T) {
	if _, err := OpenPool(context.Background(), PoolConfig{URL: "postgres://localhost:notaport/relay"}); err == nil {
		t.Fatal("expected error for unparseable URL")
	}
}
