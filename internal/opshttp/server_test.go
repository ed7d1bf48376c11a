package opshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/tripdesk/internal/health"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/version"
)

// test helpers

func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startOps(t *testing.T, opts Options) int {
	t.Helper()
	if opts.Port == 0 {
		opts.Port = getFreePort(t)
	}
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = stop(ctx) })
	return opts.Port
}

func opsGet(t *testing.T, port int, path string) *http.Response {
	t.Helper()
	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	var lastErr error
	for i := 0; i < 50; i++ {
		resp, err := http.Get(url)
		if err == nil {
			return resp
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("GET %s: %v", url, lastErr)
	return nil
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func serve(h http.Handler, remote, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	req.RemoteAddr = remote
	h.ServeHTTP(rec, req)
	return rec
}

// Start - lifecycle

func TestStart_GracefulShutdown(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()

	stop, err := Start(ctx, log.Nop(), Options{Port: port, Health: health.Fixed(true, "")})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	opsGet(t, port, "/-/healthy").Body.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := stop(shutdownCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := stop(shutdownCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if _, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)); err == nil {
		t.Fatal("server still accepting connections after shutdown")
	}
}

func TestStart_PortConflict(t *testing.T) {
	port := startOps(t, Options{})
	if _, err := Start(context.Background(), log.Nop(), Options{Port: port}); err == nil {
		t.Fatal("expected error for port conflict")
	}
}

// Health endpoints

func TestStart_Healthz(t *testing.T) {
	port := startOps(t, Options{Health: health.Fixed(true, "")})

	resp := opsGet(t, port, "/-/healthy")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Fatalf("status = %d body = %q", resp.StatusCode, body)
	}
}

func TestStart_Readyz_NotReady(t *testing.T) {
	port := startOps(t, Options{Readiness: health.Fixed(false, "attachments: bucket unreachable")})

	resp := opsGet(t, port, "/-/ready")
	body := readBody(t, resp)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(body, "attachments: bucket unreachable") {
		t.Fatalf("body = %q, want reason", body)
	}
}

func TestHandler_ShutdownGate(t *testing.T) {
	var gate health.ShutdownGate
	h := NewHandler(log.Nop(), Options{Readiness: gate.Probe()})

	if rec := serve(h, "127.0.0.1:1", "/-/ready"); rec.Code != http.StatusOK {
		t.Fatalf("initially: %d", rec.Code)
	}
	gate.Set("draining")
	if rec := serve(h, "127.0.0.1:1", "/-/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("after drain: %d, want 503", rec.Code)
	}
}

// Metrics and pprof

func TestHandler_Metrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# HELP fake_metric\n"))
	})
	h := NewHandler(log.Nop(), Options{Metrics: metrics})
	rec := serve(h, "10.0.0.5:4000", "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "fake_metric") {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}

	h = NewHandler(log.Nop(), Options{})
	if rec := serve(h, "10.0.0.5:4000", "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("nil metrics: status = %d, want 404", rec.Code)
	}
}

func TestHandler_Pprof(t *testing.T) {
	on := NewHandler(log.Nop(), Options{EnablePprof: true})
	if rec := serve(on, "127.0.0.1:1", "/debug/pprof/"); rec.Code != http.StatusOK {
		t.Fatalf("enabled: status = %d", rec.Code)
	}
	off := NewHandler(log.Nop(), Options{})
	if rec := serve(off, "127.0.0.1:1", "/debug/pprof/"); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled: status = %d, want 404", rec.Code)
	}
}

func TestHandler_AllowPublic(t *testing.T) {
	h := NewHandler(log.Nop(), Options{AllowPublic: true})
	if rec := serve(h, "8.8.8.8:1", "/-/healthy"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandler_RecoverMW(t *testing.T) {
	called := false
	boom := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := NewHandler(log.Nop(), Options{Metrics: boom, UseRecoverMW: true, OnPanic: func() { called = true }})

	rec := serve(h, "127.0.0.1:1", "/metrics")
	if rec.Code != http.StatusInternalServerError || !called {
		t.Fatalf("status = %d onPanic=%v", rec.Code, called)
	}
}

// requireNonPublicNetwork

func TestRequireNonPublicNetwork(t *testing.T) {
	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:12345", http.StatusOK},
		{"[::1]:12345", http.StatusOK},
		{"10.0.0.1:8080", http.StatusOK},
		{"172.16.0.1:8080", http.StatusOK},
		{"192.168.1.1:8080", http.StatusOK},
		{"169.254.1.1:8080", http.StatusOK},
		{"[fd00::1]:8080", http.StatusOK},
		{"[::ffff:10.0.0.1]:12345", http.StatusOK},
		{"8.8.8.8:12345", http.StatusForbidden},
		{"1.1.1.1:443", http.StatusForbidden},
		{"203.0.113.1:80", http.StatusForbidden},
		{"198.51.100.1:9000", http.StatusForbidden},
		{"[::ffff:8.8.8.8]:12345", http.StatusForbidden},
		{"[2001:4860:4860::8888]:443", http.StatusForbidden},
		{"not-an-address", http.StatusForbidden},
		{"", http.StatusForbidden},
		{"999.999.999.999:8080", http.StatusForbidden},
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := requireNonPublicNetwork(log.Nop(), inner)

	for _, tt := range tests {
		if rec := serve(h, tt.remote, "/-/healthy"); rec.Code != tt.want {
			t.Errorf("%q: status = %d, want %d", tt.remote, rec.Code, tt.want)
		}
	}
}

func TestRequireNonPublicNetwork_ProxiedRejected(t *testing.T) {
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not be called for proxied requests")
	})
	h := requireNonPublicNetwork(log.Nop(), inner)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	req.RemoteAddr = "10.0.0.2:5000"
	req.Header.Set("X-Forwarded-For", "8.8.8.8")
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

// /version

func TestVersionHandler(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return started.Add(90*time.Second + 400*time.Millisecond) }
	h := versionHandler(version.Info{AppName: "tripdesk", Version: "1.4.0", Commit: "abc123"}, started, now)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", http.NoBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	var got struct {
		App    string `json:"app"`
		Ver    string `json:"version"`
		Commit string `json:"commit"`
		Uptime int64  `json:"uptime_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.App != "tripdesk" || got.Ver != "1.4.0" || got.Commit != "abc123" || got.Uptime != 90 {
		t.Fatalf("got %+v", got)
	}
}

func TestHandler_VersionDefaultsToBuildInfo(t *testing.T) {
	h := NewHandler(log.Nop(), Options{})
	rec := serve(h, "127.0.0.1:1", "/version")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"app":"tripdesk"`) {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec := serve(h, "203.0.113.9:1", "/version"); rec.Code != http.StatusForbidden {
		t.Fatalf("public caller: status = %d, want 403", rec.Code)
	}
}
