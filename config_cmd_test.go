package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sskaje/clashctl/internal/conf"
	"github.com/sskaje/clashctl/internal/controller"
	"github.com/sskaje/clashctl/internal/pipeline"
	"github.com/sskaje/clashctl/internal/tree"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) conf.Config {
	t.Helper()
	return conf.Config{
		ClashRoot:        t.TempDir(),
		ContainerWorkdir: "/root/.config/mihomo/",
		Dashboards:       []string{"MetaCubeX/metacubexd", "haishanh/yacd"},
	}
}

func TestGenerateConfig(t *testing.T) {
	cfg := testConfig(t)
	base := filepath.Join(cfg.DownloadDir(), conf.LatestConfigName)
	writeFile(t, base, `
external-controller: 0.0.0.0:9090
proxy-groups:
  - name: Proxy
    proxies: [DIRECT]
rules:
  - MATCH,Proxy
`)
	writeFile(t, cfg.ProvidersPath(), `
- name: extra
  type: http
  url: https://example.com/extra.yaml
  add-provider-to-proxy-group: [Proxy]
`)
	writeFile(t, filepath.Join(cfg.OverrideDir(), "10-rules.yaml"), `
secret: s3cret
rules:
  - DOMAIN,example.com,DIRECT
`)

	doc, err := generateConfig(cfg, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	written, err := pipeline.Load(cfg.ConfigPath())
	if err != nil {
		t.Fatalf("output not readable: %v", err)
	}
	if diff := cmp.Diff(doc, written, cmp.AllowUnexported(tree.Mapping{}), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("written document mismatch (-want +got):\n%s", diff)
	}

	rules, _ := doc.Sequence("rules")
	var got []string
	for _, item := range rules.Items {
		s, _ := tree.Text(item)
		got = append(got, s)
	}
	if diff := cmp.Diff([]string{"DOMAIN,example.com,DIRECT", "MATCH,Proxy"}, got); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
	if providers, ok := doc.Mapping("proxy-providers"); !ok || providers.Len() != 1 {
		t.Errorf("provider not injected: %v", doc.Keys())
	}
}

func TestGenerateConfig_MissingBase(t *testing.T) {
	cfg := testConfig(t)
	_, err := generateConfig(cfg, cfg.LatestConfigPath())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if _, err := os.Stat(cfg.ConfigPath()); !os.IsNotExist(err) {
		t.Errorf("output written despite failure")
	}
}

func TestReloadConfig(t *testing.T) {
	var body, auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	addr := strings.TrimPrefix(srv.URL, "http://")
	writeFile(t, cfg.ConfigPath(), "external-controller: "+addr+"\nsecret: s3cret\n")

	if err := reloadConfig(context.Background(), cfg, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != `{"path":"/root/.config/mihomo/config.yaml"}` {
		t.Errorf("unexpected body %s", body)
	}
	if auth != "Bearer s3cret" {
		t.Errorf("unexpected Authorization %q", auth)
	}
}

func TestReloadConfig_NoController(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.ConfigPath(), "mixed-port: 7890\n")

	err := reloadConfig(context.Background(), cfg, nil)
	if !errors.Is(err, controller.ErrNoController) {
		t.Errorf("expected ErrNoController, got %v", err)
	}
}

func TestDashboardURLs(t *testing.T) {
	cfg := testConfig(t)
	writeFile(t, cfg.ConfigPath(), "external-controller: ':9090'\nexternal-ui: ui\n")

	urls, err := dashboardURLs(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{
		"http://127.0.0.1:9090/ui/metacubexd/#/?hostname=127.0.0.1&port=9090",
		"http://127.0.0.1:9090/ui/yacd/#/?hostname=127.0.0.1&port=9090",
	}
	if diff := cmp.Diff(expected, urls); diff != "" {
		t.Errorf("dashboardURLs() mismatch (-want +got):\n%s", diff)
	}
}

func TestControllerVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" || r.Header.Get("Authorization") != "Bearer s3cret" {
			http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"meta":true,"version":"v1.18.5"}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	addr := strings.TrimPrefix(srv.URL, "http://")
	writeFile(t, cfg.ConfigPath(), "external-controller: "+addr+"\nsecret: s3cret\n")

	base, version, err := controllerVersion(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base != srv.URL || version != "v1.18.5" {
		t.Errorf("controllerVersion() = %s, %s", base, version)
	}

	writeFile(t, cfg.ConfigPath(), "external-controller: "+addr+"\n")
	if _, _, err := controllerVersion(context.Background(), cfg); err == nil {
		t.Error("expected error without secret")
	}
}
