package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/solusnoir/solus/catalog"
	"github.com/solusnoir/solus/config"
	"github.com/solusnoir/solus/media"
	"github.com/solusnoir/solus/storage/mirror"
	mirrorfactory "github.com/solusnoir/solus/storage/mirror/factory"
)

// memoryMirror stands in for the remote buckets.
type memoryMirror struct {
	mu      sync.Mutex
	objects map[mirror.Bucket][]mirror.RemoteObject
	fail    error
}

func (m *memoryMirror) Mirror(_ context.Context, storedPath string, category media.Category) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	if m.objects == nil {
		m.objects = map[mirror.Bucket][]mirror.RemoteObject{}
	}
	bucket := mirror.BucketFor(category)
	id := fmt.Sprintf("obj-%d", len(m.objects[bucket])+1)
	m.objects[bucket] = append(m.objects[bucket], mirror.RemoteObject{ID: id, Name: filepath.Base(storedPath)})
	return id, nil
}

func (m *memoryMirror) List(_ context.Context, bucket mirror.Bucket, pageSize int) ([]mirror.RemoteObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	out := append([]mirror.RemoteObject{}, m.objects[bucket]...)
	if len(out) > pageSize {
		out = out[:pageSize]
	}
	return out, nil
}

func testConfig(t *testing.T, strategy string) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.Server{Address: "127.0.0.1", Port: 0, Limits: config.ServerLimits{
			MaxPayloadSize: 1 << 16, MaxFileSize: 10 << 20, MaxMultipartMem: 1 << 20,
		}},
		Media:   config.Media{Path: t.TempDir()},
		Mirror:  config.Mirror{Strategy: strategy, ContentType: "derived", Timeout: 5 * time.Second},
		Ledger:  config.Ledger{Strategy: "none"},
		Catalog: config.Catalog{PageSize: 100, ListTimeout: 5 * time.Second},
		Completion: config.Completion{
			BaseUrl: "http://127.0.0.1:0", Model: "gpt-3.5-turbo-instruct", MaxTokens: 150,
		},
	}
}

func registerMirror(t *testing.T, m mirror.Mirror) string {
	t.Helper()
	name := "memory-" + strings.ReplaceAll(t.Name(), "/", "-")
	mirrorfactory.Register(name, func(*config.Mirror) (mirror.Mirror, error) { return m, nil })
	return name
}

func uploadRequest(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(fw, content)
	w.Close()

	req, err := http.NewRequest(http.MethodPost, url+"/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func noRedirectClient() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
}

func getPortfolio(t *testing.T, url string) catalog.View {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url+"/portfolio", nil)
	req.Header.Set("Accept", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	defer res.Body.Close()

	var view catalog.View
	if err := json.NewDecoder(res.Body).Decode(&view); err != nil {
		t.Fatalf("decode portfolio: %v", err)
	}
	return view
}

func TestRouter_UploadThenPortfolio(t *testing.T) {
	remote := &memoryMirror{}
	cfg := testConfig(t, registerMirror(t, remote))

	rt, err := initialize(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { cleanup(rt) })

	srv := httptest.NewServer(NewRouter(rt.state))
	defer srv.Close()

	res, err := noRedirectClient().Do(uploadRequest(t, srv.URL, "newbeat.wav", "RIFF"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusSeeOther || res.Header.Get("Location") != "/portfolio" {
		t.Fatalf("expected 303 to /portfolio, got %d %q", res.StatusCode, res.Header.Get("Location"))
	}

	if data, err := os.ReadFile(filepath.Join(cfg.Media.Path, "newbeat.wav")); err != nil || string(data) != "RIFF" {
		t.Fatalf("expected stored file, got %q err=%v", data, err)
	}

	view := getPortfolio(t, srv.URL)
	if len(view.Beats) != 1 || view.Beats[0].Name != "newbeat.wav" {
		t.Fatalf("expected mirrored beat to be listed, got %+v", view.Beats)
	}
	if len(view.New) != 1 || view.New[0].URL != "/uploads/newbeat.wav" {
		t.Fatalf("expected local entry, got %+v", view.New)
	}

	file, err := http.Get(srv.URL + view.New[0].URL)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	body, _ := io.ReadAll(file.Body)
	file.Body.Close()
	if file.StatusCode != http.StatusOK || string(body) != "RIFF" {
		t.Fatalf("unexpected file response %d %q", file.StatusCode, body)
	}
}

func TestRouter_MirrorFailureStillRedirects(t *testing.T) {
	remote := &memoryMirror{fail: errors.New("403 forbidden")}
	cfg := testConfig(t, registerMirror(t, remote))

	rt, err := initialize(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { cleanup(rt) })

	srv := httptest.NewServer(NewRouter(rt.state))
	defer srv.Close()

	res, err := noRedirectClient().Do(uploadRequest(t, srv.URL, "demo_take1.wav", "RIFF"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusSeeOther {
		t.Fatalf("expected 303 despite mirror failure, got %d", res.StatusCode)
	}

	view := getPortfolio(t, srv.URL)
	if !view.Degraded || len(view.New) != 0 || len(view.Beats) != 0 {
		t.Fatalf("expected entirely empty degraded view, got %+v", view)
	}
}

func TestRouter_RejectsDisallowedType(t *testing.T) {
	cfg := testConfig(t, "noop")
	rt, err := initialize(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { cleanup(rt) })

	rr := httptest.NewRecorder()
	NewRouter(rt.state).ServeHTTP(rr, uploadRequest(t, "", "notes.txt", "hello"))

	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "File type not allowed") {
		t.Fatalf("expected 400, got %d %s", rr.Code, rr.Body.String())
	}
	entries, _ := os.ReadDir(cfg.Media.Path)
	if len(entries) != 0 {
		t.Fatalf("expected nothing stored")
	}
}

func TestRouter_Pages(t *testing.T) {
	cfg := testConfig(t, "noop")
	rt, err := initialize(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { cleanup(rt) })
	router := NewRouter(rt.state)

	cases := []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/upload", http.StatusOK},
		{http.MethodGet, "/portfolio", http.StatusOK},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/uploads/missing.mp3", http.StatusNotFound},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tc := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
		if rr.Code != tc.code {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.code, rr.Code)
		}
		if rr.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s %s: expected request id header", tc.method, tc.path)
		}
	}
}

func TestRouter_CompletionRequiresPrompt(t *testing.T) {
	cfg := testConfig(t, "noop")
	rt, err := initialize(cfg)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { cleanup(rt) })

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/generate-completion", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	NewRouter(rt.state).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest || strings.TrimSpace(rr.Body.String()) != `{"error":"No prompt provided."}` {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}
}

func TestInitialize_Errors(t *testing.T) {
	t.Run("unknown mirror", func(t *testing.T) {
		if _, err := initialize(testConfig(t, "unknown")); err == nil {
			t.Fatalf("expected error for unknown mirror strategy")
		}
	})

	t.Run("unknown ledger", func(t *testing.T) {
		cfg := testConfig(t, "noop")
		cfg.Ledger.Strategy = "bogus"
		if _, err := initialize(cfg); err == nil {
			t.Fatalf("expected error for unknown ledger strategy")
		}
	})

	t.Run("unusable media path", func(t *testing.T) {
		cfg := testConfig(t, "noop")
		blocker := filepath.Join(t.TempDir(), "file")
		_ = os.WriteFile(blocker, nil, 0644)
		cfg.Media.Path = filepath.Join(blocker, "uploads")
		if _, err := initialize(cfg); err == nil {
			t.Fatalf("expected error when media path is under a file")
		}
	})
}

func TestCleanupAllowsNil(t *testing.T) {
	cleanup(nil)
	cleanup(&services{})
}

func TestRun_FailsWhenInitializationFails(t *testing.T) {
	if err := Run(context.Background(), testConfig(t, "unknown")); err == nil {
		t.Fatalf("expected Run to fail for unknown strategy")
	}
}

func TestRun_FailsWhenAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t, "noop")
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

	if err := Run(context.Background(), cfg); err == nil {
		t.Fatalf("expected Run to fail when the port is taken")
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t, "noop")
	cfg.Server.Limits.MaxConnections = 4
	cfg.Mirror.Queue = config.MirrorQueue{Workers: 1, Size: 4}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down after cancel")
	}
}
