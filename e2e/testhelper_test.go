package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/storyscroll/api/internal/auth"
	"github.com/storyscroll/api/internal/client"
	"github.com/storyscroll/api/internal/config"
	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/media"
	"github.com/storyscroll/api/internal/pipeline"
	"github.com/storyscroll/api/internal/registry"
	"github.com/storyscroll/api/internal/server"
	"github.com/storyscroll/api/internal/service"
	"github.com/storyscroll/api/internal/source"
	ws "github.com/storyscroll/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app        *fiber.App
	cfg        *config.Config
	registry   *registry.Registry
	compositor *stubCompositor
	generate   *service.GenerateService
}

type appOption func(cfg *config.Config)

func withRedditURL(u string) appOption {
	return func(cfg *config.Config) { cfg.Reddit.BaseURL = u }
}

// setupApp builds the same router as main.go. Redis is absent, so rate
// limiting and caching are off, and the media binaries are replaced by stubs
// that write placeholder files.
func setupApp(t *testing.T, opts ...appOption) *testApp {
	t.Helper()

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	root := t.TempDir()
	cfg.Storage.OutputDir = filepath.Join(root, "output")
	cfg.Storage.WorkDir = filepath.Join(root, "tmp")
	cfg.Storage.VideosDir = filepath.Join(root, "videos")
	cfg.Storage.UploadsDir = filepath.Join(root, "uploads")
	cfg.Auth.Enabled = true
	cfg.Auth.Gateway = false
	cfg.JWT.Secret = testJWTSecret
	for _, opt := range opts {
		opt(cfg)
	}
	for _, dir := range []string{cfg.Storage.OutputDir, cfg.Storage.WorkDir, cfg.Storage.VideosDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	log := logger.Nop()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := ws.NewHub(log)
	go hub.Run(hubCtx)

	jobs := registry.New()
	compositor := newStubCompositor()
	executor := pipeline.NewExecutor(pipeline.Deps{
		Store:       jobs,
		Resolver:    source.NewResolver(cfg.Storage.WorkDir, nil),
		Synthesizer: stubSynthesizer{},
		Prober:      stubProber{duration: 12.5},
		Compositor:  compositor,
		Notifier:    hub,
		Logger:      log,
	}, pipeline.Options{
		WorkDir:   cfg.Storage.WorkDir,
		OutputDir: cfg.Storage.OutputDir,
		Timeouts: pipeline.Timeouts{
			Download:  5 * time.Second,
			Synthesis: 5 * time.Second,
			Probe:     5 * time.Second,
			Composite: 5 * time.Second,
			Publish:   5 * time.Second,
		},
		MaxConcurrentComposites: 2,
	})

	videoService := service.NewVideoService(cfg.Storage.VideosDir)
	generateService := service.NewGenerateService(jobs, executor, videoService, nil, log)

	t.Cleanup(func() {
		compositor.releaseAll()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = generateService.Shutdown(ctx)
		stopHub()
	})

	app := server.New(server.Deps{
		Config:           cfg,
		Log:              log,
		Hub:              hub,
		Generate:         generateService,
		Story:            service.NewStoryService(cfg.Storage.UploadsDir),
		Videos:           videoService,
		Reddit:           service.NewRedditService(client.NewRedditClient(&cfg.Reddit), nil, time.Minute, log),
		TTSProvider:      "stub",
		Storage:          "local",
		DisableAccessLog: true,
	})

	return &testApp{
		app:        app,
		cfg:        cfg,
		registry:   jobs,
		compositor: compositor,
		generate:   generateService,
	}
}

// writeVideo places a placeholder clip in the videos directory.
func (ta *testApp) writeVideo(t *testing.T, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(ta.cfg.Storage.VideosDir, name), []byte("video"), 0o644); err != nil {
		t.Fatalf("write video: %v", err)
	}
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(ctx context.Context, text, voice, outBase string) (string, error) {
	path := outBase + ".wav"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte(text), 0o644)
}

type stubProber struct {
	duration float64
}

func (p stubProber) Probe(ctx context.Context, path string) (float64, error) {
	return p.duration, nil
}

// stubCompositor writes the output file. While held it blocks every call
// until released or cancelled.
type stubCompositor struct {
	mu        sync.Mutex
	hold      bool
	release   chan struct{}
	started   chan string
	cancelled chan string
}

func newStubCompositor() *stubCompositor {
	return &stubCompositor{
		release:   make(chan struct{}),
		started:   make(chan string, 16),
		cancelled: make(chan string, 16),
	}
}

func (c *stubCompositor) holdAll() {
	c.mu.Lock()
	c.hold = true
	c.mu.Unlock()
}

func (c *stubCompositor) releaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hold {
		c.hold = false
		close(c.release)
	}
}

func (c *stubCompositor) Composite(ctx context.Context, video, audio, outPath string, opts media.CompositeOptions) (string, error) {
	c.started <- outPath

	c.mu.Lock()
	hold := c.hold
	c.mu.Unlock()
	if hold {
		select {
		case <-c.release:
		case <-ctx.Done():
			c.cancelled <- outPath
			return "", ctx.Err()
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	return outPath, os.WriteFile(outPath, []byte("composited"), 0o644)
}

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.IssueToken(testJWTSecret, "test-user-123", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs an authenticated request.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode extracts error.code from an error envelope.
func errorCode(body map[string]interface{}) string {
	detail, ok := body["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := detail["code"].(string)
	return code
}
