package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/wadesconner/rtm-mixer/internal/auth"
	"github.com/wadesconner/rtm-mixer/internal/config"
	"github.com/wadesconner/rtm-mixer/internal/engine"
	"github.com/wadesconner/rtm-mixer/internal/handler"
	"github.com/wadesconner/rtm-mixer/internal/middleware"
	"github.com/wadesconner/rtm-mixer/internal/pipeline"
	"github.com/wadesconner/rtm-mixer/internal/service"
)

const testJWTSecret = "test-secret-for-e2e"

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app identical to main.go but with an engine
// binary that does not exist and no TTS key, so every external dependency
// fails deterministically.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost — must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	validate := validator.New()

	// Engine pointed at a binary that cannot exist, so availability checks
	// fail before anything shells out.
	engineCfg := &config.EngineConfig{
		FFmpegPath:   "/nonexistent/ffmpeg",
		FFprobePath:  "/nonexistent/ffprobe",
		StageTimeout: 10,
	}
	ffmpegEngine := engine.NewFFmpeg(engineCfg)
	outputSpec := pipeline.OutputSpecFor(48000, 2, "192k")
	runner := pipeline.NewStageRunner(ffmpegEngine, outputSpec, 10*time.Second, false)
	orchestrator := pipeline.NewOrchestrator(runner, false)

	// Services
	mixService := service.NewMixService(redisClient, asynqClient, orchestrator, ffmpegEngine, t.TempDir())
	narrateService := service.NewNarrateService(unconfiguredTTS{})

	// Handlers
	mixHandler := handler.NewMixHandler(mixService, false)
	narrateHandler := handler.NewNarrateHandler(narrateService, validate)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 3 * handler.MaxUploadBytes,
	})

	// Base routes
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"engine":  ffmpegEngine.Available(),
				"tts":     false,
				"storage": false,
				"auth":    true,
			},
		})
	})

	// API routes (authenticated)
	api := app.Group("/api", authMiddleware.Authenticate())

	// Use very high rate limits so tests don't get blocked
	mix := api.Group("/mix")
	mix.Post("/", rateLimiter.MixLimit(10000), mixHandler.Mix)
	mix.Post("/start", rateLimiter.MixLimit(10000), mixHandler.StartMix)
	mix.Get("/status/:jobId", mixHandler.GetStatus)
	mix.Get("/result/:jobId", mixHandler.GetResult)
	mix.Get("/download/:jobId", mixHandler.Download)

	api.Post("/narrate", rateLimiter.NarrateLimit(10000), narrateHandler.Narrate)

	return &testApp{app: app}
}

var errNotConfigured = errors.New("tts not configured")

// unconfiguredTTS stands in for a TTS client with no API key.
type unconfiguredTTS struct{}

func (unconfiguredTTS) Synthesize(_ context.Context, _, _ string) ([]byte, error) {
	return nil, errNotConfigured
}
func (unconfiguredTTS) IsConfigured() bool { return false }

// generateToken creates an HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.Claims{
		UserID: "test-user-123",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "rtm-mixer",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
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

// doMultipartRequest performs an authenticated multipart POST with the given
// files (field name to content) and form fields.
func doMultipartRequest(t *testing.T, app *fiber.App, path string, files map[string][]byte, fields map[string]string) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile(name, name+".mp3")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("failed to write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write form field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t))

	return app.Test(req, -1)
}

// fakeAsset returns n bytes of filler standing in for encoded audio.
func fakeAsset(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
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

// errorCode extracts error.code from an error envelope.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no error object: %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
