package api

import (
	"encoding/hex"
	"encoding/json/v2"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangleapp/tangle-server/internal/auth"
	"github.com/tangleapp/tangle-server/internal/service"
	"github.com/tangleapp/tangle-server/internal/sse"
	"github.com/tangleapp/tangle-server/internal/store"
	"github.com/tangleapp/tangle-server/internal/validation"
)

// testEnvelope mirrors the response envelope for decoding in tests.
type testEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// testServer wraps the API server for handler testing.
type testServer struct {
	*Server
	api          humatest.TestAPI
	cleanup      func()
	sseManager   *sse.Manager
	tokenService *auth.TokenService
}

// setupTestServer creates a test server backed by a temp database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tangle-api-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.New(dbPath, logger)
	require.NoError(t, err)

	authKey, err := auth.LoadOrGenerateKey(tmpDir)
	require.NoError(t, err)

	tokenService, err := auth.NewTokenService(
		hex.EncodeToString(authKey),
		15*time.Minute,
		30*24*time.Hour,
	)
	require.NoError(t, err)

	sseManager := sse.NewManager(logger)
	validator := validation.New()

	authService := service.NewAuthService(st, tokenService, validator, logger)
	tagService := service.NewTagService(st, sseManager, validator, logger)
	captureService := service.NewCaptureService(st, tagService, sseManager, validator, logger)

	services := &Services{
		Auth:    authService,
		Tag:     tagService,
		Capture: captureService,
	}

	router := chi.NewRouter()

	limiter := NewAuthRateLimiter(100, time.Minute, 50)
	router.Use(authRateLimitMiddleware(limiter, logger))
	router.Use(authMiddleware(services.Auth))

	humaConfig := huma.DefaultConfig("Tangle Test", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)

	api := humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s := &Server{
		store:           st,
		services:        services,
		router:          router,
		api:             api,
		logger:          logger,
		authRateLimiter: limiter,
	}

	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerTagRoutes()
	s.registerCaptureRoutes()

	testAPI := humatest.Wrap(t, api)

	cleanup := func() {
		_ = st.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return &testServer{
		Server:       s,
		api:          testAPI,
		cleanup:      cleanup,
		sseManager:   sseManager,
		tokenService: tokenService,
	}
}

// createTestUser registers a user and returns the access token and user ID.
func (ts *testServer) createTestUser(t *testing.T, email string) (token string, userID string) {
	t.Helper()

	resp := ts.api.Post("/api/v1/auth/register", map[string]any{
		"email":        email,
		"password":     "TestPassword123!",
		"display_name": "Test User",
	})
	require.Equal(t, http.StatusOK, resp.Code, "Register failed: %s", resp.Body.String())

	var envelope testEnvelope[TokensResponse]
	err := json.Unmarshal(resp.Body.Bytes(), &envelope)
	require.NoError(t, err)

	claims, err := ts.tokenService.VerifyAccessToken(envelope.Data.AccessToken)
	require.NoError(t, err)

	return envelope.Data.AccessToken, claims.UserID
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)
	defer ts.cleanup()

	resp := ts.api.Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)

	var envelope testEnvelope[HealthResponse]
	err := json.Unmarshal(resp.Body.Bytes(), &envelope)
	require.NoError(t, err)

	assert.True(t, envelope.Success)
	assert.Equal(t, "ok", envelope.Data.Status)
}

func TestAuthRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	limiter := NewAuthRateLimiter(1, time.Minute, 2)
	mw := authRateLimitMiddleware(limiter, logger)

	var hits int
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))

	doRequest := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Burst of 2 allowed, third hits the limit.
	assert.Equal(t, http.StatusOK, doRequest("/api/v1/auth/login"))
	assert.Equal(t, http.StatusOK, doRequest("/api/v1/auth/login"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest("/api/v1/auth/login"))
	assert.Equal(t, 2, hits)

	// Non-auth paths are never limited.
	assert.Equal(t, http.StatusOK, doRequest("/api/v1/tags"))
	assert.Equal(t, 3, hits)
}
