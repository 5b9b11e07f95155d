package providers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/samber/do/v2"

	"github.com/tangleapp/tangle-server/internal/api"
	"github.com/tangleapp/tangle-server/internal/config"
	"github.com/tangleapp/tangle-server/internal/logger"
	"github.com/tangleapp/tangle-server/internal/service"
	"github.com/tangleapp/tangle-server/internal/sse"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// sseUserResolver authenticates SSE requests. EventSource clients cannot set
// headers, so a token query parameter is accepted alongside the Bearer header.
func sseUserResolver(authService *service.AuthService) sse.UserResolver {
	return func(r *http.Request) (string, error) {
		token := r.URL.Query().Get("token")
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			token = authHeader[7:]
		}
		if token == "" {
			return "", errors.New("missing access token")
		}

		user, _, err := authService.VerifyAccessToken(r.Context(), token)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	authService := do.MustInvoke[*service.AuthService](i)
	tagService := do.MustInvoke[*service.TagService](i)
	captureService := do.MustInvoke[*service.CaptureService](i)

	sseHandler := sse.NewHandler(sseHandle.Manager, sseUserResolver(authService), log.Logger)

	services := &api.Services{
		Auth:    authService,
		Tag:     tagService,
		Capture: captureService,
	}

	handler := api.NewServer(cfg, storeHandle.Store, services, sseHandler, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr)

	return &HTTPServerHandle{Server: srv}, nil
}
