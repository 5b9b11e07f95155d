package providers

import (
	"github.com/samber/do/v2"

	"github.com/tangleapp/tangle-server/internal/auth"
	"github.com/tangleapp/tangle-server/internal/logger"
	"github.com/tangleapp/tangle-server/internal/service"
	"github.com/tangleapp/tangle-server/internal/validation"
)

// ProvideValidator provides the request validator.
func ProvideValidator(i do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideAuthService provides the authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokenService := do.MustInvoke[*auth.TokenService](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokenService, validator, log.Logger), nil
}

// ProvideTagService provides the tag service.
func ProvideTagService(i do.Injector) (*service.TagService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewTagService(storeHandle.Store, sseHandle.Manager, validator, log.Logger), nil
}

// ProvideCaptureService provides the capture service.
func ProvideCaptureService(i do.Injector) (*service.CaptureService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tagService := do.MustInvoke[*service.TagService](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	validator := do.MustInvoke[*validation.Validator](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewCaptureService(storeHandle.Store, tagService, sseHandle.Manager, validator, log.Logger), nil
}
