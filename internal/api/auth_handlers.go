package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/tangleapp/tangle-server/internal/service"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/register",
		Summary:     "Register",
		Description: "Creates a new user account and logs it in",
		Tags:        []string{"Auth"},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Login",
		Description: "Authenticates a user and issues tokens",
		Tags:        []string{"Auth"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "refresh",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/refresh",
		Summary:     "Refresh tokens",
		Description: "Rotates a refresh token for new credentials",
		Tags:        []string{"Auth"},
	}, s.handleRefresh)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout",
		Summary:     "Logout",
		Description: "Revokes the session behind a refresh token",
		Tags:        []string{"Auth"},
	}, s.handleLogout)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/me",
		Summary:     "Current user",
		Description: "Returns the authenticated user",
		Tags:        []string{"Auth"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCurrentUser)
}

// === DTOs ===

// UserResponse contains user data in API responses.
type UserResponse struct {
	ID          string    `json:"id" doc:"User ID"`
	Email       string    `json:"email" doc:"Email address"`
	DisplayName string    `json:"display_name" doc:"Display name"`
	CreatedAt   time.Time `json:"created_at" doc:"Creation time"`
}

// TokensResponse contains issued credentials.
type TokensResponse struct {
	User         UserResponse `json:"user" doc:"Authenticated user"`
	AccessToken  string       `json:"access_token" doc:"PASETO access token"`
	RefreshToken string       `json:"refresh_token" doc:"Opaque refresh token"`
	TokenType    string       `json:"token_type" doc:"Token type, always Bearer"`
	ExpiresIn    int          `json:"expires_in" doc:"Access token lifetime in seconds"`
	SessionID    string       `json:"session_id" doc:"Session ID"`
}

// TokensOutput wraps the tokens response for Huma.
type TokensOutput struct {
	Body TokensResponse
}

// RegisterInput wraps the register request for Huma.
type RegisterInput struct {
	Body service.RegisterRequest
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body service.LoginRequest
}

// RefreshInput wraps the refresh request for Huma.
type RefreshInput struct {
	Body service.RefreshRequest
}

// LogoutInput wraps the logout request for Huma.
type LogoutInput struct {
	Body service.RefreshRequest
}

// CurrentUserInput contains parameters for the current user lookup.
type CurrentUserInput struct {
	Authorization string `header:"Authorization"`
}

// UserOutput wraps the user response for Huma.
type UserOutput struct {
	Body UserResponse
}

// === Handlers ===

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*TokensOutput, error) {
	resp, err := s.services.Auth.Register(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return tokensOutput(resp), nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*TokensOutput, error) {
	resp, err := s.services.Auth.Login(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return tokensOutput(resp), nil
}

func (s *Server) handleRefresh(ctx context.Context, input *RefreshInput) (*TokensOutput, error) {
	resp, err := s.services.Auth.RefreshTokens(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return tokensOutput(resp), nil
}

func (s *Server) handleLogout(ctx context.Context, input *LogoutInput) (*MessageOutput, error) {
	if err := s.services.Auth.Logout(ctx, input.Body.RefreshToken); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Logged out"}}, nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, input *CurrentUserInput) (*UserOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &UserOutput{
		Body: UserResponse{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.DisplayName,
			CreatedAt:   user.CreatedAt,
		},
	}, nil
}

func tokensOutput(resp *service.AuthResponse) *TokensOutput {
	return &TokensOutput{
		Body: TokensResponse{
			User: UserResponse{
				ID:          resp.User.ID,
				Email:       resp.User.Email,
				DisplayName: resp.User.DisplayName,
				CreatedAt:   resp.User.CreatedAt,
			},
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			TokenType:    resp.TokenType,
			ExpiresIn:    resp.ExpiresIn,
			SessionID:    resp.SessionID,
		},
	}
}
