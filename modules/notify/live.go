package notify

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifyhub/handler"
	"github.com/dmitrymomot/notifyhub/pkg/binder"
	"github.com/dmitrymomot/notifyhub/pkg/live"
)

// LiveService exposes the websocket endpoint and the short-lived
// connection tokens clients exchange for it.
type LiveService struct {
	tokens  *live.TokenIssuer
	manager *live.Manager
}

func NewLiveService(tokens *live.TokenIssuer, manager *live.Manager) *LiveService {
	return &LiveService{
		tokens:  tokens,
		manager: manager,
	}
}

func (s *LiveService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/token", handler.Wrap(s.issueToken,
		handler.WithBinders[handler.Context, TokenRequest](binder.JSON()),
	))

	// The websocket handshake carries the token in the query string; the
	// manager answers verification failures with application close codes.
	r.Get("/ws", s.manager.HandleWS)

	return r
}

// TokenRequest asks for a connection token on behalf of a user.
type TokenRequest struct {
	UserID string `json:"user_id"`
}

// TokenResponse carries the minted connection token.
type TokenResponse struct {
	Token string `json:"token"`
}

func (s *LiveService) issueToken(ctx handler.Context, req TokenRequest) handler.Response {
	if req.UserID == "" {
		verr := handler.NewValidationError()
		verr.Add("user_id", "is required")
		return handler.JSONError(verr)
	}

	token, err := s.tokens.Issue(req.UserID)
	if err != nil {
		return handler.JSONError(err)
	}
	return handler.JSON(TokenResponse{Token: token}, handler.WithJSONStatus(http.StatusCreated))
}
