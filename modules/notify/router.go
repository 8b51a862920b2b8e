package notify

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifyhub/pkg/requestid"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount in the notify module.
// Each service is optional and will only be mounted if provided.
type RouterOptions struct {
	// API serves the notification feed, ingestion, and preference endpoints.
	API Mountable

	// Live serves the websocket endpoint and connection token issuance.
	Live Mountable
}

// Router creates the notify module router with configurable services.
//
// Example:
//
//	apiSvc := notify.NewService(ingestor, dispatcher, storage, prefs)
//	liveSvc := notify.NewLiveService(tokens, manager)
//
//	r := chi.NewRouter()
//	r.Mount("/notify", notify.Router(notify.RouterOptions{
//	    API:  apiSvc,
//	    Live: liveSvc,
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)

	if opts.API != nil {
		r.Mount("/", opts.API.Handle())
	}
	if opts.Live != nil {
		r.Mount("/live", opts.Live.Handle())
	}

	return r
}
