package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterOptions struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

// NewRouter mounts the cart API. The event stream sits outside the timeout and
// compression middleware because it is long-lived.
func NewRouter(cart *CartHandler, events *EventsHandler, logger *zap.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(SessionMiddleware)
	r.Use(RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/events", events.Stream)

		r.Group(func(r chi.Router) {
			if opts.RequestTimeout > 0 {
				r.Use(middleware.Timeout(opts.RequestTimeout))
			}
			if opts.MaxRequestBodySize > 0 {
				r.Use(middleware.RequestSize(opts.MaxRequestBodySize))
			}
			r.Use(middleware.Compress(5))

			r.Get("/", cart.GetCart)
			r.Delete("/", cart.ClearCart)
			r.Get("/totals", cart.GetTotals)
			r.Post("/items", cart.AddItem)
			r.Put("/items/{product_id}", cart.UpdateQuantity)
			r.Delete("/items/{product_id}", cart.RemoveItem)
		})
	})

	return r
}
