package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/wp-deepak/promobox/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса promobox.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/promo/banner", h.GetBanner)
		r.Post("/cart/quote", h.QuoteCart)
		r.Post("/orders", h.CreateOrder)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/promo/settings", h.GetPromotionSettings)
				r.Put("/promo/settings", h.SavePromotionSettings)
				r.Delete("/promo/settings", h.ResetPromotionSettings)

				r.Put("/products/{productID}/foodbox", h.SetProductFoodBox)

				r.Get("/foodbox/orders", h.ListFoodBoxOrders)
				r.Post("/foodbox/orders/{number}/status", h.UpdateFulfillment)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
