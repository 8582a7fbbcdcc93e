package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all position routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/positions", func(r chi.Router) {
		r.Get("/", h.HandleListPositions) // ?status=open|closed|all
		r.Post("/", h.HandleCreatePosition)
		r.Get("/summary", h.HandleGetSummary)
		r.Get("/greeks", h.HandleGetGreeks)
		r.Get("/wheel", h.HandleListWheel)
		r.Get("/{id}", h.HandleGetPosition)
		r.Delete("/{id}", h.HandleDeletePosition)
		r.Post("/{id}/close", h.HandleClosePosition)
		r.Put("/{id}/wheel", h.HandleUpdateWheel)
		r.Get("/{id}/rolls", h.HandleGetRolls) // Roll alternatives priced on the live snapshot
	})
}
