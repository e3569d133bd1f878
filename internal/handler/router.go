package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/vaxledger-system/internal/middleware"
)

func pathParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.CreatePurchase)

			r.Route("/{purchaseID}", func(r chi.Router) {
				r.Get("/", h.GetPurchase)
				r.Delete("/", h.DeactivatePurchase)

				r.Post("/payments", h.RecordPayment)
				r.Get("/payments", h.GetPayments)

				r.Get("/eligibility", h.CheckEligibility)

				r.Post("/vaccinations", h.AdministerDose)
				r.Get("/vaccinations", h.GetVaccinations)
			})
		})

		r.Get("/patients/{patientID}/purchases", h.GetPatientPurchases)

		r.Get("/stats", h.GetStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
