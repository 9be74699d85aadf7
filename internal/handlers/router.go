package handlers

import "net/http"

// Routes returns the API router. Method mismatches on known paths return
// 405 with the JSON envelope rather than the mux's plain-text default.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			h.HandleMethodNotAllowed(w, r)
			return
		}
		h.HandleHealth(w, r)
	})

	mux.HandleFunc("/v1/fetch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			h.HandleMethodNotAllowed(w, r)
			return
		}
		h.HandleFetch(w, r)
	})

	mux.HandleFunc("/v1/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			h.HandleMethodNotAllowed(w, r)
			return
		}
		h.HandleUpload(w, r)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		h.HandleNotFound(w, r)
	})

	return mux
}
