package handler

import (
	"net/http"

	"nebs-backend/bootstrap"
)

// Handler is the Vercel serverless entry point. All requests are rewritten here.
func Handler(w http.ResponseWriter, r *http.Request) {
	bootstrap.Dispatcher().ServeHTTP(w, r)
}
