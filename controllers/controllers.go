package controllers

import (
	"encoding/json"
	"net/http"

	"feidelogin/authenticator"
	"feidelogin/services"
	"feidelogin/sessions"
)

// writeJSON renders the value as pretty-printed JSON with the given status
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "Failed to encode response: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
	w.Write([]byte("\n"))
}

// Controllers holds all controller instances
type Controllers struct {
	Auth *AuthController
}

// NewControllers creates and initializes all controller instances
func NewControllers(provider authenticator.Provider, store sessions.Store, services *services.Services) *Controllers {
	return &Controllers{
		Auth: NewAuthController(provider, store, services),
	}
}
