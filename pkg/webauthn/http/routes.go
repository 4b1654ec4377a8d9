// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mfa-webauthn.
//
// go-mfa-webauthn is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts WebAuthn routes on a chi router.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	r.Route("/api/v1/webauthn", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler)
//	})
func MountChi(r chi.Router, h *Handler) {
	r.Post("/registration/begin", h.BeginRegistration)
	r.Post("/registration/finish", h.FinishRegistration)
	r.Post("/authentication/begin", h.BeginAuthentication)
	r.Post("/authentication/finish", h.FinishAuthentication)
	r.Get("/credentials", h.ListCredentials)
	r.Delete("/credentials/{id}", h.RemoveCredential)
	r.Get("/status", h.Status)
}

// MuxRouter is an interface that matches *mux.Router from gorilla/mux.
// This avoids importing gorilla/mux as a direct dependency.
type MuxRouter interface {
	HandleFunc(path string, f func(http.ResponseWriter, *http.Request)) MuxRoute
}

// MuxRoute is an interface that matches *mux.Route from gorilla/mux.
type MuxRoute interface {
	Methods(methods ...string) MuxRoute
}

// MountMux mounts WebAuthn routes on a gorilla/mux router.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	webauthnhttp.MountMux(r.PathPrefix("/api/v1/webauthn").Subrouter(), handler)
func MountMux(r MuxRouter, h *Handler) {
	r.HandleFunc("/registration/begin", h.BeginRegistration).Methods("POST")
	r.HandleFunc("/registration/finish", h.FinishRegistration).Methods("POST")
	r.HandleFunc("/authentication/begin", h.BeginAuthentication).Methods("POST")
	r.HandleFunc("/authentication/finish", h.FinishAuthentication).Methods("POST")
	r.HandleFunc("/credentials", h.ListCredentials).Methods("GET")
	r.HandleFunc("/credentials/{id}", h.RemoveCredential).Methods("DELETE")
	r.HandleFunc("/status", h.Status).Methods("GET")
}

// MountStdlib mounts WebAuthn routes on a stdlib http.ServeMux.
// The prefix should not include a trailing slash.
//
// Note: For proper method routing with Go 1.22+, the mux should be configured
// to support method patterns. Otherwise, method checking is done in handlers.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	webauthnhttp.MountStdlib(mux, "/api/v1/webauthn", handler)
func MountStdlib(mux *http.ServeMux, prefix string, h *Handler) {
	mux.HandleFunc(prefix+"/registration/begin", h.BeginRegistration)
	mux.HandleFunc(prefix+"/registration/finish", h.FinishRegistration)
	mux.HandleFunc(prefix+"/authentication/begin", h.BeginAuthentication)
	mux.HandleFunc(prefix+"/authentication/finish", h.FinishAuthentication)
	mux.HandleFunc(prefix+"/credentials", h.ListCredentials)
	mux.HandleFunc(prefix+"/credentials/", h.RemoveCredential)
	mux.HandleFunc(prefix+"/status", h.Status)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Routes returns a slice of route entries for manual mounting.
// Useful for frameworks not directly supported.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	for _, route := range handler.Routes() {
//	    router.Add(route.Method, "/webauthn"+route.Path, route.Handler)
//	}
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: "POST", Path: "/registration/begin", Handler: h.BeginRegistration},
		{Method: "POST", Path: "/registration/finish", Handler: h.FinishRegistration},
		{Method: "POST", Path: "/authentication/begin", Handler: h.BeginAuthentication},
		{Method: "POST", Path: "/authentication/finish", Handler: h.FinishAuthentication},
		{Method: "GET", Path: "/credentials", Handler: h.ListCredentials},
		{Method: "DELETE", Path: "/credentials/{id}", Handler: h.RemoveCredential},
		{Method: "GET", Path: "/status", Handler: h.Status},
	}
}

// HandlerFunc returns a single http.HandlerFunc that routes based on path.
// This is useful when you want a single handler for a path prefix.
//
// Note: This requires the request path to have the prefix already stripped.
//
// Example:
//
//	handler := webauthnhttp.NewHandler(svc)
//	mux.Handle("/api/v1/webauthn/", http.StripPrefix("/api/v1/webauthn", handler.HandlerFunc()))
func (h *Handler) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/registration/begin":
			h.BeginRegistration(w, r)
		case r.URL.Path == "/registration/finish":
			h.FinishRegistration(w, r)
		case r.URL.Path == "/authentication/begin":
			h.BeginAuthentication(w, r)
		case r.URL.Path == "/authentication/finish":
			h.FinishAuthentication(w, r)
		case r.URL.Path == "/credentials":
			h.ListCredentials(w, r)
		case strings.HasPrefix(r.URL.Path, "/credentials/"):
			h.RemoveCredential(w, r)
		case r.URL.Path == "/status":
			h.Status(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}
