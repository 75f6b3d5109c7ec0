package app

import (
	"net/http"

	"github.com/gonglijing/biodataBridge/internal/auth"
	"github.com/gonglijing/biodataBridge/internal/handlers"
	"github.com/gonglijing/biodataBridge/internal/stream"
	"github.com/gorilla/mux"
)

// registerDevicePlantRoutes 写操作需要登录
func registerDevicePlantRoutes(r *mux.Router, h *handlers.Handler, authManager *auth.JWTManager) {
	dp := r.PathPrefix("/device-plant").Subrouter()
	dp.Handle("/associate", authManager.RequireAuth(http.HandlerFunc(h.CreateAssociation))).Methods("POST")
	dp.HandleFunc("/active/{device_id}", h.GetActiveAssociation).Methods("GET")
	dp.HandleFunc("/associations/{device_id}", h.ListAssociations).Methods("GET")
	dp.Handle("/close/{device_id}", authManager.RequireAuth(http.HandlerFunc(h.CloseAssociation))).Methods("POST")
}

func registerAPIRoutes(r *mux.Router, h *handlers.Handler, authManager *auth.JWTManager, hub *stream.Hub) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/login", h.Login).Methods("POST")
	api.HandleFunc("/logout", h.Logout).Methods("POST")
	api.Handle("/session", authManager.RequireAuth(http.HandlerFunc(h.Session))).Methods("GET")

	api.HandleFunc("/plants/map", h.GetPlantsMap).Methods("GET")
	api.HandleFunc("/node", h.GetNode).Methods("GET")
	api.HandleFunc("/bridge/stats", h.GetBridgeStats).Methods("GET")
	api.Handle("/stream", hub).Methods("GET")
}
