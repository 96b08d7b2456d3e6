package transport

import (
	"encoding/json"
	"net/http"

	"github.com/Wikwoj0512/pcc-backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Catalog HTTP 只读接口的数据来源
type Catalog interface {
	ChartOrigins() []models.OriginInfo
	MapOrigins() []models.OriginInfo
	RawData() map[string]map[string]models.LatestValue
}

// NewRouter 注册 WebSocket 与只读 HTTP 路由
func NewRouter(hub *Hub, catalog Catalog, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", hub.ServeWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connections": hub.Len()})
	})
	r.Get("/charts/origins", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, catalog.ChartOrigins())
	})
	r.Get("/maps/origins", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, catalog.MapOrigins())
	})
	r.Get("/raw/data", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, catalog.RawData())
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
