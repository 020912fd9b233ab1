//nolint:revive // exported
package rhealth

import (
	"net/http"

	"pairbench/server/internal/api"
	"pairbench/server/internal/api/rbody"
)

type HealthHandler struct{}

func New() *HealthHandler {
	return &HealthHandler{}
}

func CreateService(srv *HealthHandler) api.Service {
	return api.Service{Path: "GET /health", Handler: http.HandlerFunc(srv.Check)}
}

func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	rbody.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
