package membership

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
)

// MembersResponse GET /v1/groups/{group}/members 的响应体
type MembersResponse struct {
	Group   string   `json:"group"`
	Members []string `json:"members"`
}

// Routes 在 r 上注册成员管理 API
func Routes(r chi.Router, s *Store) {
	h := &handler{store: s}
	r.Put("/v1/groups/{group}/members/{member}", h.join)
	r.Delete("/v1/groups/{group}/members/{member}", h.leave)
	r.Get("/v1/groups/{group}/members", h.members)
	r.Post("/v1/members/{member}/heartbeat", h.heartbeat)
}

// NewHandler 独立的成员管理 HTTP handler
func NewHandler(s *Store) http.Handler {
	r := chi.NewRouter()
	Routes(r, s)
	return r
}

type handler struct {
	store *Store
}

func (h *handler) join(w http.ResponseWriter, r *http.Request) {
	group, member := pathParam(r, "group"), pathParam(r, "member")
	if err := h.store.Join(r.Context(), group, member); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) leave(w http.ResponseWriter, r *http.Request) {
	_ = h.store.Leave(r.Context(), pathParam(r, "group"), pathParam(r, "member"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) members(w http.ResponseWriter, r *http.Request) {
	group := pathParam(r, "group")
	members, err := h.store.Members(r.Context(), group)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(MembersResponse{Group: group, Members: members}); err != nil {
		logger.Warn("write members response failed", zap.String("group", group), zap.Error(err))
	}
}

func (h *handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	err := h.store.Heartbeat(r.Context(), pathParam(r, "member"))
	switch {
	case errors.Is(err, ErrUnknownMember):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
