package rpc

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
)

// Routes 在 r 上注册分区协议接收端。消息是单向通知，成功返回 202
func Routes(r chi.Router, recv Receiver) {
	r.Post("/v1/alarm/partition/presence", func(w http.ResponseWriter, req *http.Request) {
		var msg PresenceMessage
		if !decode(w, req, &msg) {
			return
		}
		recv.Presence(msg.UUID, msg.Priority)
		w.WriteHeader(http.StatusAccepted)
	})
	r.Post("/v1/alarm/partition/assign", func(w http.ResponseWriter, req *http.Request) {
		var msg AssignmentMessage
		if !decode(w, req, &msg) {
			return
		}
		recv.Assign(msg.UUID, msg.Alarms)
		w.WriteHeader(http.StatusAccepted)
	})
	r.Post("/v1/alarm/partition/allocate", func(w http.ResponseWriter, req *http.Request) {
		var msg AssignmentMessage
		if !decode(w, req, &msg) {
			return
		}
		recv.Allocate(msg.UUID, msg.Alarms)
		w.WriteHeader(http.StatusAccepted)
	})
}

func NewHandler(recv Receiver) http.Handler {
	r := chi.NewRouter()
	Routes(r, recv)
	return r
}

type message interface {
	uuid() string
}

func (m *PresenceMessage) uuid() string   { return m.UUID }
func (m *AssignmentMessage) uuid() string { return m.UUID }

func decode(w http.ResponseWriter, req *http.Request, msg message) bool {
	if err := json.NewDecoder(req.Body).Decode(msg); err != nil {
		logger.Warn("bad partition message", zap.String("path", req.URL.Path), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	if msg.uuid() == "" {
		http.Error(w, ErrNoUUID.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
