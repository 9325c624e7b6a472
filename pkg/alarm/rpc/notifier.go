package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/polling-agent/pkg/logger"
)

// HTTPNotifier 把协议消息 POST 给每个对端，单个对端失败不影响其他对端
type HTTPNotifier struct {
	client *resty.Client
	peers  []string
}

// NewHTTPNotifier peers 为对端评估进程的基础地址，如 http://10.0.0.2:8080
func NewHTTPNotifier(peers []string, timeout time.Duration) *HTTPNotifier {
	normalized := make([]string, 0, len(peers))
	for _, p := range peers {
		normalized = append(normalized, strings.TrimRight(p, "/"))
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPNotifier{client: client, peers: normalized}
}

func (n *HTTPNotifier) Presence(ctx context.Context, uuid string, priority float64) error {
	return n.broadcast(ctx, "presence", PresenceMessage{UUID: uuid, Priority: priority})
}

func (n *HTTPNotifier) Assign(ctx context.Context, uuid string, alarms []string) error {
	return n.broadcast(ctx, "assign", AssignmentMessage{UUID: uuid, Alarms: alarms})
}

func (n *HTTPNotifier) Allocate(ctx context.Context, uuid string, alarms []string) error {
	return n.broadcast(ctx, "allocate", AssignmentMessage{UUID: uuid, Alarms: alarms})
}

func (n *HTTPNotifier) broadcast(ctx context.Context, op string, body any) error {
	var errs []error
	for _, peer := range n.peers {
		resp, err := n.client.R().
			SetContext(ctx).
			SetBody(body).
			Post(peer + "/v1/alarm/partition/" + op)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s to %s: %w", op, peer, err))
			continue
		}
		if resp.IsError() {
			errs = append(errs, fmt.Errorf("%s to %s: status %d", op, peer, resp.StatusCode()))
			continue
		}
		logger.Debug("partition message sent", zap.String("op", op), zap.String("peer", peer))
	}
	return errors.Join(errs...)
}
