package coordination

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/polling-agent/pkg/membership"
)

// HTTPBackend 通过 membership 服务的 HTTP API 实现 Backend
type HTTPBackend struct {
	client *resty.Client
}

// NewHTTPBackend baseURL 为 membership 服务地址，如 http://10.0.0.1:8090
func NewHTTPBackend(baseURL string, timeout time.Duration) *HTTPBackend {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(1)
	return &HTTPBackend{client: client}
}

func (b *HTTPBackend) Join(ctx context.Context, group, member string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"group": group, "member": member}).
		Put("/v1/groups/{group}/members/{member}")
	return checkResponse("join", resp, err)
}

func (b *HTTPBackend) Leave(ctx context.Context, group, member string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"group": group, "member": member}).
		Delete("/v1/groups/{group}/members/{member}")
	return checkResponse("leave", resp, err)
}

func (b *HTTPBackend) Heartbeat(ctx context.Context, member string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetPathParam("member", member).
		Post("/v1/members/{member}/heartbeat")
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %s", membership.ErrUnknownMember, member)
	}
	return checkResponse("heartbeat", resp, err)
}

func (b *HTTPBackend) Members(ctx context.Context, group string) ([]string, error) {
	var body membership.MembersResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetPathParam("group", group).
		SetResult(&body).
		Get("/v1/groups/{group}/members")
	if err := checkResponse("members", resp, err); err != nil {
		return nil, err
	}
	return body.Members, nil
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("membership %s request: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("membership %s: server returned status %d: %s", op, resp.StatusCode(), resp.String())
	}
	return nil
}
