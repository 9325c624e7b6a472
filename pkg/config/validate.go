package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	// 	校验Addr格式(必须是 ":port" 或 "ip:port")
	if h.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 轮询配置校验
// 默认发现URL格式为 <scheme>[:<parameter>]，scheme 不能为空
func (p *PollingConfig) Validate() error {
	if err := valid.Struct(p); err != nil {
		return err
	}
	if strings.ContainsAny(p.Namespace, " \t/") {
		return fmt.Errorf("polling.namespace %q must not contain whitespace or '/'", p.Namespace)
	}
	seen := map[string]bool{}
	for _, u := range p.DefaultDiscovery {
		if strings.TrimSpace(u) == "" {
			return errors.New("polling.default_discovery cannot contain empty string")
		}
		if strings.HasPrefix(u, ":") {
			return fmt.Errorf("polling.default_discovery: %q has no scheme", u)
		}
		// 重复项检查
		if seen[u] {
			return fmt.Errorf("polling.default_discovery duplicated entry: %q", u)
		}
		seen[u] = true
	}
	return nil
}

// Validate 协调配置校验
// 心跳必须明显小于成员 TTL，否则成员会在两次心跳之间过期
func (c *CoordinationConfig) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if c.Backend == "" {
		return nil
	}
	if c.MemberTTL < 2*c.Heartbeat {
		return fmt.Errorf("coordination.member_ttl (%s) must be at least twice coordination.heartbeat (%s)", c.MemberTTL, c.Heartbeat)
	}
	if c.Backend == "http" {
		if c.URL == "" {
			return errors.New("coordination.url is required for the http backend")
		}
		u, err := url.Parse(c.URL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("coordination.url invalid, got %q", c.URL)
		}
	}
	return nil
}

// Validate 告警配置校验
func (a *AlarmConfig) Validate() error {
	if err := valid.Struct(a); err != nil {
		return err
	}
	// 	presence 以 interval/4 上报，过小的周期没有意义
	if a.EvaluationInterval < 4*time.Second {
		return fmt.Errorf("alarm.evaluation_interval must be >= 4s, got %s", a.EvaluationInterval)
	}
	if a.Mode == "partitioned" && len(a.Peers) == 0 {
		return errors.New("alarm.peers cannot be empty in partitioned mode")
	}
	return nil
}
