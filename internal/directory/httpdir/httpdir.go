package httpdir

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"lookup_engine/internal/config"
	"lookup_engine/internal/logbus"
	"lookup_engine/internal/model"
	"lookup_engine/internal/utils"
)

// Client 通过 HTTP 访问目录服务的查号接口。协议层的封禁/限流都映射成
// LookupOutcome；只有连接层错误才作为 error 返回。
type Client struct {
	cfg config.DirectoryConfig
	bus *logbus.Bus
}

func New(cfg config.DirectoryConfig, bus *logbus.Bus) *Client {
	return &Client{cfg: cfg, bus: bus}
}

func (c *Client) Name() string { return "http" }

type lookupReq struct {
	Identifier string `json:"identifier"`
}

type lookupResp struct {
	Registered bool `json:"registered"`
	Profile    struct {
		DisplayName string `json:"displayName"`
		About       string `json:"about"`
		HasAvatar   bool   `json:"hasAvatar"`
		LastSeenMs  int64  `json:"lastSeenMs"`
	} `json:"profile"`
	RetryAfterMs int64  `json:"retryAfterMs"`
	Error        string `json:"error"`
}

func (c *Client) Lookup(ctx context.Context, account model.Account, identifier string) (model.LookupOutcome, error) {
	client := c.newClient(account)

	var body lookupResp
	resp, err := client.R().
		SetContext(ctx).
		SetBody(lookupReq{Identifier: identifier}).
		SetResult(&body).
		SetError(&body).
		Post("/v1/lookup")
	if err != nil {
		return model.LookupOutcome{}, err
	}

	switch {
	case resp.StatusCode() == http.StatusOK:
		if body.Registered {
			return model.Found(model.Profile{
				DisplayName: body.Profile.DisplayName,
				About:       body.Profile.About,
				HasAvatar:   body.Profile.HasAvatar,
				LastSeenMs:  body.Profile.LastSeenMs,
			}), nil
		}
		return model.NotFound(), nil

	case resp.StatusCode() == http.StatusTooManyRequests:
		return model.RateLimited(retryAfterOf(resp, body)), nil

	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return model.Banned(), nil

	default:
		return model.Transient(fmt.Errorf("upstream status %d", resp.StatusCode())), nil
	}
}

// retryAfterOf 优先取 Retry-After 响应头，其次取响应体里的毫秒数。
func retryAfterOf(resp *resty.Response, body lookupResp) time.Duration {
	if h := strings.TrimSpace(resp.Header().Get("Retry-After")); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if body.RetryAfterMs > 0 {
		return time.Duration(body.RetryAfterMs) * time.Millisecond
	}
	return 0
}

func (c *Client) newClient(account model.Account) *resty.Client {
	client := resty.New().
		SetBaseURL(c.cfg.BaseURL).
		SetTimeout(c.cfg.Timeout()).
		SetRetryCount(c.cfg.Retry.Count).
		SetRetryWaitTime(c.cfg.Retry.Wait()).
		SetRetryMaxWaitTime(c.cfg.Retry.MaxWait()).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			if r == nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	proxy := strings.TrimSpace(account.Proxy)
	if proxy == "" {
		proxy = strings.TrimSpace(c.cfg.Proxy)
	}
	if proxy != "" {
		client.SetProxy(proxy)
	}

	ua := strings.TrimSpace(account.UserAgent)
	if ua == "" {
		ua = strings.TrimSpace(c.cfg.UserAgent)
	}
	client.SetHeader("User-Agent", utils.NormalizeMobileUserAgent(ua))
	if account.Token != "" {
		client.SetHeader("Authorization", "Bearer "+account.Token)
	}

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if c.bus != nil {
			c.bus.Log("debug", "http request", map[string]any{
				"method": req.Method,
				"url":    req.URL,
			})
		}
		return nil
	})

	return client
}
