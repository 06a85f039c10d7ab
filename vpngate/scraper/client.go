package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"autogate/internal/shared/logger"
	"autogate/internal/shared/types"
	"autogate/vpngate/model"
)

const (
	serverListPath      = "/en/"
	mirrorListPath      = "/en/sites.aspx"
	openVpnDownloadPath = "/common/openvpn_download.aspx"
)

// Client 从 VPN Gate 抓取服务器列表、镜像列表，并下载 OpenVPN 配置文件。
// 它不保存任何跨请求的状态，每次调用都会重新请求上游。
type Client struct {
	baseURL   string
	userAgent string
	collector *colly.Collector
	http      *http.Client
	now       func() time.Time
}

// NewClient 创建一个新的 Client 实例。
func NewClient(conf types.UpstreamConf) *Client {
	timeout := time.Duration(conf.TimeoutSeconds) * time.Second

	c := colly.NewCollector(
		colly.UserAgent(conf.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(conf.MaxBodyBytes),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	return &Client{
		baseURL:   conf.BaseURL,
		userAgent: conf.UserAgent,
		collector: c,
		http: &http.Client{
			Timeout: timeout,
			// 上游在参数错误时会重定向到错误页，必须视为失败而不是跟随。
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

// Name 返回抓取器的名称。
func (c *Client) Name() string {
	return "vpngate.net"
}

// FetchServers 抓取并解析服务器列表页。
func (c *Client) FetchServers(ctx context.Context) ([]*model.ServerRecord, error) {
	l := logger.WithComponent("VPNGate/Scraper")
	pageURL := c.baseURL + serverListPath
	l.Info().Str("source", c.Name()).Str("url", pageURL).Msg("Fetching server list...")

	body, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		l.Warn().Err(err).Str("url", pageURL).Msg("Failed to fetch server list.")
		return nil, err
	}

	servers, err := ParseServerList(body)
	if err != nil {
		l.Error().Err(err).Str("url", pageURL).Msg("Failed to parse server list.")
		return nil, err
	}

	l.Info().Int("count", len(servers)).Str("source", c.Name()).Msg("Server list fetched.")
	return servers, nil
}

// FetchMirrors 抓取并解析镜像站点页。
func (c *Client) FetchMirrors(ctx context.Context) ([]*model.MirrorRecord, error) {
	l := logger.WithComponent("VPNGate/Scraper")
	pageURL := c.baseURL + mirrorListPath
	l.Info().Str("source", c.Name()).Str("url", pageURL).Msg("Fetching mirror list...")

	body, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		l.Warn().Err(err).Str("url", pageURL).Msg("Failed to fetch mirror list.")
		return nil, err
	}

	mirrors, err := ParseMirrorList(body)
	if err != nil {
		l.Error().Err(err).Str("url", pageURL).Msg("Failed to parse mirror list.")
		return nil, err
	}

	l.Info().Int("count", len(mirrors)).Str("source", c.Name()).Msg("Mirror list fetched.")
	return mirrors, nil
}

// FetchOpenVpnConfig 下载指定服务器的 OpenVPN 配置文件。
// 返回的 body 未被读取，由调用方负责关闭。
func (c *Client) FetchOpenVpnConfig(ctx context.Context, ip, protocol, port, hid string) (io.ReadCloser, error) {
	l := logger.WithComponent("VPNGate/Scraper")

	params := url.Values{}
	// 毫秒级 UNIX 时间戳
	params.Set("sid", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("host", ip)
	params.Set("hid", hid)
	params.Set("port", port)
	params.Set(protocol, "1")
	downloadURL := c.baseURL + openVpnDownloadPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s: %v", ErrUpstreamUnavailable, downloadURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	l.Debug().Str("url", downloadURL).Msg("Downloading OpenVPN config...")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUpstreamUnavailable, downloadURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: GET %s: received status code %d", ErrUpstreamUnavailable, downloadURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// fetchPage 用克隆的 collector 抓取单个页面，回调不会在请求之间共享。
func (c *Client) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUpstreamUnavailable, pageURL, err)
	}

	collector := c.collector.Clone()
	collector.Context = ctx

	var body []byte
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	// colly 对网络错误和 >= 203 的状态码都会返回错误
	if err := collector.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("%w: GET %s: %v", ErrUpstreamUnavailable, pageURL, err)
	}
	return body, nil
}
