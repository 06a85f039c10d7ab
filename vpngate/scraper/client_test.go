package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"autogate/internal/shared/types"
)

func newTestClient(baseURL string) *Client {
	return NewClient(types.UpstreamConf{
		BaseURL:        baseURL,
		UserAgent:      "autogate-test",
		TimeoutSeconds: 5,
	})
}

func newUpstream(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_FetchServersAndMirrors(t *testing.T) {
	serversHTML := loadFixture(t, "servers.html")
	mirrorsHTML := loadFixture(t, "mirrors.html")

	var userAgent string
	mux := http.NewServeMux()
	mux.HandleFunc("/en/", func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.UserAgent()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(serversHTML)
	})
	mux.HandleFunc("/en/sites.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(mirrorsHTML)
	})
	srv := newUpstream(t, mux)
	c := newTestClient(srv.URL)

	// 两次抓取同一页面，collector 不能因为 URL 已访问而拒绝。
	for i := 0; i < 2; i++ {
		servers, err := c.FetchServers(context.Background())
		if err != nil {
			t.Fatalf("FetchServers #%d failed: %v", i, err)
		}
		if len(servers) != 5 {
			t.Errorf("FetchServers #%d: expected 5 servers, got %d", i, len(servers))
		}
	}
	if userAgent != "autogate-test" {
		t.Errorf("Expected configured User-Agent, got %q", userAgent)
	}

	mirrors, err := c.FetchMirrors(context.Background())
	if err != nil {
		t.Fatalf("FetchMirrors failed: %v", err)
	}
	if len(mirrors) != 3 {
		t.Errorf("Expected 3 mirrors, got %d", len(mirrors))
	}
}

func TestClient_FetchServers_UpstreamFailures(t *testing.T) {
	srv := newUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	c := newTestClient(srv.URL)

	if _, err := c.FetchServers(context.Background()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable for 500, got %v", err)
	}
	if _, err := c.FetchMirrors(context.Background()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable for 500, got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()
	if _, err := newTestClient(closedURL).FetchServers(context.Background()); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable for unreachable host, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.FetchServers(ctx); !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Expected ErrUpstreamUnavailable for cancelled context, got %v", err)
	}
}

func TestClient_FetchServers_ParseFailure(t *testing.T) {
	srv := newUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>maintenance</body></html>"))
	}))

	_, err := newTestClient(srv.URL).FetchServers(context.Background())
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *ParseError, got %v", err)
	}
	if errors.Is(err, ErrUpstreamUnavailable) {
		t.Error("Parse failure must not be reported as upstream unavailable")
	}
}

func TestClient_FetchOpenVpnConfig(t *testing.T) {
	const payload = "client\ndev tun\nproto tcp\nremote 1.2.3.4 443\n"
	fixed := time.UnixMilli(1700000000123)

	srv := newUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/common/openvpn_download.aspx" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		if q.Get("sid") != strconv.FormatInt(fixed.UnixMilli(), 10) {
			t.Errorf("Unexpected sid %q", q.Get("sid"))
		}
		if q.Get("host") != "1.2.3.4" || q.Get("hid") != "7" || q.Get("port") != "443" || q.Get("tcp") != "1" {
			t.Errorf("Unexpected query: %s", r.URL.RawQuery)
		}
		if q.Has("udp") {
			t.Errorf("udp flag must not be sent for a tcp request")
		}
		w.Write([]byte(payload))
	}))

	c := newTestClient(srv.URL)
	c.now = func() time.Time { return fixed }

	body, err := c.FetchOpenVpnConfig(context.Background(), "1.2.3.4", "tcp", "443", "7")
	if err != nil {
		t.Fatalf("FetchOpenVpnConfig failed: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if string(data) != payload {
		t.Errorf("Payload mismatch: %q", data)
	}
}

func TestClient_FetchOpenVpnConfig_SidIsMilliseconds(t *testing.T) {
	var sid int64
	srv := newUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, _ = strconv.ParseInt(r.URL.Query().Get("sid"), 10, 64)
		w.Write([]byte("ok"))
	}))

	before := time.Now().UnixMilli()
	body, err := newTestClient(srv.URL).FetchOpenVpnConfig(context.Background(), "1.2.3.4", "udp", "1194", "7")
	if err != nil {
		t.Fatalf("FetchOpenVpnConfig failed: %v", err)
	}
	body.Close()
	after := time.Now().UnixMilli()

	if sid < before || sid > after {
		t.Errorf("sid %d not within [%d, %d]", sid, before, after)
	}
}

func TestClient_FetchOpenVpnConfig_Failures(t *testing.T) {
	srv := newUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("host") {
		case "redirect":
			http.Redirect(w, r, "/error.aspx", http.StatusFound)
		case "error":
			http.Error(w, "nope", http.StatusBadGateway)
		default:
			w.Write([]byte("should not be reached"))
		}
	}))
	c := newTestClient(srv.URL)

	for _, host := range []string{"redirect", "error"} {
		body, err := c.FetchOpenVpnConfig(context.Background(), host, "udp", "1194", "1")
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("%s: expected ErrUpstreamUnavailable, got %v", host, err)
		}
		if body != nil {
			t.Errorf("%s: expected nil body on failure", host)
			body.Close()
		}
	}
}
