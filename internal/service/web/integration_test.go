package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"autogate/internal/shared/types"
	"autogate/vpngate/model"
	"autogate/vpngate/scraper"
)

const fixtureDir = "../../../vpngate/scraper/testdata/"

// newFakeVPNGate serves the recorded VPN Gate pages.
func newFakeVPNGate(t *testing.T) *httptest.Server {
	t.Helper()
	serversHTML, err := os.ReadFile(fixtureDir + "servers.html")
	if err != nil {
		t.Fatalf("Failed to read fixture: %v", err)
	}
	mirrorsHTML, err := os.ReadFile(fixtureDir + "mirrors.html")
	if err != nil {
		t.Fatalf("Failed to read fixture: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/en/", func(w http.ResponseWriter, r *http.Request) { w.Write(serversHTML) })
	mux.HandleFunc("/en/sites.aspx", func(w http.ResponseWriter, r *http.Request) { w.Write(mirrorsHTML) })
	mux.HandleFunc("/common/openvpn_download.aspx", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("remote " + r.URL.Query().Get("host") + " " + r.URL.Query().Get("port") + "\n"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndToEnd_AgainstFakeUpstream(t *testing.T) {
	upstream := newFakeVPNGate(t)
	client := scraper.NewClient(types.UpstreamConf{BaseURL: upstream.URL, UserAgent: "test", TimeoutSeconds: 5})
	router := NewRouter(NewHandler(client))
	front := httptest.NewServer(router)
	defer front.Close()

	// JSON: 未过滤，5 条记录
	resp, err := http.Get(front.URL + "/api/v1/servers")
	if err != nil {
		t.Fatalf("GET /api/v1/servers failed: %v", err)
	}
	var servers []model.ServerRecord
	if err := json.NewDecoder(resp.Body).Decode(&servers); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	resp.Body.Close()
	if len(servers) != 5 {
		t.Fatalf("Expected 5 servers, got %d", len(servers))
	}

	// HTML: Korea 被过滤，L2TP 优先，然后按分数降序
	resp, err = http.Get(front.URL + "/servers")
	if err != nil {
		t.Fatalf("GET /servers failed: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Invalid HTML: %v", err)
	}
	var order []string
	doc.Find("#table-body tr").Each(func(i int, s *goquery.Selection) {
		order = append(order, s.Find("td").First().Text())
	})
	want := []string{"Japan", "Thailand", "United States", "Germany"}
	if len(order) != len(want) {
		t.Fatalf("Expected rows %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, order[i], want[i])
		}
	}

	// 页面中的下载链接可以直接使用
	href, ok := doc.Find("#table-body tr").Eq(2).Find("a").First().Attr("href")
	if !ok {
		t.Fatal("Expected OpenVPN link for United States")
	}
	resp, err = http.Get(front.URL + href)
	if err != nil {
		t.Fatalf("GET %s failed: %v", href, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from config proxy, got %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != "attachment; filename=vpngate_123.123.123.123_udp_1194.ovpn" {
		t.Errorf("Unexpected Content-Disposition %q", cd)
	}

	// 镜像列表
	resp2, err := http.Get(front.URL + "/api/v1/mirrors")
	if err != nil {
		t.Fatalf("GET /api/v1/mirrors failed: %v", err)
	}
	defer resp2.Body.Close()
	var mirrors []model.MirrorRecord
	if err := json.NewDecoder(resp2.Body).Decode(&mirrors); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(mirrors) != 3 || mirrors[0].Country != "Japan" {
		t.Errorf("Unexpected mirrors: %+v", mirrors)
	}
}
