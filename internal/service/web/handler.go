package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"autogate/internal/shared/logger"
	"autogate/vpngate/model"
	"autogate/vpngate/scraper"
)

// Directory defines the VPN Gate data source used by the web handlers.
// scraper.Client is the production implementation.
type Directory interface {
	FetchServers(ctx context.Context) ([]*model.ServerRecord, error)
	FetchMirrors(ctx context.Context) ([]*model.MirrorRecord, error)
	FetchOpenVpnConfig(ctx context.Context, ip, protocol, port, hid string) (io.ReadCloser, error)
}

var _ Directory = (*scraper.Client)(nil)

// openVpnParams 是配置下载接口的必填参数，按此顺序检查。
var openVpnParams = []string{"ip", "protocol", "port", "hid"}

type Handler struct {
	directory Directory
}

func NewHandler(directory Directory) *Handler {
	return &Handler{directory: directory}
}

// HandleIndex 处理 GET / 请求
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	index, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "Could not load index.html", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(index)
}

// HandleServersPage 处理 GET /servers 请求
func (h *Handler) HandleServersPage(w http.ResponseWriter, r *http.Request) {
	servers, err := h.directory.FetchServers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := renderServersPage(&buf, servers); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// HandleMirrorsPage 处理 GET /mirrors 请求
func (h *Handler) HandleMirrorsPage(w http.ResponseWriter, r *http.Request) {
	mirrors, err := h.directory.FetchMirrors(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := renderMirrorsPage(&buf, mirrors); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

// HandleServersAPI 处理 GET /api/v1/servers 请求，返回未过滤、未排序的完整列表。
func (h *Handler) HandleServersAPI(w http.ResponseWriter, r *http.Request) {
	servers, err := h.directory.FetchServers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, servers)
}

// HandleMirrorsAPI 处理 GET /api/v1/mirrors 请求
func (h *Handler) HandleMirrorsAPI(w http.ResponseWriter, r *http.Request) {
	mirrors, err := h.directory.FetchMirrors(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, mirrors)
}

// HandleOpenVpnConfig 处理 GET /api/v1/openvpn 请求，把上游的配置文件原样转发给客户端。
// 参数只检查是否存在，格式错误由上游请求的失败体现。
func (h *Handler) HandleOpenVpnConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	values := make(map[string]string, len(openVpnParams))
	for _, name := range openVpnParams {
		v := q.Get(name)
		if v == "" {
			http.Error(w, fmt.Sprintf("Missing required parameter: %s", name), http.StatusBadRequest)
			return
		}
		values[name] = v
	}
	ip, protocol, port := values["ip"], values["protocol"], values["port"]

	body, err := h.directory.FetchOpenVpnConfig(r.Context(), ip, protocol, port, values["hid"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-openvpn-profile")
	w.Header().Set("Content-Disposition", contentDisposition(ip, protocol, port))
	if _, err := io.Copy(w, body); err != nil {
		logger.Warn().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("OpenVPN config stream interrupted.")
	}
}

// contentDisposition 生成 attachment 头，文件名格式为 vpngate_{ip}_{protocol}_{port}.ovpn。
func contentDisposition(ip, protocol, port string) string {
	filename := fmt.Sprintf("vpngate_%s_%s_%s.ovpn", ip, protocol, port)
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// fail 记录错误并返回 500；不返回结构化的错误内容。
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := "internal"
	var perr *scraper.ParseError
	switch {
	case errors.Is(err, scraper.ErrUpstreamUnavailable):
		kind = "upstream_unavailable"
	case errors.As(err, &perr):
		kind = "parse_error"
	}
	logger.Error().
		Err(err).
		Str("kind", kind).
		Str("path", r.URL.Path).
		Str("request_id", requestIDFrom(r.Context())).
		Msg("Request failed.")
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
