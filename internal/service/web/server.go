package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"autogate/internal/shared/logger"
	"autogate/internal/shared/types"
)

//go:embed all:static
var staticFiles embed.FS

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder 记录响应状态码，用于访问日志。
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}

// requestLogMiddleware 为每个请求分配 ID (X-Request-ID) 并输出访问日志。
func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		l := logger.WithComponent("WebServer")
		l.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("Request served.")
	})
}

// NewRouter 注册所有路由。所有接口都是只读的 GET。
func NewRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handler.HandleIndex)
	mux.HandleFunc("GET /servers", handler.HandleServersPage)
	mux.HandleFunc("GET /mirrors", handler.HandleMirrorsPage)

	mux.HandleFunc("GET /api/v1/servers", handler.HandleServersAPI)
	mux.HandleFunc("GET /api/v1/mirrors", handler.HandleMirrorsAPI)
	mux.HandleFunc("GET /api/v1/openvpn", handler.HandleOpenVpnConfig)

	return requestLogMiddleware(mux)
}

// StartServer 在 0.0.0.0:{port} 上启动 Web 服务，返回的 *http.Server 用于关闭。
func StartServer(wg *sync.WaitGroup, cfg *types.Config, directory Directory) (*http.Server, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.WebConf.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           NewRouter(NewHandler(directory)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info().Msgf("Web server is listening on http://%s", addr)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Web server error.")
		}
		logger.Info().Msg("Web server stopped.")
	}()
	return srv, nil
}
