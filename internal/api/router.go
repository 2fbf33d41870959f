package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/halofn/halo/internal/telemetry"
)

// NewRouter 创建 HTTP 路由。
// 中间件顺序：链路追踪在最外层，以便后续中间件和处理器都能取到 span 上下文。
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(telemetry.HTTPMiddleware("halo-engine"))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	// 健康检查端点，供负载均衡器和 Kubernetes 探针使用
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Get("/health/live", h.Live)

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/functions", func(r chi.Router) {
			r.Post("/", h.CreateFunction)
			r.Get("/", h.ListFunctions)
			r.Get("/by-name/{name}", h.GetFunctionByName)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetFunction)
				r.Put("/", h.UpdateFunction)
				r.Delete("/", h.DeleteFunction)
				r.Post("/invoke", h.InvokeFunction)
				r.Get("/logs", h.ListFunctionLogs)
			})
		})

		// 按名称调用，同名时解析到最先创建的函数
		r.Post("/invoke/{name}", h.InvokeFunction)

		r.Route("/logs", func(r chi.Router) {
			r.Get("/recent", h.ListRecentLogs)
			r.Get("/stream", h.StreamLogs)
		})

		r.Post("/compile", h.CompileCode)
		r.Get("/stats", h.Stats)
	})

	return r
}

// corsMiddleware 处理跨域请求，放行所有来源并应答预检请求。
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
