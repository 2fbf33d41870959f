// Package api 提供云函数引擎的 HTTP API 处理程序。
// 该包实现了 RESTful 接口，用于管理函数的创建、查询、更新、删除和调用，
// 以及调用审计日志的查询与实时流式推送。
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/halofn/halo/internal/auth"
	"github.com/halofn/halo/internal/compiler"
	"github.com/halofn/halo/internal/domain"
	"github.com/halofn/halo/internal/events"
	"github.com/halofn/halo/internal/faas"
	"github.com/halofn/halo/internal/metrics"
	"github.com/halofn/halo/internal/trigger"
)

// Pinger 定义就绪检查所需的最小存储能力。
type Pinger interface {
	Ping() error
}

// Handler 是 API 请求处理器。
// 它封装了函数仓库、审计日志仓库、调用编排器与定时触发器等依赖，
// 负责处理所有 HTTP 请求。
type Handler struct {
	repo    domain.FunctionRepository
	logs    domain.FunctionLogRepository
	pinger  Pinger
	svc     *faas.Service
	cron    *trigger.CronManager
	bus     events.Bus
	jwt     *auth.JWTManager
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewHandler 创建处理器实例。cron 可以为 nil（无定时触发的部署形态）。
func NewHandler(repo domain.FunctionRepository, logs domain.FunctionLogRepository, pinger Pinger,
	svc *faas.Service, cron *trigger.CronManager, bus events.Bus, jwt *auth.JWTManager,
	m *metrics.Metrics, logger *logrus.Logger) *Handler {
	return &Handler{
		repo:    repo,
		logs:    logs,
		pinger:  pinger,
		svc:     svc,
		cron:    cron,
		bus:     bus,
		jwt:     jwt,
		metrics: m,
		logger:  logger,
	}
}

// CreateFunction 处理创建函数的请求。
// HTTP 端点: POST /api/v1/functions
// 源码在写入时编译，编译产物随定义一起持久化；语法错误导致 400。
// 名称不要求唯一：同名函数按创建顺序解析（首个匹配）。
func (h *Handler) CreateFunction(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	compiled, err := compiler.Compile(req.Source)
	h.metrics.RecordCompilation(err == nil)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	fn := &domain.Function{
		ID:             uuid.New().String(),
		Name:           req.Name,
		Description:    req.Description,
		Tags:           req.Tags,
		Source:         req.Source,
		CompiledCode:   compiled,
		Status:         domain.FunctionStatusActive,
		CronExpression: req.CronExpression,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.repo.Create(fn); err != nil {
		h.logger.WithError(err).Error("Failed to create function")
		writeError(w, r, http.StatusInternalServerError, "failed to create function")
		return
	}

	if h.cron != nil {
		h.cron.AddOrUpdateFunction(fn)
	}
	if err := h.bus.PublishFunctionCreated(r.Context(), fn); err != nil {
		h.logger.WithError(err).Warn("Failed to publish function.created event")
	}
	h.refreshFunctionsTotal()

	h.logger.WithFields(logrus.Fields{
		"function_id":   fn.ID,
		"function_name": fn.Name,
	}).Info("Function created")

	writeJSON(w, http.StatusCreated, fn)
}

// ListFunctions 获取函数列表。
// HTTP 端点: GET /api/v1/functions?offset=0&limit=20
func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)

	fns, total, err := h.repo.List(offset, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list functions")
		writeError(w, r, http.StatusInternalServerError, "failed to list functions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"functions": fns,
		"total":     total,
		"offset":    offset,
		"limit":     limit,
	})
}

// GetFunction 获取函数详情。
// HTTP 端点: GET /api/v1/functions/{id}
func (h *Handler) GetFunction(w http.ResponseWriter, r *http.Request) {
	fn, err := h.repo.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fn)
}

// GetFunctionByName 按名称解析函数（同名时返回最先创建的）。
// HTTP 端点: GET /api/v1/functions/by-name/{name}
func (h *Handler) GetFunctionByName(w http.ResponseWriter, r *http.Request) {
	fn, err := h.repo.GetByName(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fn)
}

// UpdateFunction 更新函数。
// HTTP 端点: PUT /api/v1/functions/{id}
// 源码变更会触发重新编译，版本号递增。
func (h *Handler) UpdateFunction(w http.ResponseWriter, r *http.Request) {
	fn, err := h.repo.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	var req domain.UpdateFunctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Description != nil {
		fn.Description = *req.Description
	}
	if req.Tags != nil {
		fn.Tags = *req.Tags
	}
	if req.Status != nil {
		fn.Status = *req.Status
	}
	if req.CronExpression != nil {
		if err := domain.ValidateCronExpression(*req.CronExpression); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		fn.CronExpression = *req.CronExpression
	}
	if req.Source != nil {
		if *req.Source == "" {
			writeError(w, r, http.StatusBadRequest, domain.ErrInvalidSource.Error())
			return
		}
		if err := domain.ValidateSourceSize(*req.Source); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		compiled, err := compiler.Compile(*req.Source)
		h.metrics.RecordCompilation(err == nil)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		fn.Source = *req.Source
		fn.CompiledCode = compiled
	}

	fn.Version++
	fn.UpdatedAt = time.Now()

	if err := h.repo.Update(fn); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if h.cron != nil {
		h.cron.AddOrUpdateFunction(fn)
	}
	if err := h.bus.PublishFunctionUpdated(r.Context(), fn); err != nil {
		h.logger.WithError(err).Warn("Failed to publish function.updated event")
	}

	writeJSON(w, http.StatusOK, fn)
}

// DeleteFunction 删除函数。
// HTTP 端点: DELETE /api/v1/functions/{id}
func (h *Handler) DeleteFunction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fn, err := h.repo.GetByID(id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	if err := h.repo.Delete(id); err != nil {
		writeDomainError(w, r, err)
		return
	}

	if h.cron != nil {
		h.cron.RemoveFunction(id)
	}
	if err := h.bus.PublishFunctionDeleted(r.Context(), fn); err != nil {
		h.logger.WithError(err).Warn("Failed to publish function.deleted event")
	}
	h.refreshFunctionsTotal()

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// InvokeFunction 同步调用函数。
// HTTP 端点: POST /api/v1/functions/{id}/invoke 和 POST /api/v1/invoke/{name}
// URL 查询参数进入 ctx.query，JSON 请求体进入 ctx.body，
// Bearer 令牌（若有效）解析为 ctx.auth。
func (h *Handler) InvokeFunction(w http.ResponseWriter, r *http.Request) {
	var fn *domain.Function
	var err error
	if id := chi.URLParam(r, "id"); id != "" {
		fn, err = h.repo.GetByID(id)
	} else {
		fn, err = h.repo.GetByName(chi.URLParam(r, "name"))
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	fnCtx := h.buildContext(r)
	res, err := h.svc.Invoke(r.Context(), fn, fnCtx)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"request_id": fnCtx.RequestID,
		"value":      res.Value,
		"logs":       res.Logs,
		"time_usage": res.TimeUsage,
	})
}

// buildContext 从 HTTP 请求构造调用上下文（顶层调用，深度为 0）。
func (h *Handler) buildContext(r *http.Request) domain.FunctionContext {
	query := map[string]string{}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}

	var body map[string]interface{}
	if r.Body != nil {
		// 请求体不是 JSON 对象时按空处理
		json.NewDecoder(r.Body).Decode(&body)
	}

	var authClaims map[string]interface{}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if claims, err := h.jwt.Parse(strings.TrimPrefix(header, "Bearer ")); err == nil {
			authClaims = claims
		}
	}

	fnCtx := domain.FunctionContext{
		Query:     query,
		Body:      body,
		Auth:      authClaims,
		RequestID: middleware.GetReqID(r.Context()),
		Method:    "call",
	}
	fnCtx.Normalize()
	return fnCtx
}

// ListFunctionLogs 获取函数的审计日志。
// HTTP 端点: GET /api/v1/functions/{id}/logs?offset=0&limit=20
func (h *Handler) ListFunctionLogs(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)

	entries, total, err := h.logs.ListByFunction(chi.URLParam(r, "id"), offset, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list function logs")
		writeError(w, r, http.StatusInternalServerError, "failed to list logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   entries,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// ListRecentLogs 获取最近的审计日志。
// HTTP 端点: GET /api/v1/logs/recent?limit=50
func (h *Handler) ListRecentLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	entries, err := h.logs.ListRecent(limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list recent logs")
		writeError(w, r, http.StatusInternalServerError, "failed to list logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}

// CompileCode 编译一段源码但不持久化，用于控制台的语法预检。
// HTTP 端点: POST /api/v1/compile
func (h *Handler) CompileCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	compiled, err := compiler.Compile(req.Source)
	h.metrics.RecordCompilation(err == nil)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"compiled_code": compiled})
}

// Health 基本健康检查。
// HTTP 端点: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready 就绪探针：存储可达才算就绪。
// HTTP 端点: GET /health/ready
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Live 存活探针。
// HTTP 端点: GET /health/live
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Stats 系统统计信息。
// HTTP 端点: GET /api/v1/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	_, total, err := h.repo.List(0, 1)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"functions_total": total,
	})
}

// refreshFunctionsTotal 更新函数总数指标，失败时忽略。
func (h *Handler) refreshFunctionsTotal() {
	if _, total, err := h.repo.List(0, 1); err == nil {
		h.metrics.UpdateFunctionsTotal(total)
	}
}

// queryInt 读取整数查询参数，缺失或非法时返回默认值。
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// ErrorResponse 是统一的错误响应结构体。
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// writeJSON 将数据以 JSON 格式写入响应。
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以统一 JSON 格式写入响应，携带请求 ID 便于关联日志。
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// writeDomainError 把领域错误映射为 HTTP 状态码。
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrFunctionNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrExecutionTimeout):
		writeError(w, r, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, domain.ErrExecutionFailed):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrRecursionLimit):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCompileFailed):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}
