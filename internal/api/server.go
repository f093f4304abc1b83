package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Recipe-Chain/internal/auth"
	"Recipe-Chain/internal/bot"
	"Recipe-Chain/internal/engine"
	xerrors "Recipe-Chain/internal/errors"
	"Recipe-Chain/internal/model"
	"Recipe-Chain/internal/registry"
	"Recipe-Chain/pkg/logger"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Ledger 是 API 使用的只读查询集合，由 engine.Engine 实现。
type Ledger interface {
	Strategy(ctx context.Context, id uint64) (model.Strategy, error)
	Strategies(ctx context.Context, page, perPage uint64) ([]model.Strategy, error)
	Bundle(ctx context.Context, id uint64) (model.Bundle, error)
	Bundles(ctx context.Context, page, perPage uint64) ([]model.Bundle, error)
	Sub(ctx context.Context, subID uint64) (model.StoredSub, error)
	RegistryEntry(ctx context.Context, id model.ID) (model.Entry, error)
	Counts(ctx context.Context) (engine.Counts, error)
}

// Jobs 是作业提交与查询接口，由 bot.Service 实现。
type Jobs interface {
	Submit(ctx context.Context, req bot.JobRequest) (*bot.Job, error)
	Get(ctx context.Context, id string) (*bot.Job, error)
}

// HTTPObserver 记录每个请求的处理结果。
type HTTPObserver interface {
	ObserveHTTPRequest(handler, method string, status int, duration time.Duration)
}

// Server 负责暴露 REST 接口，供外部查询账本与提交 bot 作业。
type Server struct {
	addr     string
	ledger   Ledger
	jobs     Jobs
	auth     *auth.TokenAuthenticator
	observer HTTPObserver
	metrics  http.Handler
	log      *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithJobs 启用作业接口。
func WithJobs(jobs Jobs) Option {
	return func(s *Server) { s.jobs = jobs }
}

// WithAuthenticator 为作业接口启用 bearer token 校验。
func WithAuthenticator(authenticator *auth.TokenAuthenticator) Option {
	return func(s *Server) { s.auth = authenticator }
}

// WithMetrics 注册请求观测器与 /metrics 处理器。
func WithMetrics(observer HTTPObserver, handler http.Handler) Option {
	return func(s *Server) {
		s.observer = observer
		s.metrics = handler
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, ledger Ledger, opts ...Option) *Server {
	s := &Server{addr: addr, ledger: ledger, log: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/v1/strategies", s.instrument("strategies", http.HandlerFunc(s.handleStrategies)))
	mux.Handle("/api/v1/strategies/", s.instrument("strategy", http.HandlerFunc(s.handleStrategy)))
	mux.Handle("/api/v1/bundles", s.instrument("bundles", http.HandlerFunc(s.handleBundles)))
	mux.Handle("/api/v1/bundles/", s.instrument("bundle", http.HandlerFunc(s.handleBundle)))
	mux.Handle("/api/v1/subs/", s.instrument("sub", http.HandlerFunc(s.handleSub)))
	mux.Handle("/api/v1/registry/", s.instrument("registry", http.HandlerFunc(s.handleRegistry)))
	mux.Handle("/api/v1/counts", s.instrument("counts", http.HandlerFunc(s.handleCounts)))

	jobsMiddleware := func(h http.Handler) http.Handler { return h }
	if s.auth != nil {
		jobsMiddleware = s.auth.Middleware(auth.MiddlewareConfig{
			RequiredPermissions: map[string][]string{
				http.MethodPost: {auth.PermissionJobsWrite},
				http.MethodGet:  {auth.PermissionJobsRead},
			},
			AuditEvent: "bot_jobs",
		})
	}
	mux.Handle("/api/v1/jobs", s.instrument("jobs", jobsMiddleware(http.HandlerFunc(s.handleJobs))))
	mux.Handle("/api/v1/jobs/", s.instrument("job", jobsMiddleware(http.HandlerFunc(s.handleJobDetail))))

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	page, perPage, ok := pagination(w, r)
	if !ok {
		return
	}
	strategies, err := s.ledger.Strategies(r.Context(), page, perPage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, strategies)
}

func (s *Server) handleStrategy(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	id, ok := pathID(w, r, "/api/v1/strategies/")
	if !ok {
		return
	}
	strategy, err := s.ledger.Strategy(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

func (s *Server) handleBundles(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	page, perPage, ok := pagination(w, r)
	if !ok {
		return
	}
	bundles, err := s.ledger.Bundles(r.Context(), page, perPage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundles)
}

func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	id, ok := pathID(w, r, "/api/v1/bundles/")
	if !ok {
		return
	}
	bundle, err := s.ledger.Bundle(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleSub(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	id, ok := pathID(w, r, "/api/v1/subs/")
	if !ok {
		return
	}
	sub, err := s.ledger.Sub(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// RegistryView 是注册项的查询结果。
type RegistryView struct {
	ID    model.ID    `json:"id"`
	Entry model.Entry `json:"entry"`
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/registry/"), "/")
	if name == "" {
		writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "缺少注册项名称")
		return
	}
	id, err := engine.ResolveName(name)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), err.Error())
		return
	}
	entry, err := s.ledger.RegistryEntry(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RegistryView{ID: id, Entry: entry})
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	counts, err := s.ledger.Counts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		writeErrorBody(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "作业服务未启用")
		return
	}
	var req bot.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "请求体解析失败")
		return
	}
	job, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.log.Info("作业已提交",
		slog.String("job_id", job.ID),
		slog.Uint64("sub_id", job.SubID),
		slog.String("subject", auth.SubjectName(r.Context())),
	)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.jobs == nil {
		writeErrorBody(w, http.StatusServiceUnavailable, string(xerrors.CodeInitializationFailure), "作业服务未启用")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/"), "/")
	if id == "" {
		writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "缺少作业 ID")
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// instrument 记录请求耗时与状态码。
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	if s.observer == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.observer.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, prefix string) (uint64, bool) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if raw == "" {
		writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "缺少 ID")
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "ID 必须是非负整数")
		return 0, false
	}
	return id, true
}

// pagination 解析 page 与 per_page，page 从 0 开始。
func pagination(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	query := r.URL.Query()
	page, perPage := uint64(0), uint64(defaultPerPage)
	if raw := query.Get("page"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "page 必须是非负整数")
			return 0, 0, false
		}
		page = parsed
	}
	if raw := query.Get("per_page"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			writeErrorBody(w, http.StatusBadRequest, string(xerrors.CodeInvalidArgument), "per_page 必须是正整数")
			return 0, 0, false
		}
		perPage = min(parsed, maxPerPage)
	}
	return page, perPage, true
}

// errorBody 与 SDK 的 APIError 对应。
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("请求处理失败", slog.Any("error", err))
	}
	writeErrorBody(w, status, string(xerrors.CodeOf(err)), err.Error())
}

// statusFor 把错误码与分类映射为 HTTP 状态码。
func statusFor(err error) int {
	code := xerrors.CodeOf(err)
	switch {
	case code == xerrors.CodeUnknown:
		return http.StatusInternalServerError
	case strings.HasSuffix(string(code), "NOT_FOUND"), code == registry.CodeEntryNonExistent:
		return http.StatusNotFound
	case code == bot.CodeJobValidation || code == xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	}
	switch xerrors.CategoryOf(err) {
	case xerrors.CategoryAuthorization:
		return http.StatusForbidden
	case xerrors.CategoryIntegrity, xerrors.CategoryStructural:
		return http.StatusBadRequest
	case xerrors.CategoryPrecondition:
		return http.StatusConflict
	case xerrors.CategoryInfrastructure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
