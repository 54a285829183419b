package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/moznion/go-optional"
	"github.com/rs/cors"

	"Parry-QV/internal/action"
	"Parry-QV/internal/auth"
	"Parry-QV/internal/chain"
	"Parry-QV/internal/observability/metrics"
	"Parry-QV/internal/pinning"
	"Parry-QV/pkg/logger"
)

// ViewReader 是 API 依赖的只读链上视图，*views.Views 满足该接口。
type ViewReader interface {
	Projects(ctx context.Context) ([]chain.ProjectSummary, error)
	Project(ctx context.Context, address string) (optional.Option[chain.ProjectSummary], error)
	Polls(ctx context.Context, project common.Address) ([]chain.Poll, error)
	Poll(ctx context.Context, project common.Address, index uint64) (chain.Poll, error)
	Membership(ctx context.Context, project, wallet common.Address) (chain.Membership, error)
	VoteRecord(ctx context.Context, project common.Address, index uint64, wallet common.Address) (chain.VoteRecord, error)
	PassportScore(ctx context.Context, wallet common.Address) (chain.PassportScore, error)
}

// ActionService 是动作提交与查询接口，*action.Service 满足该接口。
type ActionService interface {
	Submit(ctx context.Context, req action.Request) (*action.Action, error)
	Get(ctx context.Context, id string) (*action.Action, error)
	List(ctx context.Context, opts ...action.ListOption) ([]*action.Action, error)
	Stats(ctx context.Context, opts ...action.ListOption) (action.Stats, error)
}

// MediaPinner 上传媒体文件，*pinning.Client 满足该接口。
type MediaPinner interface {
	PinFile(ctx context.Context, filename, contentType string, body io.Reader) (pinning.Result, error)
}

// Session 暴露钱包会话，*chain.Resolver 满足该接口。
type Session interface {
	ActiveAddress(ctx context.Context) (common.Address, error)
	Connect(ctx context.Context) (common.Address, error)
	SelectAccount(ctx context.Context, account common.Address) error
	Disconnect(ctx context.Context) error
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr            string
	views           ViewReader
	actions         ActionService
	pinner          MediaPinner
	session         Session
	auth            *auth.Service
	metrics         *metrics.Metrics
	explorerURL     string
	corsOrigins     []string
	shutdownTimeout time.Duration
	log             *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithViews 配置链上视图。
func WithViews(v ViewReader) Option {
	return func(s *Server) { s.views = v }
}

// WithActions 配置动作服务。
func WithActions(svc ActionService) Option {
	return func(s *Server) { s.actions = svc }
}

// WithPinner 配置媒体上传客户端。
func WithPinner(p MediaPinner) Option {
	return func(s *Server) { s.pinner = p }
}

// WithSession 配置钱包会话。
func WithSession(session Session) Option {
	return func(s *Server) { s.session = session }
}

// WithAuth 为变更类接口启用 API Key 校验。
func WithAuth(svc *auth.Service) Option {
	return func(s *Server) { s.auth = svc }
}

// WithMetrics 配置指标采集与 /metrics 输出。
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithExplorer 配置区块浏览器的交易地址前缀，链接为 {transactionURL}/{hash}。
func WithExplorer(transactionURL string) Option {
	return func(s *Server) { s.explorerURL = transactionURL }
}

// WithCORSOrigins 配置允许跨域访问的来源，留空表示允许全部。
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{addr: addr, shutdownTimeout: 5 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = logger.Named("api")
	return s
}

// Handler 返回挂载了全部路由与中间件的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /api/v1/projects", s.handleProjects)
	mux.HandleFunc("GET /api/v1/projects/{address}", s.handleProject)
	mux.HandleFunc("GET /api/v1/projects/{address}/polls", s.handlePolls)
	mux.HandleFunc("GET /api/v1/projects/{address}/polls/{index}", s.handlePoll)
	mux.HandleFunc("GET /api/v1/projects/{address}/polls/{index}/votes/{wallet}", s.handleVoteRecord)
	mux.HandleFunc("GET /api/v1/projects/{address}/members/{wallet}", s.handleMembership)
	mux.HandleFunc("GET /api/v1/passport/{wallet}", s.handlePassport)
	mux.HandleFunc("GET /api/v1/quote", s.handleQuote)

	mux.HandleFunc("GET /api/v1/session", s.handleSession)
	mux.Handle("POST /api/v1/session/connect", s.guard(auth.PermissionSession, s.handleConnect))
	mux.Handle("POST /api/v1/session/select", s.guard(auth.PermissionSession, s.handleSelectAccount))
	mux.Handle("POST /api/v1/session/disconnect", s.guard(auth.PermissionSession, s.handleDisconnect))

	mux.Handle("POST /api/v1/actions", s.guard(auth.PermissionSubmit, s.handleSubmitAction))
	mux.HandleFunc("GET /api/v1/actions", s.handleListActions)
	mux.HandleFunc("GET /api/v1/actions/stats", s.handleActionStats)
	mux.HandleFunc("GET /api/v1/actions/{id}", s.handleActionDetail)

	mux.Handle("POST /api/v1/media", s.guard(auth.PermissionMedia, s.handleUploadMedia))
	mux.HandleFunc("GET /api/v1/explorer/{hash}", s.handleExplorer)

	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	withCORS := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		MaxAge:         600,
	}).Handler(mux)
	return s.instrument(withCORS)
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
		s.log.Info("API 服务启动", slog.String("addr", s.addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// guard 为变更类路由挂载权限校验，未配置认证时直接放行。
func (s *Server) guard(permission string, fn http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return fn
	}
	return s.auth.Require(permission)(fn)
}

// instrument 记录每个路由的请求数与耗时。
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.ObserveHTTPRequest(pattern, r.Method, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
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
