package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/PJI-Apps/Intake-Reports/internal/api/v3"
	"github.com/PJI-Apps/Intake-Reports/internal/calculator"
	"github.com/PJI-Apps/Intake-Reports/internal/config"
	"github.com/PJI-Apps/Intake-Reports/internal/importer"
	"github.com/PJI-Apps/Intake-Reports/internal/logging"
	"github.com/PJI-Apps/Intake-Reports/internal/reconcile"
	"github.com/PJI-Apps/Intake-Reports/internal/session"
	"github.com/PJI-Apps/Intake-Reports/internal/store"
)

// Services 服务端与命令行共用的组件
type Services struct {
	Store       *store.Store
	Adapter     *store.Adapter
	Reconciler  *reconcile.Reconciler
	Calculator  *calculator.Calculator
	Coordinator *importer.Coordinator
}

// NewServices 打开 SQLite 并组装适配器、合并器、计算器与上传协调器
func NewServices(cfg *config.AppConfig, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := config.EnsureDataDir(cfg); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	s, err := store.New(config.DBPath(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	opts := cfg.Store.StoreOptions()
	opts.Logger = logger
	adapter := store.NewAdapter(s, opts)
	rec := reconcile.New(adapter, logger)

	return &Services{
		Store:       s,
		Adapter:     adapter,
		Reconciler:  rec,
		Calculator:  calculator.NewCalculator(adapter, nil, logger),
		Coordinator: importer.NewCoordinator(rec, importer.WithUploadLogger(s), importer.WithLogger(logger)),
	}, nil
}

// Close 关闭数据库
func (s *Services) Close() error {
	return s.Store.Close()
}

// Server HTTP服务器
type Server struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	services *Services
	sessions *session.Manager
	logger   *zap.Logger
	http     *http.Server
}

// NewServer 创建服务器
func NewServer(cfg *config.AppConfig, services *Services, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Server.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		router:   gin.New(),
		services: services,
		sessions: session.NewManager(nil, nil),
		logger:   logger.Named("server"),
	}
	s.setupRoutes()
	return s
}

// Router gin 引擎（用于测试）
func (s *Server) Router() *gin.Engine {
	return s.router
}

// corsMiddleware 通过 rs/cors 处理跨域头；预检请求直接 204
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", v3.SessionHeader},
		ExposedHeaders: []string{v3.SessionHeader, "X-Batch-ID"},
		MaxAge:         600,
	})
	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions && ctx.GetHeader("Access-Control-Request-Method") != "" {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	s.router.Use(logging.Middleware(s.logger), logging.Recovery(s.logger), corsMiddleware(s.cfg.Server.CORSOrigins))

	s.router.GET("/healthz", func(c *gin.Context) {
		if err := s.services.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := v3.NewHandler(v3.Deps{
		Store:       s.services.Store,
		Adapter:     s.services.Adapter,
		Reconciler:  s.services.Reconciler,
		Calculator:  s.services.Calculator,
		Coordinator: s.services.Coordinator,
		Sessions:    s.sessions,
		Logger:      s.logger,
	})
	api := s.router.Group("/api")
	{
		h.RegisterRoutes(api)
	}
}

// expireSessions 定期清理空闲会话
func (s *Server) expireSessions(ctx context.Context) {
	idle := s.cfg.Server.SessionIdle.Duration
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.Expire(idle); n > 0 {
				s.logger.Info("sessions expired", zap.Int("count", n))
			}
		}
	}
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	janitorCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.expireSessions(janitorCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return <-errCh
}
