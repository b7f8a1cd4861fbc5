package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"submerge/internal/auth"
	"submerge/internal/handler"
	"submerge/internal/logger"
	"submerge/internal/store"
	"submerge/internal/template"
)

func main() {
	// 初始化logger
	logger.Init()
	logger.Info("订阅聚合服务启动中")

	addr := getAddr()
	dataDir := getDataDir()
	if os.Getenv("SM_DEBUG_LOG") == "1" {
		if err := logger.EnableDebug(filepath.Join(dataDir, "logs", "debug.log")); err != nil {
			logger.Warn("debug日志启用失败", "error", err)
		}
	}

	st, err := store.Open(filepath.Join(dataDir, "submerge.db"))
	if err != nil {
		logger.Error("数据库初始化失败", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()
	subToken, err := st.EnsureDefaults(ctx, template.Default)
	if err != nil {
		logger.Error("默认配置初始化失败", "error", err)
		os.Exit(1)
	}
	logger.Info("订阅地址已就绪", "path", "/sub?token="+subToken)

	authManager, err := auth.NewManager(st)
	if err != nil {
		logger.Error("认证管理器加载失败", "error", err)
		os.Exit(1)
	}
	created, err := authManager.EnsureAdmin(ctx)
	if err != nil {
		logger.Error("管理员账号初始化失败", "error", err)
		os.Exit(1)
	}
	if created {
		logger.Info("已创建默认管理员账号 admin/admin，请尽快修改密码")
	}

	tokenStore := auth.NewTokenStore(24 * time.Hour)
	refresher := handler.NewRefresher(st)

	mux := http.NewServeMux()
	mux.Handle("/api/login", handler.NewLoginHandler(authManager, tokenStore))
	mux.Handle("/api/logout", auth.RequireAdmin(tokenStore, handler.NewLogoutHandler(tokenStore)))
	mux.Handle("/api/admin/credentials", auth.RequireAdmin(tokenStore, handler.NewCredentialsHandler(authManager, tokenStore)))

	mux.Handle("/api/subscriptions", auth.RequireAdmin(tokenStore, handler.NewSubscriptionsHandler(st)))
	mux.Handle("/api/subscriptions/refresh", auth.RequireAdmin(tokenStore, handler.NewRefreshAllHandler(refresher)))
	// 浏览器的websocket无法携带认证头，token放在query里校验
	mux.Handle("/api/subscriptions/refresh/ws", handler.NewRefreshProgressHandler(tokenStore, st, refresher))
	mux.Handle("/api/subscriptions/", auth.RequireAdmin(tokenStore, handler.NewSubscriptionItemHandler(st, refresher)))

	mux.Handle("/api/custom-nodes", auth.RequireAdmin(tokenStore, handler.NewCustomNodesHandler(st)))
	mux.Handle("/api/custom-nodes/", auth.RequireAdmin(tokenStore, handler.NewCustomNodeItemHandler(st)))

	mux.Handle("/api/users", auth.RequireAdmin(tokenStore, handler.NewUsersHandler(st)))
	mux.Handle("/api/users/", auth.RequireAdmin(tokenStore, handler.NewUserItemHandler(st)))

	mux.Handle("/api/source-order", auth.RequireAdmin(tokenStore, handler.NewSourceOrderHandler(st)))

	mux.Handle("/api/template", auth.RequireAdmin(tokenStore, handler.NewTemplateHandler(st)))
	mux.Handle("/api/template/default", auth.RequireAdmin(tokenStore, handler.NewTemplateDefaultHandler()))
	mux.Handle("/api/template/parse", auth.RequireAdmin(tokenStore, handler.NewTemplateParseHandler(st)))
	mux.Handle("/api/template/preview", auth.RequireAdmin(tokenStore, handler.NewTemplatePreviewHandler(st)))

	mux.Handle("/api/settings", auth.RequireAdmin(tokenStore, handler.NewSettingsHandler(st)))
	mux.Handle("/api/settings/sub-token", auth.RequireAdmin(tokenStore, handler.NewSubTokenResetHandler(st)))

	// 订阅分发入口，token在query里校验
	mux.Handle("/sub", handler.NewSubHandler(st))

	srv := &http.Server{
		Addr:              addr,
		Handler:           withCORS(mux, getAllowedOrigins()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("HTTP服务器启动", "address", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP服务器运行失败", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(srv)
}

func getAddr() string {
	if addr := os.Getenv("SM_ADDR"); addr != "" {
		return addr
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	return ":" + port
}

func getDataDir() string {
	if dir := os.Getenv("SM_DATA_DIR"); dir != "" {
		return dir
	}
	return "data"
}

func waitForShutdown(srv *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("收到关闭信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("优雅关闭失败", "error", err)
	} else {
		logger.Info("服务器已安全关闭")
	}
}
