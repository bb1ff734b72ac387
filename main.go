// 命令行入口：
// - 解析 flags 与 settings.yaml（叠加环境变量）
// - 初始化日志、HTTP 客户端、令牌存储
// - 组装聚合/搜索/图片代理/订阅服务并启动 HTTP 服务，收到信号后优雅退出
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-pin-slideshow/internal/aggregate"
	"go-pin-slideshow/internal/auth"
	"go-pin-slideshow/internal/config"
	"go-pin-slideshow/internal/feeds"
	"go-pin-slideshow/internal/fetch"
	"go-pin-slideshow/internal/logx"
	"go-pin-slideshow/internal/pinterest"
	"go-pin-slideshow/internal/proxy"
	"go-pin-slideshow/internal/search"
	"go-pin-slideshow/internal/server"
	"go-pin-slideshow/internal/store"
)

func main() {
	configPath := flag.String("config", "settings.yaml", "path to settings.yaml (missing file = defaults)")
	flag.Parse()

	// 1) 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// 2) 初始化日志：级别/格式/语言/颜色
	logx.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor)

	// 3) 出站 HTTP 客户端（含代理，单次尝试）
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Fetch.ProxyHTTP,
		ProxyHTTPS: cfg.Fetch.ProxyHTTPS,
		Timeout:    cfg.Fetch.Timeout(),
		UserAgent:  cfg.Fetch.UserAgent,
	})
	if err != nil {
		log.Fatalf("http client: %v", err)
	}

	// 4) 令牌存储与来源：OAuth 保存的令牌优先，其次是配置的静态令牌
	st, err := store.OpenSQLite(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()
	tokens := auth.Chain{auth.NewStored(st), auth.Static(cfg.Pinterest.AccessToken)}
	oauth := auth.NewOAuth(cl, st, auth.OAuthOptions{
		ClientID:     cfg.Pinterest.ClientID,
		ClientSecret: cfg.Pinterest.ClientSecret,
		RedirectURI:  cfg.Pinterest.RedirectURI,
		Scopes:       cfg.Pinterest.Scopes,
		APIBase:      cfg.Pinterest.APIBase,
		WebBase:      cfg.Pinterest.WebBase,
	})

	// 5) 业务组件
	pc := pinterest.New(cl, pinterest.Options{APIBase: cfg.Pinterest.APIBase, WebBase: cfg.Pinterest.WebBase})
	mode, err := search.ParseMode(cfg.Search.DefaultMode, search.ModeAPI)
	if err != nil {
		log.Fatalf("search mode: %v", err)
	}
	router := server.NewRouter(server.Deps{
		Tokens: tokens,
		Pins:   aggregate.New(pc, aggregate.Options{BoardConcurrency: cfg.Aggregate.BoardConcurrency}),
		Search: search.New(pc, tokens, search.Options{
			DefaultMode: mode,
			CacheSize:   cfg.Search.CacheSize,
			CacheTTL:    cfg.Search.CacheTTL,
		}),
		Proxy: proxy.New(cl, proxy.Options{
			AllowedSuffixes: cfg.ImageProxy.AllowedSuffixes,
			MaxBytes:        cfg.ImageProxy.MaxBytes,
			Timeout:         cfg.Fetch.ImageTimeout(),
		}),
		Feeds:     feeds.New(cl, cfg.Pinterest.WebBase, cfg.Fetch.Timeout()),
		OAuth:     oauth,
		StaticDir: cfg.Server.StaticDir,
	})

	// 6) 启动服务，SIGINT/SIGTERM 时优雅退出
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logx.Infof("服务启动：地址=%s 已授权=%v OAuth=%v", cfg.Server.Addr, auth.Authenticated(ctx, tokens), oauth.Configured())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Errorf("服务异常退出：%v", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logx.Infof("收到退出信号，开始关闭服务")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logx.Errorf("关闭服务失败：%v", err)
		}
	}
}
