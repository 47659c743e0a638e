package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BerniceZTT/dialer_end/config"
	"github.com/BerniceZTT/dialer_end/repository"
	"github.com/BerniceZTT/dialer_end/service"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cli.Command {
	var inMemory bool
	return &cli.Command{
		Name:  "serve",
		Usage: "启动HTTP服务",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "memory",
				Usage:       "使用内存存储，不连接MongoDB",
				Sources:     cli.EnvVars("DIALER_MEMORY_STORE"),
				Destination: &inMemory,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, config.LoadConfig(), inMemory)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, inMemory bool) error {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	var st *stores
	if inMemory {
		utils.Logger.Warn().Msg("使用内存存储，重启后数据丢失")
		st = memoryStores()
	} else {
		st, err = openMongoStores(cfg)
		if err != nil {
			return err
		}
		defer repository.CloseMongoDB()
	}

	a := buildApp(cfg, st, catalog)
	defer a.shutdown()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		utils.Logger.Info().Msgf("服务器启动，监听端口: %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("启动服务器失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return service.RunClaimSweeper(gctx, a.claims, cfg.ClaimSweepInterval)
	})
	g.Go(func() error {
		return a.sessions.RunSweeper(gctx, cfg.SessionIdleTimeout/3)
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Logger.Info().Msg("正在关闭服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	utils.Logger.Info().Msg("服务器已优雅关闭")
	return nil
}

func sweepClaimsCmd() *cli.Command {
	return &cli.Command{
		Name:  "sweep-claims",
		Usage: "清理一次过期占用字段",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.LoadConfig()
			st, err := openMongoStores(cfg)
			if err != nil {
				return err
			}
			defer repository.CloseMongoDB()

			claims := service.NewClaimManager(st.claims, service.LeaseConfig{
				Timeout:       cfg.LeaseTimeout,
				RenewInterval: cfg.RenewInterval,
			}, service.SystemClock, utils.Component("claims"))
			cleared, err := claims.SweepExpired(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("cleared %d expired claims\n", cleared)
			return nil
		},
	}
}

func issueTokenCmd() *cli.Command {
	var (
		id, role, name string
		ttl            time.Duration
	)
	return &cli.Command{
		Name:  "issue-token",
		Usage: "为坐席签发JWT，用于本地调试",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "坐席ID", Required: true, Destination: &id},
			&cli.StringFlag{Name: "role", Usage: "SUPER_ADMIN, SALES_MANAGER 或 CALLER", Value: "CALLER", Destination: &role},
			&cli.StringFlag{Name: "name", Usage: "坐席名称", Destination: &name},
			&cli.DurationFlag{Name: "ttl", Usage: "有效期", Value: 24 * time.Hour, Destination: &ttl},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if name == "" {
				name = id
			}
			token, err := utils.GenerateToken(utils.LoginUser{ID: id, Role: role, Username: name}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
