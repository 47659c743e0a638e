package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BerniceZTT/dialer_end/config"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// .env不存在时直接使用环境变量
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "dialer",
		Usage: "外呼线索协调服务",
		Description: `多个坐席共享一个线索队列，通过带租约的占用避免重复拨打。

  dialer serve                      # 启动HTTP服务
  dialer sweep-claims               # 清理一次过期占用
  dialer issue-token --id u1 --role CALLER --name 张三`,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			utils.InitLogger()
			// 包初始化早于.env加载，这里重新读取签名密钥
			utils.SetJWTSecret(config.LoadConfig().JWTKey)
			return ctx, nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			sweepClaimsCmd(),
			issueTokenCmd(),
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
