/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/project-approval/internal/api"
	"github.com/mautops/project-approval/internal/config"
	"github.com/mautops/project-approval/internal/container"
	"github.com/mautops/project-approval/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Project Approval API server.
The server will listen on the configured host and port,
and provide REST API interfaces for project creation and approval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyServerFlags(cmd, cfg)

		// 2. 初始化日志
		log, err := logger.NewFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Set(log)

		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		// 3. 链路追踪
		if cfg.Tracing.Enabled {
			if err := api.InitTracing(cfg.Tracing, nil); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
		}

		// 4. 初始化容器
		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()
		ctr.Start(cmd.Context())

		// 5. 配置热更新
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, log)
			watcher.OnConfigChange(ctr.Reload)
			watcher.OnConfigChange(func(next *config.Config) {
				if level, err := logrus.ParseLevel(next.Log.Level); err == nil {
					log.SetLevel(level)
				}
			})
			if err := watcher.Start(); err != nil {
				log.WithError(err).Warn("config hot reload disabled")
			} else {
				defer watcher.Stop()
			}
		}

		// 6. 设置路由
		router := api.SetupRoutes(ctr.Controllers(), cfg)

		// 7. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.WithField("addr", addr).Info("Server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			return fmt.Errorf("failed to start server: %w", err)
		}

		log.Info("Shutting down server...")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		if err := api.ShutdownTracing(ctx); err != nil {
			log.WithError(err).Warn("failed to flush traces")
		}

		log.Info("Server exited")
		return nil
	},
}

// applyServerFlags 命令行显式指定的参数覆盖配置文件
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}

// LoadConfig 加载配置
func LoadConfig(configPath string) (*config.Config, error) {
	return config.Load(configPath)
}
