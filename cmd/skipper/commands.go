package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"skipper/internal/app"
	"skipper/internal/config"
	"skipper/internal/logger"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:           "skipper",
		Short:         "skipper - 每日批次自动交易引擎",
		Long:          "skipper 每天执行一次批次: 安全检查 → 券商对账 → 信号漏斗 → 风控闸门 → 幂等下单, 并输出当日运行报告。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "配置文件路径 (默认 $SKIPPER_CONFIG 或 configs/config.yaml)")

	rootCmd.AddCommand(newRunCmd(&cfgPath))
	rootCmd.AddCommand(newStatusCmd(&cfgPath))
	rootCmd.AddCommand(newKillSwitchCmd(&cfgPath))
	rootCmd.AddCommand(newClearPanicCmd(&cfgPath))

	return rootCmd
}

func loadConfig(cfgPath string) (*config.Config, error) {
	if cfgPath == "" {
		cfgPath = os.Getenv("SKIPPER_CONFIG")
	}
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}
	return config.Load(cfgPath)
}

// buildApp loads config, sets up file logging and constructs the app.
// The returned cleanup closes the log file and the stores.
func buildApp(cfgPath string) (*app.App, func(), error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志文件失败: %w", err)
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，broker=%s）", cfg.App.Env, cfg.Broker.Mode)

	a, err := app.NewApp(cfg)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, nil, fmt.Errorf("初始化应用失败: %w", err)
	}
	cleanup := func() {
		if err := a.Close(); err != nil {
			log.Printf("关闭存储失败: %v", err)
		}
		if logFile != nil {
			logFile.Close()
		}
	}
	return a, cleanup, nil
}

func newRunCmd(cfgPath *string) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "执行一次当日批次",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, err := a.Run(ctx, date)
			if rep != nil && rep.Halted {
				logger.Warnf("本次运行未下单: %s", rep.HaltReason)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "运行日期 YYYY-MM-DD (默认今天, UTC)")
	return cmd
}

func newStatusCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看安全状态与最近一次运行报告",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()
			ctx := cmd.Context()

			st, err := a.Safety().State(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("安全状态: %s\n", st.DrawdownState)
			fmt.Printf("冷却剩余: %d 次运行\n", st.CooldownRemaining)
			fmt.Printf("峰值市值: %.2f\n", float64(st.PeakPortfolioValueCents)/100)
			fmt.Printf("Kill switch: %v", st.KillSwitchActive)
			if st.KillSwitchActive {
				fmt.Printf("  (%s)", st.KillSwitchReason)
			}
			fmt.Println()

			if rec, ok, err := a.Audit().LatestRunReport(ctx); err == nil && ok {
				raw, _ := json.MarshalIndent(rec, "", "  ")
				fmt.Printf("最近一次运行:\n%s\n", raw)
			}
			return nil
		},
	}
}

func newKillSwitchCmd(cfgPath *string) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:       "killswitch on|off",
		Short:     "手动启停 kill switch",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			active := args[0] == "on"
			if active && reason == "" {
				return fmt.Errorf("启用 kill switch 必须带 --reason")
			}
			a, cleanup, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := a.Safety().SetKillSwitch(cmd.Context(), active, reason); err != nil {
				return err
			}
			fmt.Printf("kill switch -> %v\n", active)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "启用原因 (写入审计)")
	return cmd
}

func newClearPanicCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-panic",
		Short: "人工确认后解除 PANIC (进入 RAMPUP)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer cleanup()
			if err := a.Safety().ClearPanic(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("PANIC 已解除, 状态进入 RAMPUP")
			return nil
		},
	}
}
