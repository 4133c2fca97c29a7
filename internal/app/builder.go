package app

import (
	"context"
	"fmt"
	"time"

	"skipper/internal/broker"
	"skipper/internal/config"
	"skipper/internal/correlation"
	"skipper/internal/costmodel"
	"skipper/internal/engine"
	"skipper/internal/execution"
	"skipper/internal/ledger"
	"skipper/internal/ledger/auditlog"
	"skipper/internal/ledger/sqlite"
	"skipper/internal/logger"
	"skipper/internal/money"
	"skipper/internal/notify"
	"skipper/internal/reconcile"
	"skipper/internal/regime"
	"skipper/internal/risk"
	"skipper/internal/safety"
	"skipper/internal/strategy"
	opshttp "skipper/internal/transport/http"
)

// AppBuilder 按依赖顺序组装 App。各构造函数以字段形式持有, 测试可替换。
type AppBuilder struct {
	cfg *config.Config

	storeFn    func(string) (*sqlite.SqliteStore, error)
	auditFn    func(string) (*auditlog.Store, error)
	venueFn    func(config.BrokerConfig) (broker.Venue, error)
	notifierFn func(config.NotifyConfig) notify.TextNotifier
	pricesFn   func(string) (*strategy.FilePrices, error)

	venueOverride  broker.Venue
	marketOverride strategy.MarketData
}

type AppBuilderOption func(*AppBuilder)

// WithVenue replaces the configured venue (test harnesses).
func WithVenue(v broker.Venue) AppBuilderOption {
	return func(b *AppBuilder) { b.venueOverride = v }
}

// WithMarketData replaces the price source (test harnesses).
func WithMarketData(md strategy.MarketData) AppBuilderOption {
	return func(b *AppBuilder) { b.marketOverride = md }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		storeFn:    sqlite.NewSqliteStore,
		auditFn:    auditlog.NewStore,
		venueFn:    buildVenue,
		notifierFn: buildNotifier,
		pricesFn:   strategy.LoadFilePrices,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildVenue(cfg config.BrokerConfig) (broker.Venue, error) {
	switch cfg.Mode {
	case "paper":
		return broker.NewPaper(money.FromFloat(cfg.PaperStartingCash)), nil
	case "http":
		return broker.NewClient(cfg)
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Mode)
	}
}

func buildNotifier(cfg config.NotifyConfig) notify.TextNotifier {
	if cfg.Telegram.Enabled {
		return notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	}
	return notify.Nop{}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	store, err := b.storeFn(cfg.Database.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger store: %w", err)
	}
	audit, err := b.auditFn(cfg.Database.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	logger.Infof("✓ 账本: %s  审计: %s", cfg.Database.LedgerPath, cfg.Database.AuditPath)

	alerter := notify.NewAlerter(b.notifierFn(cfg.Notify), audit)

	venue := b.venueOverride
	if venue == nil {
		venue, err = b.venueFn(cfg.Broker)
		if err != nil {
			return nil, fmt.Errorf("building venue: %w", err)
		}
	}
	logger.Infof("✓ 交易通道: %s", venue.Name())

	market := b.marketOverride
	if market == nil {
		prices, err := b.pricesFn(cfg.Strategies.PricesPath)
		if err != nil {
			return nil, fmt.Errorf("loading price history: %w", err)
		}
		market = prices
	}
	priceSrc, ok := market.(correlation.PriceSource)
	if !ok {
		return nil, fmt.Errorf("market data source must provide history for the correlation filter")
	}

	reg, err := regime.Parse(cfg.Risk.Regime)
	if err != nil {
		return nil, err
	}
	classifier := regime.Static{Regime: reg}

	gate := risk.NewGate(risk.Config{
		DailyLossLimitPct: cfg.Risk.DailyLossLimitPct,
		Ceilings: regime.HeatCeilings{
			Calm:     cfg.Risk.HeatCalmPct,
			Normal:   cfg.Risk.HeatNormalPct,
			Elevated: cfg.Risk.HeatElevatedPct,
			Crisis:   cfg.Risk.HeatCrisisPct,
		},
	})
	corr := correlation.NewFilter(priceSrc, correlation.Config{
		HardCeiling:    cfg.Risk.CorrHardCeiling,
		SoftLow:        cfg.Risk.CorrSoftLow,
		SoftHigh:       cfg.Risk.CorrSoftHigh,
		MinAttenuation: cfg.Risk.CorrMinAttenuation,
		LongWindow:     cfg.Risk.CorrLongWindow,
		ShortWindow:    cfg.Risk.CorrShortWindow,
	})

	safetyMachine := safety.NewMachine(safety.Config{
		HaltDrawdownPct:  cfg.Safety.HaltDrawdownPct,
		PanicDrawdownPct: cfg.Safety.PanicDrawdownPct,
		HaltCooldownRuns: cfg.Safety.HaltCooldownRuns,
		RampupRuns:       cfg.Safety.RampupRuns,
		RampupMultiplier: cfg.Safety.RampupMultiplier,
		KillSwitchFile:   cfg.Safety.KillSwitchFile,
	}, store)

	reconciler := reconcile.New(venue, store, cfg.Trading.PriceTolerancePct, cfg.Trading.CashTolerancePct)
	costs := costmodel.New(cfg.Trading.SlippageBps, cfg.Trading.CommissionBps, cfg.Trading.CommissionMinCents)
	executor := execution.New(venue, store, costs,
		cfg.Broker.PollAttempts, time.Duration(cfg.Broker.PollIntervalMillis)*time.Millisecond)

	manifest, err := strategy.LoadManifest(cfg.Strategies.Path)
	if err != nil {
		return nil, err
	}
	quarantine := func(file, reason string) {
		alerter.Send(ctx, notify.Alert{
			Severity: notify.SeverityWarning,
			Kind:     "signal_quarantined",
			Message:  fmt.Sprintf("信号文件 %s 校验失败, 已隔离", file),
			Context:  map[string]any{"file": file, "reason": reason},
		})
	}
	instances, err := strategy.Build(manifest, cfg.Strategies.InboxDir, cfg.Strategies.SchemaPath, quarantine)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 已加载 %d 个策略", len(instances))

	eng := engine.New(cfg, store, audit, venue, safetyMachine, reconciler, gate, corr,
		classifier, executor, instances, market, alerter)

	var opsServer *opshttp.Server
	if cfg.App.HTTPAddr != "" {
		opsServer, err = opshttp.NewServer(opshttp.ServerConfig{
			Addr:   cfg.App.HTTPAddr,
			Safety: safetyMachine,
			Audit:  audit,
		})
		if err != nil {
			return nil, err
		}
	}

	var watcher *safety.Watcher
	if cfg.Safety.KillSwitchFile != "" {
		watcher, err = safety.NewWatcher(safetyMachine, cfg.Safety.KillSwitchFile)
		if err != nil {
			logger.Warnf("kill-switch 文件监听不可用: %v", err)
			watcher = nil
		}
	}

	var ledgerStore ledger.Store = store
	return &App{
		cfg:     cfg,
		engine:  eng,
		safety:  safetyMachine,
		opsHTTP: opsServer,
		watcher: watcher,
		store:   ledgerStore,
		audit:   audit,
	}, nil
}
