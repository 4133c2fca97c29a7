package config

import "strings"

// 默认值常量
const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppLogPath      = "data/logs/skipper.log"
	defaultLedgerPath      = "data/db/ledger.db"
	defaultAuditPath       = "data/db/audit.db"
	defaultBrokerMode      = "paper"
	defaultBrokerTimeout   = 15
	defaultBrokerRetries   = 3
	defaultBrokerBackoffMs = 500
	defaultPollAttempts    = 10
	defaultPollIntervalMs  = 500
	defaultPaperCashUSD    = 100000

	defaultDailyLossLimit = 0.02
	defaultHeatCalm       = 0.90
	defaultHeatNormal     = 0.75
	defaultHeatElevated   = 0.50
	defaultHeatCrisis     = 0.25
	defaultRegime         = "normal"
	defaultCorrHard       = 0.85
	defaultCorrSoftLow    = 0.50
	defaultCorrSoftHigh   = 0.80
	defaultCorrMinAtten   = 0.25
	defaultCorrLongWin    = 60
	defaultCorrShortWin   = 20

	defaultHaltDrawdown  = 0.08
	defaultPanicDrawdown = 0.10
	defaultHaltCooldown  = 3
	defaultRampupRuns    = 2
	defaultRampupMult    = 0.5

	defaultTopN           = 3
	defaultMaxPositionPct = 0.10
	defaultSlippageBps    = 5
	defaultCommissionBps  = 10
	defaultCommissionMin  = 100 // $1.00
	defaultPriceTolerance = 0.05
	defaultCashTolerance  = 0.01

	defaultStrategiesPath = "configs/strategies.yaml"
	defaultInboxDir       = "data/inbox"
	defaultSchemaPath     = "configs/signal_proposal.schema.json"
	defaultPricesPath     = "configs/prices.yaml"
)

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Database.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Safety.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Strategies.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (d *DatabaseConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("database.ledger_path", &d.LedgerPath, defaultLedgerPath),
		stringFieldDefault("database.audit_path", &d.AuditPath, defaultAuditPath),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("broker.mode", &b.Mode, defaultBrokerMode),
		intFieldDefault("broker.timeout_seconds", &b.TimeoutSeconds, defaultBrokerTimeout),
		intFieldDefault("broker.max_retries", &b.MaxRetries, defaultBrokerRetries),
		intFieldDefault("broker.retry_backoff_millis", &b.RetryBackoffMillis, defaultBrokerBackoffMs),
		intFieldDefault("broker.poll_attempts", &b.PollAttempts, defaultPollAttempts),
		intFieldDefault("broker.poll_interval_millis", &b.PollIntervalMillis, defaultPollIntervalMs),
		floatFieldDefault("broker.paper_starting_cash_usd", &b.PaperStartingCash, defaultPaperCashUSD),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.daily_loss_limit_pct", &r.DailyLossLimitPct, defaultDailyLossLimit),
		floatFieldDefault("risk.heat_calm_pct", &r.HeatCalmPct, defaultHeatCalm),
		floatFieldDefault("risk.heat_normal_pct", &r.HeatNormalPct, defaultHeatNormal),
		floatFieldDefault("risk.heat_elevated_pct", &r.HeatElevatedPct, defaultHeatElevated),
		floatFieldDefault("risk.heat_crisis_pct", &r.HeatCrisisPct, defaultHeatCrisis),
		stringFieldDefault("risk.regime", &r.Regime, defaultRegime),
		floatFieldDefault("risk.corr_hard_ceiling", &r.CorrHardCeiling, defaultCorrHard),
		floatFieldDefault("risk.corr_soft_low", &r.CorrSoftLow, defaultCorrSoftLow),
		floatFieldDefault("risk.corr_soft_high", &r.CorrSoftHigh, defaultCorrSoftHigh),
		floatFieldDefault("risk.corr_min_attenuation", &r.CorrMinAttenuation, defaultCorrMinAtten),
		intFieldDefault("risk.corr_long_window", &r.CorrLongWindow, defaultCorrLongWin),
		intFieldDefault("risk.corr_short_window", &r.CorrShortWindow, defaultCorrShortWin),
	)
}

func (s *SafetyConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("safety.halt_drawdown_pct", &s.HaltDrawdownPct, defaultHaltDrawdown),
		floatFieldDefault("safety.panic_drawdown_pct", &s.PanicDrawdownPct, defaultPanicDrawdown),
		intFieldDefault("safety.halt_cooldown_runs", &s.HaltCooldownRuns, defaultHaltCooldown),
		intFieldDefault("safety.rampup_runs", &s.RampupRuns, defaultRampupRuns),
		floatFieldDefault("safety.rampup_multiplier", &s.RampupMultiplier, defaultRampupMult),
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("trading.top_n_per_strategy", &t.TopNPerStrategy, defaultTopN),
		fieldDefault{
			key:   "trading.max_position_pct",
			need:  func() bool { return t.MaxPositionPct <= 0 || t.MaxPositionPct > 1 },
			apply: func() { t.MaxPositionPct = defaultMaxPositionPct },
		},
		intFieldDefault("trading.slippage_bps", &t.SlippageBps, defaultSlippageBps),
		intFieldDefault("trading.commission_bps", &t.CommissionBps, defaultCommissionBps),
		fieldDefault{
			key:   "trading.commission_min_cents",
			need:  func() bool { return t.CommissionMinCents <= 0 },
			apply: func() { t.CommissionMinCents = defaultCommissionMin },
		},
		floatFieldDefault("trading.price_tolerance_pct", &t.PriceTolerancePct, defaultPriceTolerance),
		floatFieldDefault("trading.cash_tolerance_pct", &t.CashTolerancePct, defaultCashTolerance),
	)
}

func (s *StrategiesConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("strategies.path", &s.Path, defaultStrategiesPath),
		stringFieldDefault("strategies.inbox_dir", &s.InboxDir, defaultInboxDir),
		stringFieldDefault("strategies.schema_path", &s.SchemaPath, defaultSchemaPath),
		stringFieldDefault("strategies.prices_path", &s.PricesPath, defaultPricesPath),
	)
}
