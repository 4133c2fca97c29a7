package config

import "strings"

// Config 是 skipper 的主配置载体。
type Config struct {
	App        AppConfig        `toml:"app"`
	Database   DatabaseConfig   `toml:"database"`
	Broker     BrokerConfig     `toml:"broker"`
	Risk       RiskConfig       `toml:"risk"`
	Safety     SafetyConfig     `toml:"safety"`
	Trading    TradingConfig    `toml:"trading"`
	Notify     NotifyConfig     `toml:"notify"`
	Strategies StrategiesConfig `toml:"strategies"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

type DatabaseConfig struct {
	LedgerPath string `toml:"ledger_path"`
	AuditPath  string `toml:"audit_path"`
}

// BrokerConfig 描述外部券商接口的访问方式。
type BrokerConfig struct {
	Mode               string  `toml:"mode"` // "http" | "paper"
	APIURL             string  `toml:"api_url"`
	APIToken           string  `toml:"api_token"`
	Username           string  `toml:"username"`
	Password           string  `toml:"password"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	InsecureSkipVerify bool    `toml:"insecure_skip_verify"`
	MaxRetries         int     `toml:"max_retries"`
	RetryBackoffMillis int     `toml:"retry_backoff_millis"`
	PollAttempts       int     `toml:"poll_attempts"`
	PollIntervalMillis int     `toml:"poll_interval_millis"`
	PaperStartingCash  float64 `toml:"paper_starting_cash_usd"`
}

// RiskConfig 控制组合风控闸门的各项阈值。
type RiskConfig struct {
	DailyLossLimitPct float64 `toml:"daily_loss_limit_pct"` // e.g. 0.02
	HeatCalmPct       float64 `toml:"heat_calm_pct"`
	HeatNormalPct     float64 `toml:"heat_normal_pct"`
	HeatElevatedPct   float64 `toml:"heat_elevated_pct"`
	HeatCrisisPct     float64 `toml:"heat_crisis_pct"`
	Regime            string  `toml:"regime"` // static classifier: calm|normal|elevated|crisis

	CorrHardCeiling    float64 `toml:"corr_hard_ceiling"` // ≥ rejects outright
	CorrSoftLow        float64 `toml:"corr_soft_low"`     // attenuation band lower bound
	CorrSoftHigh       float64 `toml:"corr_soft_high"`    // attenuation band upper bound
	CorrMinAttenuation float64 `toml:"corr_min_attenuation"`
	CorrLongWindow     int     `toml:"corr_long_window"`
	CorrShortWindow    int     `toml:"corr_short_window"`
}

// SafetyConfig 控制回撤状态机与 kill switch。
type SafetyConfig struct {
	HaltDrawdownPct  float64 `toml:"halt_drawdown_pct"`  // e.g. 0.08
	PanicDrawdownPct float64 `toml:"panic_drawdown_pct"` // e.g. 0.10
	HaltCooldownRuns int     `toml:"halt_cooldown_runs"`
	RampupRuns       int     `toml:"rampup_runs"`
	RampupMultiplier float64 `toml:"rampup_multiplier"`
	KillSwitchFile   string  `toml:"kill_switch_file"`
}

// TradingConfig 控制下单与成本模型参数。
type TradingConfig struct {
	TopNPerStrategy    int     `toml:"top_n_per_strategy"`
	MaxPositionPct     float64 `toml:"max_position_pct"` // 单笔最大占组合比例 0~1
	SlippageBps        int     `toml:"slippage_bps"`
	CommissionBps      int     `toml:"commission_bps"`
	CommissionMinCents int64   `toml:"commission_min_cents"`
	PriceTolerancePct  float64 `toml:"price_tolerance_pct"` // reconciliation price tolerance
	CashTolerancePct   float64 `toml:"cash_tolerance_pct"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// StrategiesConfig 指向策略清单与外部信号投递目录。
type StrategiesConfig struct {
	Path       string `toml:"path"`        // strategies.yaml
	InboxDir   string `toml:"inbox_dir"`   // external signal proposal drop dir
	SchemaPath string `toml:"schema_path"`
	PricesPath string `toml:"prices_path"` // daily close fixture for paper mode
	Parallel   bool   `toml:"parallel"`    // signal generation only; gates stay sequential
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}
