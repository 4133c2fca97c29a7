package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Broker.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Safety.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	return nil
}

func (b *BrokerConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(b.Mode))
	switch mode {
	case "paper":
	case "http":
		if strings.TrimSpace(b.APIURL) == "" {
			return fmt.Errorf("broker.api_url is required when broker.mode is http")
		}
	default:
		return fmt.Errorf("broker.mode must be \"paper\" or \"http\", got %q", b.Mode)
	}
	b.Mode = mode
	return nil
}

func (r *RiskConfig) validate() error {
	if r.DailyLossLimitPct <= 0 || r.DailyLossLimitPct >= 1 {
		return fmt.Errorf("risk.daily_loss_limit_pct must be in (0,1)")
	}
	if r.CorrSoftLow >= r.CorrSoftHigh {
		return fmt.Errorf("risk.corr_soft_low must be below risk.corr_soft_high")
	}
	if r.CorrSoftHigh > r.CorrHardCeiling {
		return fmt.Errorf("risk.corr_soft_high must not exceed risk.corr_hard_ceiling")
	}
	if r.CorrShortWindow >= r.CorrLongWindow {
		return fmt.Errorf("risk.corr_short_window must be below risk.corr_long_window")
	}
	switch strings.ToLower(strings.TrimSpace(r.Regime)) {
	case "calm", "normal", "elevated", "crisis":
	default:
		return fmt.Errorf("risk.regime must be one of calm/normal/elevated/crisis, got %q", r.Regime)
	}
	return nil
}

func (s *SafetyConfig) validate() error {
	if s.HaltDrawdownPct >= s.PanicDrawdownPct {
		return fmt.Errorf("safety.halt_drawdown_pct must be below safety.panic_drawdown_pct")
	}
	if s.RampupMultiplier <= 0 || s.RampupMultiplier >= 1 {
		return fmt.Errorf("safety.rampup_multiplier must be in (0,1)")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
		}
	}
	return nil
}
