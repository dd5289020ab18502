package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Gateway GatewayConfig `json:"gateway"`
	OneBot  OneBotConfig  `json:"onebot"`
	LLM     LLMConfig     `json:"llm"`
	Prompts PromptsConfig `json:"prompts"`
	App     AppConfig     `json:"app"`
	Echo    EchoConfig    `json:"echo"`
	History HistoryConfig `json:"history"`
}

type GatewayConfig struct {
	Host string `env:"REPLYCLAW_GATEWAY_HOST" json:"host"`
	Port int    `env:"REPLYCLAW_GATEWAY_PORT" json:"port"`
}

// OneBotConfig holds per-mode dispatch deadlines for the upstream
// bot-protocol peer, in seconds.
type OneBotConfig struct {
	AccessToken        string `env:"REPLYCLAW_ONEBOT_ACCESS_TOKEN"         json:"access_token"`
	SendTimeoutText    int    `env:"REPLYCLAW_ONEBOT_SEND_TIMEOUT_TEXT"    json:"send_timeout_text"`
	SendTimeoutMedia   int    `env:"REPLYCLAW_ONEBOT_SEND_TIMEOUT_MEDIA"   json:"send_timeout_media"`
	SendTimeoutFace    int    `env:"REPLYCLAW_ONEBOT_SEND_TIMEOUT_FACE"    json:"send_timeout_face"`
	RecallTimeout      int    `env:"REPLYCLAW_ONEBOT_RECALL_TIMEOUT"       json:"recall_timeout"`
	InflightWaitCeil   int    `env:"REPLYCLAW_ONEBOT_INFLIGHT_WAIT_CEIL"   json:"inflight_wait_ceil"`
	RecentResultWindow int    `env:"REPLYCLAW_ONEBOT_RECENT_RESULT_WINDOW" json:"recent_result_window"`
}

type LLMConfig struct {
	APIBase        string  `env:"REPLYCLAW_LLM_API_BASE"        json:"api_base"`
	APIKey         string  `env:"REPLYCLAW_LLM_API_KEY"         json:"api_key"`
	Model          string  `env:"REPLYCLAW_LLM_MODEL"           json:"model"`
	TimeoutSeconds float64 `env:"REPLYCLAW_LLM_TIMEOUT_SECONDS" json:"timeout_seconds"`
}

type PromptsConfig struct {
	System       string `env:"REPLYCLAW_PROMPTS_SYSTEM"        json:"system"`
	UserTemplate string `env:"REPLYCLAW_PROMPTS_USER_TEMPLATE" json:"user_template"`
}

type AppConfig struct {
	MaxHistory int `env:"REPLYCLAW_APP_MAX_HISTORY" json:"max_history"`
}

// EchoConfig holds the echo-suppression tuning knobs.
type EchoConfig struct {
	SubstringMinLen  int     `env:"REPLYCLAW_ECHO_SUBSTRING_MIN_LEN"  json:"substring_min_len"`
	ContainedMinLen  int     `env:"REPLYCLAW_ECHO_CONTAINED_MIN_LEN"  json:"contained_min_len"`
	ContainedMaxDiff int     `env:"REPLYCLAW_ECHO_CONTAINED_MAX_DIFF" json:"contained_max_diff"`
	LongRatioMinLen  int     `env:"REPLYCLAW_ECHO_LONG_RATIO_MIN_LEN" json:"long_ratio_min_len"`
	LongRatio        float64 `env:"REPLYCLAW_ECHO_LONG_RATIO"         json:"long_ratio"`
	ShortRatio       float64 `env:"REPLYCLAW_ECHO_SHORT_RATIO"        json:"short_ratio"`
}

type HistoryConfig struct {
	DBPath string `env:"REPLYCLAW_HISTORY_DB_PATH" json:"db_path"`
}

// DefaultConfig returns the built-in configuration template.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{Host: "127.0.0.1", Port: 8000},
		OneBot: OneBotConfig{
			SendTimeoutText:    15,
			SendTimeoutMedia:   25,
			SendTimeoutFace:    18,
			RecallTimeout:      15,
			InflightWaitCeil:   35,
			RecentResultWindow: 2,
		},
		LLM: LLMConfig{TimeoutSeconds: 30},
		App: AppConfig{MaxHistory: 30},
		Echo: EchoConfig{
			SubstringMinLen:  6,
			ContainedMinLen:  8,
			ContainedMaxDiff: 2,
			LongRatioMinLen:  12,
			LongRatio:        0.92,
			ShortRatio:       0.96,
		},
		History: HistoryConfig{DBPath: "chat_history.db"},
	}
}

// LoadConfig reads the JSON config at path (missing file yields defaults),
// overlays REPLYCLAW_* environment variables, and clamps tunables into
// their valid ranges.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	cfg.clamp()
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// clamp forces tunables into their documented ranges rather than failing:
// a hand-edited config should degrade to sane values, not refuse to start.
func (c *Config) clamp() {
	c.App.MaxHistory = clampInt(c.App.MaxHistory, 5, 500)
	c.LLM.TimeoutSeconds = clampFloat(c.LLM.TimeoutSeconds, 5, 300)
	if c.OneBot.SendTimeoutText <= 0 {
		c.OneBot.SendTimeoutText = 15
	}
	if c.OneBot.SendTimeoutMedia <= 0 {
		c.OneBot.SendTimeoutMedia = 25
	}
	if c.OneBot.SendTimeoutFace <= 0 {
		c.OneBot.SendTimeoutFace = 18
	}
	if c.OneBot.RecallTimeout <= 0 {
		c.OneBot.RecallTimeout = 15
	}
	if c.OneBot.InflightWaitCeil <= 0 {
		c.OneBot.InflightWaitCeil = 35
	}
	if c.OneBot.RecentResultWindow <= 0 {
		c.OneBot.RecentResultWindow = 2
	}
	if c.Echo.SubstringMinLen <= 0 {
		c.Echo.SubstringMinLen = 6
	}
	if c.Echo.ContainedMinLen <= 0 {
		c.Echo.ContainedMinLen = 8
	}
	if c.Echo.ContainedMaxDiff < 0 {
		c.Echo.ContainedMaxDiff = 2
	}
	if c.Echo.LongRatioMinLen <= 0 {
		c.Echo.LongRatioMinLen = 12
	}
	if c.Echo.LongRatio <= 0 || c.Echo.LongRatio > 1 {
		c.Echo.LongRatio = 0.92
	}
	if c.Echo.ShortRatio <= 0 || c.Echo.ShortRatio > 1 {
		c.Echo.ShortRatio = 0.96
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
