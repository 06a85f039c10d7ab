package types

// WebConf 包含 Web 服务的配置
type WebConf struct {
	Port int `ini:"port"` // 可被环境变量 PORT 覆盖
}

// UpstreamConf 描述 VPN Gate 上游站点及抓取行为
type UpstreamConf struct {
	BaseURL        string `ini:"base_url"`
	UserAgent      string `ini:"user_agent"`
	TimeoutSeconds int    `ini:"timeout_seconds"`
	MaxBodyBytes   int    `ini:"max_body_bytes"` // 0 表示不限制
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config 是 autogate 的统一配置结构体
type Config struct {
	WebConf      `ini:"web"`
	UpstreamConf `ini:"upstream"`
	LogConf      `ini:"log"`
}

// DefaultConfig 返回未提供配置文件时使用的默认值。
func DefaultConfig() *Config {
	return &Config{
		WebConf: WebConf{Port: 8080},
		UpstreamConf: UpstreamConf{
			BaseURL:        "http://www.vpngate.net",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
			TimeoutSeconds: 30,
		},
		LogConf: LogConf{Level: "info"},
	}
}
