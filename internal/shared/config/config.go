package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"autogate/internal/shared/types"
)

// Load 在默认值之上加载 autogate.ini，再应用环境变量覆盖。
// 配置文件不存在时只使用默认值和环境变量。
func Load(fileName string) (*types.Config, error) {
	cfg := types.DefaultConfig()
	if fileName != "" {
		if err := LoadIni(cfg, fileName); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file '%s': %w", fileName, err)
		}
	}
	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadIni 将 ini 文件映射到 cfg 上，文件中缺失的键保持原值。
func LoadIni(cfg *types.Config, fileName string) error {
	iniFile, err := ini.Load(fileName)
	if err != nil {
		return err
	}
	return iniFile.MapTo(cfg)
}

func applyEnv(cfg *types.Config) {
	overrideFromEnvInt(&cfg.WebConf.Port, "PORT")
	overrideFromEnvString(&cfg.LogConf.Level, "LOG_LEVEL")
	overrideFromEnvString(&cfg.UpstreamConf.BaseURL, "VPNGATE_BASE_URL")
}

func validate(cfg *types.Config) error {
	if cfg.WebConf.Port <= 0 || cfg.WebConf.Port > 65535 {
		return fmt.Errorf("invalid web port %d", cfg.WebConf.Port)
	}
	if cfg.UpstreamConf.BaseURL == "" {
		return errors.New("upstream base_url must not be empty")
	}
	cfg.UpstreamConf.BaseURL = strings.TrimRight(cfg.UpstreamConf.BaseURL, "/")
	if cfg.UpstreamConf.TimeoutSeconds < 0 || cfg.UpstreamConf.MaxBodyBytes < 0 {
		return errors.New("upstream timeout_seconds and max_body_bytes must not be negative")
	}
	return nil
}

func overrideFromEnvInt(target *int, envName string) {
	envValue := os.Getenv(envName)
	if envValue != "" {
		if intValue, err := strconv.Atoi(envValue); err == nil {
			*target = intValue
		}
	}
}

func overrideFromEnvString(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
