package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"SR_rewards_bot/internal/bot"
	"SR_rewards_bot/internal/repository"
	"SR_rewards_bot/internal/service"
	"SR_rewards_bot/internal/settlement"

	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Database   repository.Config       `mapstructure:"database"`
	Server     ServerConfig            `mapstructure:"server"`
	Telegram   bot.Config              `mapstructure:"telegram"`
	Auth       AuthConfig              `mapstructure:"auth"`
	Settlement settlement.Config       `mapstructure:"settlement"`
	Rewards    service.Rules           `mapstructure:"rewards"`
	Scheduler  service.SchedulerConfig `mapstructure:"scheduler"`

	// Admins are seeded into the admin table at startup.
	Admins []int64 `mapstructure:"admins"`

	LogLevel string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	MetricsEnabled  bool          `mapstructure:"metricsEnabled"`
}

type AuthConfig struct {
	// Debug skips init data signature checks. Never enable in production.
	Debug bool `mapstructure:"debug"`
}

func setDefaults() {
	rules := service.DefaultRules()
	viper.SetDefault("rewards.minWithdrawAmount", rules.MinWithdrawAmount)
	viper.SetDefault("rewards.withdrawCooldown", rules.WithdrawCooldown)
	viper.SetDefault("rewards.withdrawLockTtl", rules.WithdrawLockTTL)
	viper.SetDefault("rewards.manualCompletionReward", rules.ManualCompletionReward)
	viper.SetDefault("rewards.referralBonusNew", rules.ReferralBonusNew)
	viper.SetDefault("rewards.referralBonusReferrer", rules.ReferralBonusReferrer)
	viper.SetDefault("rewards.taskPageSize", rules.TaskPageSize)
	viper.SetDefault("rewards.leaderboardSize", rules.LeaderboardSize)
	viper.SetDefault("rewards.timezone", rules.Timezone)

	viper.SetDefault("scheduler.reminderInterval", 6*time.Hour)
	viper.SetDefault("scheduler.reconcileInterval", time.Minute)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdownTimeout", 10*time.Second)
	viper.SetDefault("server.metricsEnabled", true)

	viper.SetDefault("telegram.botToken", "")
	viper.SetDefault("telegram.debug", false)
	viper.SetDefault("telegram.botUsername", "")
	viper.SetDefault("telegram.pollTimeout", 60)
	viper.SetDefault("telegram.tokenSymbol", "$SHROCK")
	viper.SetDefault("telegram.rateLimit", 2)
	viper.SetDefault("telegram.rateBurst", 5)

	viper.SetDefault("settlement.rpcUrl", "")
	viper.SetDefault("settlement.chainId", 0)
	viper.SetDefault("settlement.tokenContract", "")
	viper.SetDefault("settlement.privateKey", "")
	viper.SetDefault("settlement.decimals", 18)
	viper.SetDefault("settlement.transferTimeout", 2*time.Minute)
	viper.SetDefault("settlement.gasLimit", 0)
	viper.SetDefault("settlement.explorerUrl", "")
	viper.SetDefault("settlement.pollInterval", 2*time.Second)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.name", "")
	viper.SetDefault("database.sslMode", "disable")

	viper.SetDefault("auth.debug", false)
	viper.SetDefault("logLevel", "info")
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(configPath)
	viper.SetConfigType(configFormat)

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Telegram.BotToken == "" {
		return nil, errors.New("telegram.botToken is required")
	}

	return &cfg, nil
}
