package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"Recipe-Chain/internal/auth"
	"Recipe-Chain/internal/bot"
)

// EnvPath 是指定配置文件路径的环境变量。
const EnvPath = "RECIPECHAIN_CONFIG"

// DefaultPath 是未设置环境变量时使用的配置文件。
var DefaultPath = filepath.Join("configs", "recipechain.yaml")

// Config 描述守护进程启动阶段需要的全部配置。
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger"`
	Events     EventsConfig     `json:"events" yaml:"events"`
	Queue      QueueConfig      `json:"queue" yaml:"queue"`
	JobStore   JobStoreConfig   `json:"job_store" yaml:"job_store"`
	Bot        BotConfig        `json:"bot" yaml:"bot"`
	Governance GovernanceConfig `json:"governance" yaml:"governance"`
	Registry   []RegistryEntry  `json:"registry" yaml:"registry"`
	FlashLoan  FlashLoanConfig  `json:"flash_loan" yaml:"flash_loan"`
	Web3       Web3Config       `json:"web3" yaml:"web3"`
	Alerting   AlertingConfig   `json:"alerting" yaml:"alerting"`
}

// ServerConfig 控制 API 服务。
type ServerConfig struct {
	Address string             `json:"address" yaml:"address"`
	Tokens  []auth.TokenConfig `json:"tokens" yaml:"tokens"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string      `json:"level" yaml:"level"`
	Format      string      `json:"format" yaml:"format"`
	OutputPaths []string    `json:"output_paths" yaml:"output_paths"`
	Audit       AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 控制审计日志文件。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// LedgerConfig 选择账本实现。
type LedgerConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	MySQL  MySQLConfig `json:"mysql" yaml:"mysql"`
}

// MySQLConfig 描述 MySQL 连接池。
type MySQLConfig struct {
	DSN                    string `json:"dsn" yaml:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds" yaml:"conn_max_idle_time_seconds"`
}

// ConnMaxLifetime 返回连接最长存活时间。
func (m MySQLConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(m.ConnMaxLifetimeSeconds) * time.Second
}

// ConnMaxIdleTime 返回连接最长空闲时间。
func (m MySQLConfig) ConnMaxIdleTime() time.Duration {
	return time.Duration(m.ConnMaxIdleTimeSeconds) * time.Second
}

// EventsConfig 选择已提交事件的外发通道，log 始终开启。
type EventsConfig struct {
	Sinks    []string            `json:"sinks" yaml:"sinks"`
	Redis    RedisStreamConfig   `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQEventConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// Enabled 判断是否启用了指定通道。
func (e EventsConfig) Enabled(sink string) bool {
	for _, s := range e.Sinks {
		if strings.EqualFold(strings.TrimSpace(s), sink) {
			return true
		}
	}
	return false
}

// RedisStreamConfig 描述事件写入的 Redis stream。
type RedisStreamConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Stream   string `json:"stream" yaml:"stream"`
	MaxLen   int64  `json:"max_len" yaml:"max_len"`
}

// RabbitMQEventConfig 描述事件写入的 RabbitMQ exchange。
type RabbitMQEventConfig struct {
	URL      string `json:"url" yaml:"url"`
	Exchange string `json:"exchange" yaml:"exchange"`
	Durable  bool   `json:"durable" yaml:"durable"`
}

// QueueConfig 选择作业队列实现。
type QueueConfig struct {
	Driver   string              `json:"driver" yaml:"driver"`
	Size     int                 `json:"size" yaml:"size"`
	Redis    RedisQueueConfig    `json:"redis" yaml:"redis"`
	RabbitMQ RabbitMQQueueConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RedisQueueConfig 描述 Redis list 队列。
type RedisQueueConfig struct {
	Address          string `json:"address" yaml:"address"`
	Password         string `json:"password" yaml:"password"`
	DB               int    `json:"db" yaml:"db"`
	Queue            string `json:"queue" yaml:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds" yaml:"block_wait_seconds"`
}

// RabbitMQQueueConfig 描述 RabbitMQ 队列。
type RabbitMQQueueConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// JobStoreConfig 选择作业状态存储。DSN 为空时复用账本的 MySQL 连接。
type JobStoreConfig struct {
	Driver     string `json:"driver" yaml:"driver"`
	DSN        string `json:"dsn" yaml:"dsn"`
	MaxRetries int    `json:"max_retries" yaml:"max_retries"`
}

// BotConfig 控制进程内 bot。
type BotConfig struct {
	Enabled  bool        `json:"enabled" yaml:"enabled"`
	Address  string      `json:"address" yaml:"address"`
	Schedule string      `json:"schedule" yaml:"schedule"`
	Workers  int         `json:"workers" yaml:"workers"`
	Index    IndexConfig `json:"index" yaml:"index"`
	Plans    []bot.Plan  `json:"plans" yaml:"plans"`
}

// IndexConfig 选择订阅索引实现。
type IndexConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Key      string `json:"key" yaml:"key"`
}

// GovernanceConfig 描述管理员与初始白名单。
type GovernanceConfig struct {
	Owner          string       `json:"owner" yaml:"owner"`
	Bots           []string     `json:"bots" yaml:"bots"`
	OpenStrategies bool         `json:"open_strategies" yaml:"open_strategies"`
	OpenBundles    bool         `json:"open_bundles" yaml:"open_bundles"`
	Genesis        []Allocation `json:"genesis" yaml:"genesis"`
}

// Allocation 是首次启动时铸造的代币余额。
type Allocation struct {
	Token  string `json:"token" yaml:"token"`
	Owner  string `json:"owner" yaml:"owner"`
	Amount string `json:"amount" yaml:"amount"`
}

// RegistryEntry 是启动时登记到注册表的一条记录。
// Address 为空时使用实现名称派生的地址。
type RegistryEntry struct {
	Name       string `json:"name" yaml:"name"`
	Impl       string `json:"impl" yaml:"impl"`
	Address    string `json:"address" yaml:"address"`
	WaitPeriod uint64 `json:"wait_period" yaml:"wait_period"`
}

// FlashLoanConfig 描述内置闪电贷出借方。
type FlashLoanConfig struct {
	Pool   string `json:"pool" yaml:"pool"`
	FeeBps uint64 `json:"fee_bps" yaml:"fee_bps"`
}

// Web3Config 包含链定义文件与默认 RPC 地址。
type Web3Config struct {
	ChainConfig  string `json:"chain_config" yaml:"chain_config"`
	RPCURL       string `json:"rpc_url" yaml:"rpc_url"`
	DefaultChain string `json:"default_chain" yaml:"default_chain"`
}

// Configured 判断是否配置了任何链端点。
func (w Web3Config) Configured() bool {
	return strings.TrimSpace(w.ChainConfig) != "" || strings.TrimSpace(w.RPCURL) != ""
}

// AlertingConfig 描述告警通道。
type AlertingConfig struct {
	WebhookURL            string `json:"webhook_url" yaml:"webhook_url"`
	WebhookTimeoutSeconds int    `json:"webhook_timeout_seconds" yaml:"webhook_timeout_seconds"`
}

// PathFromEnv 返回 RECIPECHAIN_CONFIG 指定的路径或默认路径。
func PathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(EnvPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load 解析配置文件，扩展名为 .json 时按 JSON 解析，否则按 YAML 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	cfg, err := Parse(content, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse 解析配置内容并填充默认值。
func Parse(content []byte, ext string) (*Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置失败: %w", err)
		}
	default:
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置失败: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只包含默认值的配置。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults 在用户未填写部分字段时设置默认值。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join("data", "audit.log")
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Size <= 0 {
		c.Queue.Size = 1024
	}
	if c.Queue.Redis.BlockWaitSeconds <= 0 {
		c.Queue.Redis.BlockWaitSeconds = 5
	}

	if c.JobStore.Driver == "" {
		c.JobStore.Driver = "memory"
	}
	if c.JobStore.MaxRetries <= 0 {
		c.JobStore.MaxRetries = 3
	}

	if c.Bot.Schedule == "" {
		c.Bot.Schedule = "*/15 * * * * *"
	}
	if c.Bot.Workers <= 0 {
		c.Bot.Workers = 4
	}
	if c.Bot.Index.Driver == "" {
		c.Bot.Index.Driver = "memory"
	}

	if c.FlashLoan.Pool == "" {
		c.FlashLoan.Pool = "0x00000000000000000000000000000000000f1a5e"
	}
	if c.FlashLoan.FeeBps == 0 {
		c.FlashLoan.FeeBps = 9
	}

	if c.Alerting.WebhookTimeoutSeconds <= 0 {
		c.Alerting.WebhookTimeoutSeconds = 5
	}
}

func (c *Config) resolvePaths(baseDir string) {
	if path := c.Web3.ChainConfig; path != "" && !filepath.IsAbs(path) {
		c.Web3.ChainConfig = filepath.Join(baseDir, path)
	}
}

func (c *Config) validate() error {
	switch c.Ledger.Driver {
	case "memory":
	case "mysql":
		if strings.TrimSpace(c.Ledger.MySQL.DSN) == "" {
			return errors.New("ledger.mysql.dsn 不能为空")
		}
	default:
		return fmt.Errorf("未知的账本驱动: %s", c.Ledger.Driver)
	}
	switch c.Queue.Driver {
	case "memory", "redis", "rabbitmq":
	default:
		return fmt.Errorf("未知的队列驱动: %s", c.Queue.Driver)
	}
	switch c.JobStore.Driver {
	case "memory":
	case "mysql":
		if c.JobStore.DSN == "" && c.Ledger.Driver != "mysql" {
			return errors.New("job_store 使用 mysql 时需要 dsn 或 mysql 账本")
		}
	default:
		return fmt.Errorf("未知的作业存储驱动: %s", c.JobStore.Driver)
	}
	switch c.Bot.Index.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("未知的订阅索引驱动: %s", c.Bot.Index.Driver)
	}
	if c.Bot.Enabled && strings.TrimSpace(c.Bot.Address) == "" {
		return errors.New("bot.address 不能为空")
	}
	for i, entry := range c.Registry {
		if strings.TrimSpace(entry.Name) == "" || strings.TrimSpace(entry.Impl) == "" {
			return fmt.Errorf("registry[%d] 需要 name 与 impl", i)
		}
	}
	return nil
}
