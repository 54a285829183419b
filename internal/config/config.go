package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Parry-QV/internal/auth"
	"Parry-QV/internal/chain"
	storagemysql "Parry-QV/internal/storage/mysql"
	storageredis "Parry-QV/internal/storage/redis"
	"Parry-QV/pkg/logger"
)

// EnvPrefix 是环境变量覆盖配置时使用的前缀。
const EnvPrefix = "parryqv"

// Config 描述了网关在启动阶段需要加载的核心配置。
type Config struct {
	Network      string              `json:"network" envconfig:"network"`
	NetworksFile string              `json:"networks_file" envconfig:"networks_file"`
	Server       ServerConfig        `json:"server" envconfig:"server"`
	Auth         AuthConfig          `json:"auth" envconfig:"auth"`
	Chain        ChainConfig         `json:"chain" envconfig:"chain"`
	Wallet       WalletConfig        `json:"wallet" envconfig:"wallet"`
	Submit       SubmitConfig        `json:"submit" envconfig:"submit"`
	Relay        RelayConfig         `json:"relay" envconfig:"relay"`
	Pinning      PinningConfig       `json:"pinning" envconfig:"pinning"`
	Actions      ActionsConfig       `json:"actions" envconfig:"actions"`
	Cache        CacheConfig         `json:"cache" envconfig:"cache"`
	Redis        storageredis.Config `json:"redis" envconfig:"redis"`
	Alerting     AlertingConfig      `json:"alerting" envconfig:"alerting"`
	Logging      logger.Config       `json:"logging" envconfig:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address         string        `json:"address" envconfig:"address"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" envconfig:"shutdown_timeout"`
	CORSOrigins     []string      `json:"cors_origins" envconfig:"cors_origins"`
	// MetricsAddress 非空时在独立端口上暴露 /metrics。
	MetricsAddress string `json:"metrics_address" envconfig:"metrics_address"`
}

// AuthConfig 配置变更类接口的 API Key，留空表示不启用认证。
type AuthConfig struct {
	Keys []auth.KeyConfig `json:"keys" ignored:"true"`
}

// ChainConfig 包含访问区块链节点与合约所需的信息。
type ChainConfig struct {
	RPCURL          string `json:"rpc_url" envconfig:"rpc_url"`
	ChainID         int64  `json:"chain_id" envconfig:"chain_id"`
	FactoryAddress  string `json:"factory_address" envconfig:"factory_address"`
	PassportAddress string `json:"passport_address" envconfig:"passport_address"`
	// TransactionURL 为区块浏览器的交易地址前缀，链接形如 {transaction_url}/{hash}。
	TransactionURL  string `json:"transaction_url" envconfig:"transaction_url"`
	FanOut          int    `json:"fan_out" envconfig:"fan_out"`
}

// WalletConfig 选择注入的钱包实现。
type WalletConfig struct {
	// Driver 取值 key 或 clef。
	Driver       string   `json:"driver" envconfig:"driver"`
	PrivateKeys  []string `json:"private_keys" envconfig:"private_keys"`
	ClefEndpoint string   `json:"clef_endpoint" envconfig:"clef_endpoint"`
	// AutoConnect 为 true 时启动即请求账户授权。
	AutoConnect bool `json:"auto_connect" envconfig:"auto_connect"`
}

// SubmitConfig 控制变更交易的提交策略。
type SubmitConfig struct {
	Strategy string `json:"strategy" envconfig:"strategy"`
	// Overrides 按合约方法名覆盖默认策略，例如 castVote: direct。
	Overrides      map[string]string `json:"overrides" envconfig:"overrides"`
	SkipSimulation bool              `json:"skip_simulation" envconfig:"skip_simulation"`
}

// RelayConfig 描述元交易中继服务。
type RelayConfig struct {
	BaseURL string        `json:"base_url" envconfig:"base_url"`
	Timeout time.Duration `json:"timeout" envconfig:"timeout"`
}

// PinningConfig 描述媒体固定服务与访问网关。
type PinningConfig struct {
	URL       string `json:"url" envconfig:"url"`
	APIKey    string `json:"api_key" envconfig:"api_key"`
	SecretKey string `json:"secret_key" envconfig:"secret_key"`
	Gateway   string `json:"gateway" envconfig:"gateway"`
}

// ActionsConfig 描述动作存储、队列与消费协程。
type ActionsConfig struct {
	Workers    int           `json:"workers" envconfig:"workers"`
	// StaleAfter 启动时超过该时长未更新的在途动作会被标记为中断。
	StaleAfter time.Duration `json:"stale_after" envconfig:"stale_after"`
	Store      StoreConfig   `json:"store" envconfig:"store"`
	Queue      QueueConfig   `json:"queue" envconfig:"queue"`
}

// StoreConfig 选择动作存储后端，driver 取值 memory、mysql 或 mongo。
type StoreConfig struct {
	Driver string              `json:"driver" envconfig:"driver"`
	MySQL  storagemysql.Config `json:"mysql" envconfig:"mysql"`
	Mongo  MongoConfig         `json:"mongo" envconfig:"mongo"`
}

// MongoConfig 描述 MongoDB 连接。
type MongoConfig struct {
	URI        string `json:"uri" envconfig:"uri"`
	Database   string `json:"database" envconfig:"database"`
	Collection string `json:"collection" envconfig:"collection"`
}

// QueueConfig 选择动作队列，driver 取值 memory、redis 或 rabbitmq。
type QueueConfig struct {
	Driver    string         `json:"driver" envconfig:"driver"`
	Size      int            `json:"size" envconfig:"size"`
	Name      string         `json:"name" envconfig:"name"`
	BlockWait time.Duration  `json:"block_wait" envconfig:"block_wait"`
	RabbitMQ  RabbitMQConfig `json:"rabbitmq" envconfig:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 连接。
type RabbitMQConfig struct {
	URL      string `json:"url" envconfig:"url"`
	Prefetch int    `json:"prefetch" envconfig:"prefetch"`
}

// CacheConfig 控制链上视图缓存。
type CacheConfig struct {
	// Driver 取值 memory 或 redis。
	Driver       string        `json:"driver" envconfig:"driver"`
	TTL          time.Duration `json:"ttl" envconfig:"ttl"`
	// LoadTimeout 限制一次共享链上读取的时长。
	LoadTimeout  time.Duration `json:"load_timeout" envconfig:"load_timeout"`
	WarmInterval time.Duration `json:"warm_interval" envconfig:"warm_interval"`
	Prefix       string        `json:"prefix" envconfig:"prefix"`
	Channel      string        `json:"channel" envconfig:"channel"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url" envconfig:"webhook_url"`
}

// Load 依次读取 .env、JSON 配置文件、环境变量与网络部署文件，
// 补齐默认值并校验必填项。path 为空时只使用环境变量。
func Load(path string, envFiles ...string) (*Config, error) {
	if err := LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}

	var cfg Config
	baseDir := "."
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
		baseDir = filepath.Dir(path)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyDeployment(baseDir); err != nil {
		return nil, err
	}
	cfg.applyDefaults(baseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := json.Unmarshal(content, cfg); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}
	return nil
}

// applyDeployment 使用网络部署文件补齐未显式配置的链参数。
func (c *Config) applyDeployment(baseDir string) error {
	if c.Network == "" {
		return nil
	}
	path := c.NetworksFile
	if path == "" {
		path = "networks.yaml"
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	deployments, err := chain.LoadDeployments(path)
	if err != nil {
		return err
	}
	dep, ok := deployments.Lookup(c.Network)
	if !ok {
		return fmt.Errorf("网络 %s 未在 %s 中定义", c.Network, path)
	}
	if c.Chain.RPCURL == "" {
		c.Chain.RPCURL = dep.RPCURL
	}
	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = dep.ChainID
	}
	if c.Chain.FactoryAddress == "" {
		c.Chain.FactoryAddress = dep.Factory
	}
	if c.Chain.PassportAddress == "" {
		c.Chain.PassportAddress = dep.Passport
	}
	if c.Chain.TransactionURL == "" {
		c.Chain.TransactionURL = dep.TransactionURL
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}

	if c.Chain.FanOut <= 0 {
		c.Chain.FanOut = 8
	}

	if c.Wallet.Driver == "" {
		c.Wallet.Driver = "key"
	}
	c.Wallet.Driver = strings.ToLower(c.Wallet.Driver)

	if c.Submit.Strategy == "" {
		c.Submit.Strategy = string(chain.StrategyRelay)
	}

	if c.Relay.Timeout <= 0 {
		c.Relay.Timeout = 15 * time.Second
	}

	if c.Actions.Workers <= 0 {
		c.Actions.Workers = 2
	}
	if c.Actions.StaleAfter <= 0 {
		c.Actions.StaleAfter = 10 * time.Minute
	}
	if c.Actions.Store.Driver == "" {
		c.Actions.Store.Driver = "memory"
	}
	if c.Actions.Queue.Driver == "" {
		c.Actions.Queue.Driver = "memory"
	}
	if c.Actions.Queue.Size <= 0 {
		c.Actions.Queue.Size = 64
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 30 * time.Second
	}
	if c.Cache.LoadTimeout <= 0 {
		c.Cache.LoadTimeout = 20 * time.Second
	}
	if c.Cache.WarmInterval <= 0 {
		c.Cache.WarmInterval = time.Minute
	}

	if c.Logging.Audit.Enabled && c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}

// Validate 校验启动必需的配置项。
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		name  string
		value string
	}{
		{"chain.rpc_url", c.Chain.RPCURL},
		{"chain.factory_address", c.Chain.FactoryAddress},
		{"chain.passport_address", c.Chain.PassportAddress},
		{"relay.base_url", c.Relay.BaseURL},
		{"pinning.gateway", c.Pinning.Gateway},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			errs = append(errs, fmt.Errorf("缺少必填配置 %s", field.name))
		}
	}
	for name, value := range map[string]string{
		"chain.factory_address":  c.Chain.FactoryAddress,
		"chain.passport_address": c.Chain.PassportAddress,
	} {
		if value != "" && !common.IsHexAddress(value) {
			errs = append(errs, fmt.Errorf("%s 不是合法地址: %s", name, value))
		}
	}

	if _, err := chain.ParseStrategy(c.Submit.Strategy); err != nil {
		errs = append(errs, err)
	}
	for method, strategy := range c.Submit.Overrides {
		if _, err := chain.ParseStrategy(strategy); err != nil {
			errs = append(errs, fmt.Errorf("方法 %s 的提交策略无效: %w", method, err))
		}
	}

	switch c.Wallet.Driver {
	case "key", "clef", "none":
	default:
		errs = append(errs, fmt.Errorf("不支持的钱包类型 %q", c.Wallet.Driver))
	}
	if c.Wallet.Driver == "clef" && c.Wallet.ClefEndpoint == "" {
		errs = append(errs, errors.New("clef 钱包需要配置 wallet.clef_endpoint"))
	}

	switch c.Actions.Store.Driver {
	case "memory":
	case "mysql":
		if c.Actions.Store.MySQL.DSN == "" {
			errs = append(errs, errors.New("mysql 存储需要配置 actions.store.mysql.dsn"))
		}
	case "mongo":
		if c.Actions.Store.Mongo.URI == "" {
			errs = append(errs, errors.New("mongo 存储需要配置 actions.store.mongo.uri"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的动作存储 %q", c.Actions.Store.Driver))
	}

	switch c.Actions.Queue.Driver {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("redis 队列需要配置 redis.address"))
		}
	case "rabbitmq":
		if c.Actions.Queue.RabbitMQ.URL == "" {
			errs = append(errs, errors.New("rabbitmq 队列需要配置 actions.queue.rabbitmq.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的动作队列 %q", c.Actions.Queue.Driver))
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			errs = append(errs, errors.New("redis 缓存需要配置 redis.address"))
		}
	default:
		errs = append(errs, fmt.Errorf("不支持的缓存类型 %q", c.Cache.Driver))
	}

	return errors.Join(errs...)
}

// PinningEnabled 判断是否配置了媒体上传服务。
func (c *Config) PinningEnabled() bool {
	return strings.TrimSpace(c.Pinning.URL) != ""
}
