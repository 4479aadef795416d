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

	"github.com/joho/godotenv"

	"hedera-agent-kit/pkg/logger"
	"hedera-agent-kit/pkg/mirror"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "HEDERA_AGENT_CONFIG"

// Config 描述了 hedera-agentd 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Hedera    HederaConfig    `json:"hedera"`
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Storage   StorageConfig   `json:"storage"`
	Task      TaskConfig      `json:"task"`
	Plugins   PluginsConfig   `json:"plugins"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Auth      AuthConfig      `json:"auth"`
	Alerting  AlertingConfig  `json:"alerting"`
	Logging   logger.Config   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
	// MetricsAddress 非空时在独立端口暴露 /metrics。
	MetricsAddress string `json:"metrics_address"`
}

// HederaConfig 描述账本网络、运营账户以及镜像节点。
type HederaConfig struct {
	Network        string `json:"network"`
	NetworksFile   string `json:"networks_file"`
	OperatorID     string `json:"operator_id"`
	OperatorIDEnv  string `json:"operator_id_env"`
	OperatorKeyEnv string `json:"operator_key_env"`
	// Mode 为 autonomous 或 returnBytes（别名 human）。
	Mode   string       `json:"mode"`
	Mirror MirrorConfig `json:"mirror"`
	// DisableRelay 关闭基于 JSON-RPC 中继的只读 EVM 插件。
	DisableRelay bool `json:"disable_relay"`
}

// MirrorConfig 控制镜像节点客户端。
type MirrorConfig struct {
	BaseURL         string  `json:"base_url"`
	RateLimit       float64 `json:"rate_limit"`
	Burst           int     `json:"burst"`
	CacheTTLSeconds int     `json:"cache_ttl_seconds"`
}

// OperatorAccount 返回运营账户，优先使用显式配置。
func (h HederaConfig) OperatorAccount() string {
	if id := strings.TrimSpace(h.OperatorID); id != "" {
		return id
	}
	return strings.TrimSpace(os.Getenv(h.OperatorIDEnv))
}

// OperatorKey 从环境变量读取运营私钥。
func (h HederaConfig) OperatorKey() string {
	return strings.TrimSpace(os.Getenv(h.OperatorKeyEnv))
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string   `json:"provider"`
	Model          string   `json:"model"`
	BaseURL        string   `json:"base_url"`
	APIKeyEnv      string   `json:"api_key_env"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Temperature    *float32 `json:"temperature"`
}

// APIKey 从环境变量读取模型服务密钥。
func (l LLMConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(l.APIKeyEnv))
}

// AgentConfig 控制对话代理的工具循环。
type AgentConfig struct {
	MaxToolRounds int `json:"max_tool_rounds"`
	MemoryDepth   int `json:"memory_depth"`
}

// StorageConfig 统一描述 MySQL、Redis 等后端的连接信息。
type StorageConfig struct {
	Conversation ConversationStoreConfig `json:"conversation"`
	Cache        CacheConfig             `json:"cache"`
}

// ConversationStoreConfig 支持 memory（文件）与 mysql 两种实现。
type ConversationStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	DSNEnv string `json:"dsn_env"`
}

// ResolveDSN 返回显式 DSN 或环境变量中的 DSN。
func (c ConversationStoreConfig) ResolveDSN() string {
	return resolveSecret(c.DSN, c.DSNEnv)
}

// CacheConfig 描述镜像节点查询缓存。
type CacheConfig struct {
	Driver      string `json:"driver"`
	Address     string `json:"address"`
	PasswordEnv string `json:"password_env"`
	DB          int    `json:"db"`
	Prefix      string `json:"prefix"`
}

// Password 读取 Redis 密码。
func (c CacheConfig) Password() string {
	return strings.TrimSpace(os.Getenv(c.PasswordEnv))
}

// TaskConfig 描述异步对话任务的存储与队列。
type TaskConfig struct {
	Store      TaskStoreConfig `json:"store"`
	Queue      QueueConfig     `json:"queue"`
	Workers    int             `json:"workers"`
	MaxRetries int             `json:"max_retries"`
}

// TaskStoreConfig 可选择 memory 或 mysql。
type TaskStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	DSNEnv string `json:"dsn_env"`
}

// ResolveDSN 返回显式 DSN 或环境变量中的 DSN。
func (c TaskStoreConfig) ResolveDSN() string {
	return resolveSecret(c.DSN, c.DSNEnv)
}

// QueueConfig 可选择 memory、redis 或 rabbitmq。
type QueueConfig struct {
	Driver  string `json:"driver"`
	Address string `json:"address"`
	URLEnv  string `json:"url_env"`
	Name    string `json:"name"`
	Buffer  int    `json:"buffer"`
	// Shards 是 Redis 队列按会话划分的 list 数量。
	Shards int `json:"shards"`
}

// ResolveAddress 返回显式地址或环境变量中的连接串。
func (q QueueConfig) ResolveAddress() string {
	return resolveSecret(q.Address, q.URLEnv)
}

// PluginsConfig 指向插件管理器的 YAML 配置。
type PluginsConfig struct {
	ConfigPath string `json:"config_path"`
}

// KnowledgeConfig 指向静态知识库。
type KnowledgeConfig struct {
	Path       string `json:"path"`
	MaxResults int    `json:"max_results"`
}

// AuthConfig 控制 API 的 Bearer 令牌认证。
type AuthConfig struct {
	Mode      string   `json:"mode"`
	Tokens    []string `json:"tokens"`
	TokensEnv string   `json:"tokens_env"`
}

// ResolveTokens 合并配置文件与环境变量（逗号分隔）中的令牌。
func (a AuthConfig) ResolveTokens() []string {
	var out []string
	for _, t := range a.Tokens {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if a.TokensEnv != "" {
		for _, t := range strings.Split(os.Getenv(a.TokensEnv), ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// AlertingConfig 控制任务失败时的告警渠道。
type AlertingConfig struct {
	WebhookURL    string `json:"webhook_url"`
	WebhookURLEnv string `json:"webhook_url_env"`
	// WebhookFormat 为 slack 或 dingtalk，决定消息体格式。
	WebhookFormat string `json:"webhook_format"`
}

// ResolveWebhookURL 返回告警 Webhook 地址，未配置时为空。
func (a AlertingConfig) ResolveWebhookURL() string {
	return resolveSecret(a.WebhookURL, a.WebhookURLEnv)
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// ResolvePath 依次使用命令行参数、环境变量与默认值确定配置文件路径。
func ResolvePath(flagValue, fallback string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return fallback
}

// LoadDotEnv 加载 .env 文件，文件不存在时忽略。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("检查环境文件失败: %w", err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("加载环境文件 %s 失败: %w", p, err)
		}
	}
	return nil
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default 返回仅包含默认值的配置，baseDir 用于解析相对路径。
func Default(baseDir string) *Config {
	var cfg Config
	cfg.applyDefaults(baseDir)
	return &cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Hedera.Network == "" {
		c.Hedera.Network = "testnet"
	}
	if c.Hedera.OperatorIDEnv == "" {
		c.Hedera.OperatorIDEnv = "HEDERA_OPERATOR_ID"
	}
	if c.Hedera.OperatorKeyEnv == "" {
		c.Hedera.OperatorKeyEnv = "HEDERA_OPERATOR_KEY"
	}
	if c.Hedera.Mode == "" {
		c.Hedera.Mode = "autonomous"
	}
	c.Hedera.NetworksFile = resolvePath(baseDir, c.Hedera.NetworksFile)
	if c.Hedera.Mirror.RateLimit <= 0 {
		c.Hedera.Mirror.RateLimit = 10
	}
	if c.Hedera.Mirror.Burst <= 0 {
		c.Hedera.Mirror.Burst = 5
	}
	if c.Hedera.Mirror.CacheTTLSeconds <= 0 {
		c.Hedera.Mirror.CacheTTLSeconds = int(mirror.DefaultCacheTTL / time.Second)
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	if c.LLM.APIKeyEnv == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.APIKeyEnv = "GEMINI_API_KEY"
		default:
			c.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Agent.MaxToolRounds <= 0 {
		c.Agent.MaxToolRounds = 5
	}
	if c.Agent.MemoryDepth <= 0 {
		c.Agent.MemoryDepth = 10
	}

	if c.Storage.Conversation.Driver == "" {
		c.Storage.Conversation.Driver = "memory"
	}
	if c.Storage.Cache.Driver == "" {
		c.Storage.Cache.Driver = "memory"
	}
	if c.Storage.Cache.Prefix == "" {
		c.Storage.Cache.Prefix = "hedera-agent:mirror:"
	}

	if c.Task.Store.Driver == "" {
		c.Task.Store.Driver = "memory"
	}
	if c.Task.Queue.Driver == "" {
		c.Task.Queue.Driver = "memory"
	}
	if c.Task.Queue.Name == "" {
		c.Task.Queue.Name = "hedera-agent-tasks"
	}
	if c.Task.Queue.Buffer <= 0 {
		c.Task.Queue.Buffer = 128
	}
	if c.Task.Queue.Shards <= 0 {
		c.Task.Queue.Shards = 4
	}
	if c.Task.Workers <= 0 {
		c.Task.Workers = 2
	}
	if c.Task.MaxRetries <= 0 {
		c.Task.MaxRetries = 3
	}

	c.Plugins.ConfigPath = resolvePath(baseDir, c.Plugins.ConfigPath)
	c.Knowledge.Path = resolvePath(baseDir, c.Knowledge.Path)
	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 3
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}
	if c.Auth.TokensEnv == "" {
		c.Auth.TokensEnv = "HEDERA_AGENT_TOKENS"
	}

	if c.Alerting.WebhookURLEnv == "" {
		c.Alerting.WebhookURLEnv = "HEDERA_AGENT_ALERT_WEBHOOK"
	}
	if c.Alerting.WebhookFormat == "" {
		c.Alerting.WebhookFormat = "slack"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}

// Validate 校验取值是否在支持范围内。
func (c *Config) Validate() error {
	switch strings.ToLower(c.Hedera.Mode) {
	case "autonomous", "auto", "returnbytes", "return_bytes", "human":
	default:
		return fmt.Errorf("不支持的执行模式: %s", c.Hedera.Mode)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("不支持的模型提供方: %s", c.LLM.Provider)
	}
	if err := oneOf("会话存储驱动", c.Storage.Conversation.Driver, "memory", "mysql"); err != nil {
		return err
	}
	if err := oneOf("缓存驱动", c.Storage.Cache.Driver, "none", "memory", "redis"); err != nil {
		return err
	}
	if err := oneOf("任务存储驱动", c.Task.Store.Driver, "memory", "mysql"); err != nil {
		return err
	}
	if err := oneOf("任务队列驱动", c.Task.Queue.Driver, "memory", "redis", "rabbitmq"); err != nil {
		return err
	}
	if err := oneOf("认证模式", c.Auth.Mode, "disabled", "token"); err != nil {
		return err
	}
	if err := oneOf("告警格式", c.Alerting.WebhookFormat, "slack", "dingtalk"); err != nil {
		return err
	}
	return nil
}

func oneOf(kind, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("不支持的%s: %s", kind, value)
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func resolveSecret(value, env string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
