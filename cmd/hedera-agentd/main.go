package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hedera-agent-kit/internal/agent"
	"hedera-agent-kit/internal/api"
	"hedera-agent-kit/internal/auth"
	"hedera-agent-kit/internal/config"
	"hedera-agent-kit/internal/knowledge"
	"hedera-agent-kit/internal/llm"
	"hedera-agent-kit/internal/llm/gemini"
	"hedera-agent-kit/internal/llm/openai"
	"hedera-agent-kit/internal/network"
	"hedera-agent-kit/internal/observability/alerting"
	"hedera-agent-kit/internal/observability/metrics"
	"hedera-agent-kit/internal/storage/mysql"
	"hedera-agent-kit/internal/storage/redis"
	"hedera-agent-kit/internal/task"
	"hedera-agent-kit/internal/web3"
	"hedera-agent-kit/internal/web3/ethereum"
	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/logger"
	"hedera-agent-kit/pkg/mirror"
	"hedera-agent-kit/pkg/plugin"
	"hedera-agent-kit/pkg/plugins"
)

// main 是 hedera-agentd 守护进程的入口。
func main() {
	configFlag := flag.String("config", "", "配置文件路径，默认读取 HEDERA_AGENT_CONFIG 或 configs/agent.json")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.ResolvePath(*configFlag, filepath.Join("configs", "agent.json"))); err != nil {
		log.Fatalf("hedera-agentd 运行失败: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Sync()
	lg := logger.Named("hedera-agentd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 账本网络与运营账户。
	defs, err := network.LoadDefinitions(cfg.Hedera.NetworksFile)
	if err != nil {
		return err
	}
	netDef, err := defs.Lookup(cfg.Hedera.Network)
	if err != nil {
		return err
	}
	client, err := network.NewClient(cfg.Hedera.Network, netDef, network.Operator{
		AccountID:  cfg.Hedera.OperatorAccount(),
		PrivateKey: cfg.Hedera.OperatorKey(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	defaultMode, err := kit.ParseMode(cfg.Hedera.Mode)
	if err != nil {
		return err
	}
	if defaultMode == kit.ModeAutonomous && client.GetOperatorAccountID().Account == 0 {
		lg.Warn("未配置运营账户，自主模式下的交易将无法签名")
	}

	mirrorClient, closeCache, err := buildMirror(ctx, cfg, netDef.MirrorURL)
	if err != nil {
		return err
	}
	defer closeCache()

	// 插件：内置插件 + 中继插件 + 配置文件中的外部插件。
	builtins := plugins.Core()
	if !cfg.Hedera.DisableRelay && netDef.JSONRPCURL != "" {
		relay, err := ethereum.NewClient(ctx, ethereum.Config{
			Name:   cfg.Hedera.Network,
			RPCURL: netDef.JSONRPCURL,
			Notes:  netDef.Description,
		})
		if err != nil {
			lg.Warn("JSON-RPC 中继不可用，跳过 EVM 查询插件", slog.Any("error", err))
		} else {
			defer relay.Close()
			builtins = append(builtins, web3.Plugin(relay))
		}
	}
	registry, allowlist, err := buildRegistry(cfg, builtins)
	if err != nil {
		return err
	}
	toolkits := agent.NewToolkitFactory(client, kit.Configuration{
		Tools:    allowlist,
		Registry: registry,
		Mirror:   mirrorClient,
		Logger:   logger.Named("toolkit"),
	})

	llmClient, err := createLLMClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	conversation, err := buildConversationRepository(ctx, cfg)
	if err != nil {
		return err
	}
	if closer, ok := conversation.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	opts := []agent.Option{
		agent.WithMemoryDepth(cfg.Agent.MemoryDepth),
		agent.WithMaxToolRounds(cfg.Agent.MaxToolRounds),
		agent.WithConversationRepository(conversation),
		agent.WithLLMTimeout(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second),
		agent.WithDefaultMode(defaultMode),
		agent.WithTemperature(cfg.LLM.Temperature),
		agent.WithLogger(logger.Named("agent")),
		agent.WithObservers(metrics.ObserveTool, func(err error) {
			metrics.ObserveLLM(cfg.LLM.Provider, err)
		}),
	}
	if cfg.Knowledge.Path != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Path, cfg.Knowledge.MaxResults)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithKnowledgeProvider(provider))
	}
	ag := agent.New(llmClient, toolkits, opts...)

	// 异步任务。
	taskStore, err := buildTaskStore(ctx, cfg)
	if err != nil {
		return err
	}
	taskQueue, err := buildTaskQueue(cfg)
	if err != nil {
		_ = taskStore.Close()
		return err
	}
	taskService := task.NewService(taskStore, taskQueue, cfg.Task.MaxRetries)
	defer func() {
		if err := taskService.Close(); err != nil {
			lg.Error("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logger.Named("alerting")}}
	if url := cfg.Alerting.ResolveWebhookURL(); url != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:    url,
			Format: alerting.Channel(strings.ToLower(cfg.Alerting.WebhookFormat)),
		})
	}
	processor := task.NewProcessor(ag, taskStore, taskQueue, taskQueue,
		task.WithWorkerCount(cfg.Task.Workers),
		task.WithProcessorLogger(logger.Named("task")),
		task.WithRecoveryHandler(task.ApologyRecovery{}),
		task.WithAlertDispatcher(alerting.NewFanout(notifiers...)),
	)
	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	authService, err := auth.NewService(auth.Config{
		Mode:   auth.Mode(cfg.Auth.Mode),
		Tokens: cfg.Auth.ResolveTokens(),
	})
	if err != nil {
		return err
	}

	if addr := cfg.Server.MetricsAddress; addr != "" {
		go func() {
			if err := metrics.StartServer(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("指标服务退出", slog.String("addr", addr), slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, api.Dependencies{
		Agent:    ag,
		Tasks:    taskService,
		Toolkits: toolkits,
		Auth:     authService,
	})
	lg.Info("hedera-agentd 启动",
		slog.String("network", cfg.Hedera.Network),
		slog.String("mode", string(defaultMode)),
		slog.String("llm", cfg.LLM.Provider),
		slog.Int("plugins", len(registry.Plugins())),
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildMirror 创建镜像节点客户端，并按配置挂载内存或 Redis 缓存。
func buildMirror(ctx context.Context, cfg *config.Config, baseURL string) (*mirror.Client, func(), error) {
	if cfg.Hedera.Mirror.BaseURL != "" {
		baseURL = cfg.Hedera.Mirror.BaseURL
	}
	opts := []mirror.Option{
		mirror.WithRateLimit(cfg.Hedera.Mirror.RateLimit, cfg.Hedera.Mirror.Burst),
		mirror.WithLogger(logger.Named("mirror")),
		mirror.WithObserver(metrics.ObserveMirror),
	}
	ttl := time.Duration(cfg.Hedera.Mirror.CacheTTLSeconds) * time.Second
	closeCache := func() {}
	switch cfg.Storage.Cache.Driver {
	case "none":
	case "redis":
		cache, err := redis.NewCache(ctx, redis.Config{
			Address:  cfg.Storage.Cache.Address,
			Password: cfg.Storage.Cache.Password(),
			DB:       cfg.Storage.Cache.DB,
			Prefix:   cfg.Storage.Cache.Prefix,
		})
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, mirror.WithCache(cache, ttl))
		closeCache = func() { _ = cache.Close() }
	default:
		opts = append(opts, mirror.WithCache(mirror.NewMemoryCache(), ttl))
	}
	client, err := mirror.NewClient(baseURL, opts...)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return client, closeCache, nil
}

// buildRegistry 通过插件管理器应用 plugins.yaml 中的开关、隔离策略与工具白名单。
func buildRegistry(cfg *config.Config, builtins []kit.Plugin) (*kit.Registry, []string, error) {
	managerCfg := plugin.ManagerConfig{}
	if cfg.Plugins.ConfigPath != "" {
		loaded, err := plugin.LoadManagerConfig(cfg.Plugins.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
		managerCfg = loaded
	}
	manager, err := plugin.NewManager(managerCfg, plugin.WithLogger(logger.Named("plugin")))
	if err != nil {
		return nil, nil, err
	}
	registry, allowlist, err := manager.Build(builtins...)
	if err != nil {
		return nil, nil, err
	}
	for _, status := range manager.Statuses() {
		logger.L().Info("插件状态",
			slog.String("plugin", status.ID),
			slog.String("state", string(status.State)),
			slog.String("source", string(status.Source)),
		)
	}
	return registry, allowlist, nil
}

func createLLMClient(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("模型提供方 %s 需要设置环境变量 %s", cfg.Provider, cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{APIKey: apiKey, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.Provider)
	}
}

func buildConversationRepository(ctx context.Context, cfg *config.Config) (mysql.ConversationRepository, error) {
	switch cfg.Storage.Conversation.Driver {
	case "mysql":
		return mysql.NewSQLConversationRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.Conversation.ResolveDSN(),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		})
	default:
		return mysql.NewMemoryConversationRepository(cfg.Runtime.DataDir)
	}
}

func buildTaskStore(ctx context.Context, cfg *config.Config) (task.Store, error) {
	switch cfg.Task.Store.Driver {
	case "mysql":
		return task.NewMySQLStore(ctx, cfg.Task.Store.ResolveDSN())
	default:
		return task.NewMemoryStore(), nil
	}
}

func buildTaskQueue(cfg *config.Config) (task.Queue, error) {
	q := cfg.Task.Queue
	switch q.Driver {
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:   q.ResolveAddress(),
			Queue:     q.Name,
			Shards:    q.Shards,
			BlockWait: 5 * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:      q.ResolveAddress(),
			Queue:    q.Name,
			Prefetch: cfg.Task.Workers,
			Durable:  true,
		})
	default:
		return task.NewMemoryQueue(q.Buffer), nil
	}
}
