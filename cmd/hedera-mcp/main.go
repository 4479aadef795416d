// Command hedera-mcp serves the Hedera toolkit over the Model Context
// Protocol on standard input and output.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hedera-agent-kit/internal/config"
	"hedera-agent-kit/internal/network"
	"hedera-agent-kit/pkg/kit"
	"hedera-agent-kit/pkg/logger"
	"hedera-agent-kit/pkg/mirror"
	"hedera-agent-kit/pkg/plugin"
	"hedera-agent-kit/pkg/plugins"
	"hedera-agent-kit/pkg/toolkit/mcp"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to agent.json (defaults to HEDERA_AGENT_CONFIG or configs/agent.json)")
		mode       = flag.String("mode", "", "autonomous or returnBytes; overrides the configured mode")
		account    = flag.String("account", "", "acting account id, required in returnBytes mode")
		tools      = flag.String("tools", "", "comma separated tool allowlist")
	)
	flag.Parse()

	if err := run(*configPath, *mode, *account, *tools); err != nil {
		log.Fatalf("hedera-mcp: %v", err)
	}
}

func run(configPath, modeFlag, account, toolsFlag string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	path := config.ResolvePath(configPath, filepath.Join("configs", "agent.json"))
	cfg := config.Default(".")
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	}
	// Standard output carries the protocol.
	cfg.Logging.OutputPaths = []string{"stderr"}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	defs, err := network.LoadDefinitions(cfg.Hedera.NetworksFile)
	if err != nil {
		return err
	}
	def, err := defs.Lookup(cfg.Hedera.Network)
	if err != nil {
		return err
	}
	client, err := network.NewClient(cfg.Hedera.Network, def, network.Operator{
		AccountID:  cfg.Hedera.OperatorAccount(),
		PrivateKey: cfg.Hedera.OperatorKey(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	mirrorURL := def.MirrorURL
	if cfg.Hedera.Mirror.BaseURL != "" {
		mirrorURL = cfg.Hedera.Mirror.BaseURL
	}
	mirrorClient, err := mirror.NewClient(mirrorURL,
		mirror.WithRateLimit(cfg.Hedera.Mirror.RateLimit, cfg.Hedera.Mirror.Burst),
		mirror.WithCache(mirror.NewMemoryCache(), time.Duration(cfg.Hedera.Mirror.CacheTTLSeconds)*time.Second),
		mirror.WithLogger(logger.Named("mirror")),
	)
	if err != nil {
		return err
	}

	if modeFlag == "" {
		modeFlag = cfg.Hedera.Mode
	}
	mode, err := kit.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	managerCfg := plugin.ManagerConfig{}
	if cfg.Plugins.ConfigPath != "" {
		if managerCfg, err = plugin.LoadManagerConfig(cfg.Plugins.ConfigPath); err != nil {
			return err
		}
	}
	manager, err := plugin.NewManager(managerCfg, plugin.WithLogger(logger.Named("plugin")))
	if err != nil {
		return err
	}
	registry, allowlist, err := manager.Build(plugins.Core()...)
	if err != nil {
		return err
	}
	if toolsFlag != "" {
		allowlist = nil
		for _, t := range strings.Split(toolsFlag, ",") {
			if t = strings.TrimSpace(t); t != "" {
				allowlist = append(allowlist, t)
			}
		}
	}

	tk, err := kit.NewToolkit(client, kit.Configuration{
		Tools:    allowlist,
		Registry: registry,
		Context:  kit.Context{AccountID: strings.TrimSpace(account), Mode: mode},
		Mirror:   mirrorClient,
		Logger:   logger.Named("toolkit"),
	})
	if err != nil {
		return fmt.Errorf("build toolkit: %w", err)
	}
	logger.L().Info("serving MCP over stdio", "tools", len(tk.Tools()), "mode", string(mode), "network", cfg.Hedera.Network)
	return mcp.ServeStdio(tk, mcp.Options{Name: "Hedera Agent Toolkit"})
}
