package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/tsom/server/internal/config"
	"github.com/tsom/server/internal/core/event"
	coresys "github.com/tsom/server/internal/core/system"
	"github.com/tsom/server/internal/data"
	"github.com/tsom/server/internal/entity"
	"github.com/tsom/server/internal/handler"
	gonet "github.com/tsom/server/internal/net"
	"github.com/tsom/server/internal/net/packet"
	"github.com/tsom/server/internal/net/transport"
	"github.com/tsom/server/internal/scripting"
	"github.com/tsom/server/internal/system"
	"github.com/tsom/server/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, version uint32) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              tsom server                  \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mServer:\033[0m %s \033[90m(protocol %d)\033[0m\n\n", serverName, version)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 40 - len(label) - len(numStr)
	if dotsLen < 2 {
		dotsLen = 2
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("TSOM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Server.StartTime = time.Now().Unix()

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ProtocolVersion)

	// 3. Scripts, then the entity classes whose init callbacks they define
	printSection("Data")
	engine, err := scripting.NewEngine(cfg.Scripting.Dir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer engine.Close()
	printOK("Lua scripts loaded")

	classes := entity.NewRegistry()
	n, err := data.LoadEntityClasses(cfg.World.ClassFile, classes, engine.InitFunc)
	if err != nil {
		return fmt.Errorf("entity classes: %w", err)
	}
	printStat("Entity classes", n)

	// 4. World
	bus := event.NewBus()
	w, err := world.New(world.Options{
		Name:                cfg.World.Name,
		PlayerClass:         cfg.World.PlayerClass,
		ChunkRadius:         cfg.World.ChunkRadius,
		ChunkSize:           cfg.World.ChunkSize,
		StateUpdateInterval: cfg.World.StateUpdateInterval,
	}, classes, bus, log)
	if err != nil {
		return fmt.Errorf("world: %w", err)
	}
	system.SubscribeScriptHooks(bus, engine)
	printStat("Network strings", w.Strings().Len())
	fmt.Println()

	// 5. Sessions and transport
	deps := &handler.Deps{
		World:             w,
		MaxNicknameLength: cfg.World.MaxNicknameLength,
		Log:               log,
	}
	manager := gonet.NewManager(handler.NewFactory(deps), gonet.ManagerOptions{
		ProtocolVersion: cfg.Server.ProtocolVersion,
		MaxSessions:     cfg.Network.MaxPeers,
		Session:         sessionOptions(cfg.RateLimit),
	}, log)

	host, err := transport.Listen(cfg.Network.BindAddress, cfg.Network.Port, cfg.Network.MaxPeers, cfg.Network.ChannelCount, log)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer host.Close()

	// 6. Create systems and register with runner
	runner := coresys.NewRunner()
	runner.OnOverrun = func(tick uint64, took, budget time.Duration) {
		log.Warn("tick overrun", zap.Uint64("tick", tick), zap.Duration("took", took), zap.Duration("budget", budget))
	}
	runner.Register(system.NewInputSystem(host, manager, cfg.Network.MaxEventsPerTick, log))
	runner.Register(system.NewEventSystem(bus))
	runner.Register(system.NewWorldSystem(w))
	runner.Register(system.NewOutputSystem(host))
	runner.Register(system.NewCleanupSystem(w.ECS(), log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.Watchdog.Enabled {
		wd := system.NewWatchdog(runner, cfg.Watchdog.StallTimeout, cfg.Watchdog.CheckInterval, func(stalled time.Duration) {
			log.Fatal("game loop unresponsive, aborting", zap.Duration("stalled", stalled))
		}, log)
		go wd.Run(ctx)
	}

	// 7. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printSection("Ready")
	printReady(fmt.Sprintf("Listening on %s:%d", cfg.Network.BindAddress, cfg.Network.Port))
	printReady(fmt.Sprintf("Game loop running (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			manager.Shutdown(packet.ReasonServerShutdown)
			host.Flush()
			log.Info("server stopped", zap.Uint64("ticks", runner.Ticks()))
			return nil
		}
	}
}

func sessionOptions(cfg config.RateLimitConfig) gonet.SessionOptions {
	if !cfg.Enabled {
		return gonet.SessionOptions{}
	}
	return gonet.SessionOptions{
		PacketRate:      rate.Limit(cfg.PacketsPerSecond),
		PacketBurst:     cfg.PacketBurst,
		UnexpectedRate:  rate.Limit(cfg.UnexpectedPerSecond),
		UnexpectedBurst: cfg.UnexpectedBurst,
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
