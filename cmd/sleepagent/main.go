package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/restwell/sleepagent/pkg/agent"
	"github.com/restwell/sleepagent/pkg/bus"
	"github.com/restwell/sleepagent/pkg/config"
	"github.com/restwell/sleepagent/pkg/gateway"
	"github.com/restwell/sleepagent/pkg/logger"
	"github.com/restwell/sleepagent/pkg/memory"
	"github.com/restwell/sleepagent/pkg/supervisor"
	"github.com/restwell/sleepagent/pkg/task"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const appName = "sleepagent"

func formatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

func printVersion() {
	fmt.Printf("%s %s\n", appName, formatVersion())
	if buildTime != "" {
		fmt.Printf("  Build: %s\n", buildTime)
	}
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	fmt.Printf("  Go: %s\n", goVer)
}

func main() {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	if err := executeCLI(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func getConfigPath() string {
	if p := os.Getenv("SLEEPAGENT_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".sleepagent", "config.json")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		if err := logger.SetLogFile(cfg.Log.File, cfg.Log.MaxBytes); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open log file %s: %v\n", cfg.Log.File, err)
		}
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*memory.SQLiteStore, error) {
	return memory.NewSQLiteStore(cfg.StoragePath())
}

// serveCmd runs the full agent: worker pool, retention sweeper, HTTP gateway
// and the supervisor announcement.
func serveCmd(debug bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if debug {
		logger.SetLevel(logger.DEBUG)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	taskBus := bus.NewTaskBus(100)
	defer taskBus.Close()

	pipeline := agent.NewPipeline(cfg, store)
	service := agent.NewService(taskBus, pipeline, cfg.Task.Workers)

	stm := memory.NewShortTermMemory(store, cfg.Memory.STMRetentionDays)
	sweeper, err := memory.NewSweeper(store, stm, cfg.Memory.SweepSchedule)
	if err != nil {
		return err
	}

	server := gateway.NewServer(cfg, taskBus, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = service.Run(ctx) }()
	sweeper.Start()
	go func() {
		if err := server.Start(); err != nil {
			logger.ErrorCF("gateway", "Server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	fmt.Printf("✓ %s listening on %s:%d (%d workers)\n",
		appName, cfg.Gateway.Host, cfg.Gateway.Port, cfg.Task.Workers)
	fmt.Println("Press Ctrl+C to stop")

	if cfg.Supervisor.URL != "" {
		supervisor.NewClient(cfg.Supervisor.URL).Announce(ctx,
			cfg.Agent.ID, cfg.Agent.Name, cfg.Agent.Version, cfg.Gateway.Port)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	sweeper.Stop()
	service.Stop()
	cancel()
	fmt.Println("✓ Stopped")
	return nil
}

// taskRunCmd processes a single task request read from a JSON file and prints
// the result.
func taskRunCmd(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}

	var req task.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse task file: %w", err)
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	result := agent.NewPipeline(cfg, store).Process(context.Background(), req)
	return printJSON(result)
}

// consoleCmd runs an interactive REPL where each line is a task request in
// JSON. Useful for poking at the pipeline without the HTTP surface.
func consoleCmd() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline := agent.NewPipeline(cfg, store)

	fmt.Printf("%s task console (paste a task request as JSON, 'exit' to quit)\n\n", appName)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          appName + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".sleepagent_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		var req task.Request
		if err := json.Unmarshal([]byte(input), &req); err != nil {
			fmt.Printf("Invalid task JSON: %v\n", err)
			continue
		}
		if req.TaskID == "" {
			req.TaskID = uuid.NewString()
		}

		result := pipeline.Process(context.Background(), req)
		if err := printJSON(result); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
		fmt.Println()
	}
}

func memoryShowCmd(userID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	stm := memory.NewShortTermMemory(store, cfg.Memory.STMRetentionDays)
	ltm := memory.NewLongTermMemory(store)

	sessions, err := stm.Sessions(ctx, userID)
	if err != nil {
		return err
	}
	record, found, err := ltm.Record(ctx, userID)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"user_id": userID,
		"stm": map[string]interface{}{
			"sessions": sessions,
			"count":    len(sessions),
		},
		"ltm": map[string]interface{}{
			"available": found,
			"record":    record,
		},
	}
	return printJSON(out)
}

func memoryClearCmd(userID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	stmDeleted, err := store.Delete(ctx, userID, memory.KindSTM)
	if err != nil {
		return err
	}
	ltmDeleted, err := store.Delete(ctx, userID, memory.KindLTM)
	if err != nil {
		return err
	}

	fmt.Printf("Memory cleared for %s (stm: %v, ltm: %v)\n", userID, stmDeleted, ltmDeleted)
	return nil
}

// sweepCmd runs one retention pass over every stored user.
func sweepCmd() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stm := memory.NewShortTermMemory(store, cfg.Memory.STMRetentionDays)
	sweeper, err := memory.NewSweeper(store, stm, cfg.Memory.SweepSchedule)
	if err != nil {
		return err
	}

	if err := sweeper.SweepAll(context.Background()); err != nil {
		return err
	}
	fmt.Println("✓ Retention sweep completed")
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
