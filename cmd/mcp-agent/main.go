// mcp-agent is an interactive conversational agent over MCP tool servers.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/effective-security/mcpagent/agent"
	"github.com/effective-security/mcpagent/callbacks"
	"github.com/effective-security/mcpagent/config"
	"github.com/effective-security/mcpagent/gateway"
	"github.com/effective-security/mcpagent/history"
	"github.com/effective-security/mcpagent/llmfactory"
	"github.com/effective-security/mcpagent/pkg/llms"
	"github.com/effective-security/mcpagent/pool"
	"github.com/effective-security/mcpagent/registry"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	cfgFile     string
	serversFile string
	llmFile     string
	verbose     bool
	debug       bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:           "mcp-agent",
		Short:         "Conversational agent over MCP tool servers",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	rootCmd.Flags().StringVar(&f.cfgFile, "cfg", "config.yaml", "agent configuration file")
	rootCmd.Flags().StringVar(&f.serversFile, "servers", "mcp_servers.json", "tool-server descriptor file")
	rootCmd.Flags().StringVar(&f.llmFile, "llm", "", "LLM provider configuration file")
	rootCmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "print task progress")
	rootCmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
	return rootCmd
}

func run(ctx context.Context, f *flags) error {
	if f.debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.ERROR)
	}

	cfg, err := config.Load(f.cfgFile)
	if err != nil {
		return err
	}
	servers, err := config.LoadServers(f.serversFile)
	if err != nil {
		return err
	}

	completer, err := newCompleter(cfg, f.llmFile)
	if err != nil {
		return err
	}

	mode := callbacks.ModeDefault
	if f.verbose {
		mode = callbacks.ModeVerbose
	}

	store := newHistoryStore(cfg)
	a := agent.New(
		cfg,
		servers,
		gateway.New(completer, cfg),
		pool.New(pool.DefaultDialer),
		registry.New(),
		store,
		agent.WithCallback(callbacks.NewPrinter(os.Stdout, mode)),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	states, err := a.Initialize(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	connected := 0
	for _, s := range states {
		if s.Status == pool.StatusConnected {
			connected++
		} else {
			fmt.Printf("  server %s: %s (%s)\n", s.ServerID, s.Status, s.Reason)
		}
	}
	fmt.Printf("mcp-agent ready: %d/%d servers connected, model %s\n", connected, len(states), cfg.LLM.Model)
	fmt.Println(`Type a request, or "quit" to exit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}

		response, err := a.ProcessRequest(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(response)
	}

	fmt.Println("bye")
	return scanner.Err()
}

// newHistoryStore keeps turns in memory unless a Redis address is
// configured, in which case each run gets a fresh conversation ID.
func newHistoryStore(cfg *config.Config) history.Store {
	cc := cfg.Conversation
	if cc.RedisAddr == "" {
		return history.NewMemoryStore(cc.MaxHistory)
	}
	client := redis.NewClient(&redis.Options{Addr: cc.RedisAddr})
	return history.NewRedisStore(client, cc.RedisPrefix, uuid.NewString(), cc.MaxHistory)
}

func newCompleter(cfg *config.Config, llmFile string) (llms.Completer, error) {
	if llmFile != "" {
		factory, err := llmfactory.Load(llmFile)
		if err != nil {
			return nil, err
		}
		return factory.DefaultCompleter()
	}
	return llmfactory.NewCompleter(&llmfactory.ProviderConfig{
		Name:         "default",
		Provider:     cfg.LLM.Provider,
		DefaultModel: cfg.LLM.Model,
	})
}
