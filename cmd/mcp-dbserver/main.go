// mcp-dbserver exposes a seeded SQLite shop database as an MCP tool server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/mcpagent/dbserver"
	"github.com/effective-security/mcpagent/mcp"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/mcpagent/mcp/transport/httptransport"
	"github.com/effective-security/mcpagent/mcp/transport/stdio"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

const serverVersion = "1.0.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	dbFile   string
	seedOnly bool
	seed     uint64
	httpAddr string
	debug    bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	rootCmd := &cobra.Command{
		Use:           "mcp-dbserver",
		Short:         "MCP tool server over a read-only shop database",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	rootCmd.Flags().StringVar(&f.dbFile, "db", "intelligent_shop.db", "SQLite database file")
	rootCmd.Flags().BoolVar(&f.seedOnly, "init", false, "create and seed the database, then exit")
	rootCmd.Flags().Uint64Var(&f.seed, "seed", 42, "random seed for generated data")
	rootCmd.Flags().StringVar(&f.httpAddr, "http", "", "serve over HTTP on this address instead of stdio")
	rootCmd.Flags().BoolVar(&f.debug, "debug", false, "enable debug logging")
	return rootCmd
}

func run(ctx context.Context, f *flags) error {
	if f.debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.ERROR)
	}

	if f.seedOnly {
		db, err := dbserver.Open(f.dbFile)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := dbserver.Seed(db, f.seed); err != nil {
			return err
		}
		fmt.Printf("seeded %s\n", f.dbFile)
		return nil
	}

	db, err := dbserver.Open(f.dbFile)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tr transport.Transport
	if f.httpAddr != "" {
		tr = httptransport.NewServerTransport("/mcp").WithAddr(f.httpAddr)
	} else {
		tr = stdio.NewServerTransport()
	}

	srv := mcp.NewServer(tr, "shop-db", serverVersion)
	if err := dbserver.RegisterTools(srv, db); err != nil {
		return err
	}

	return srv.Serve(ctx)
}
