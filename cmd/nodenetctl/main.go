package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

type globalFlags struct {
	configPath string
	storeKind  string
	dbPath     string
	logLevel   string
	logFormat  string
}

func newRootCmd(out io.Writer) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "nodenetctl",
		Short:         "Create, step and inspect node nets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(io.Discard)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (created with defaults when missing)")
	pf.StringVar(&flags.storeKind, "store", "", "store backend override: memory|sqlite")
	pf.StringVar(&flags.dbPath, "db-path", "", "sqlite database path override")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level override")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format override: console|json")

	root.AddCommand(
		newInitCmd(flags),
		newDemoCmd(flags),
		newListCmd(flags),
		newStepCmd(flags),
		newRunCmd(flags),
		newShowCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newDeleteCmd(flags),
		newTypesCmd(flags),
	)
	return root
}
