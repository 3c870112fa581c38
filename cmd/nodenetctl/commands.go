package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"nodenet/internal/config"
	"nodenet/internal/logging"
	"nodenet/internal/storage"
	api "nodenet/pkg/nodenet"
)

func (f *globalFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if f.storeKind != "" {
		cfg.Store.Kind = f.storeKind
	}
	if f.dbPath != "" {
		cfg.Store.SQLitePath = f.dbPath
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Logging.Format = f.logFormat
	}
	return cfg, cfg.Validate()
}

// withClient opens a client for the duration of fn. Loaded nets are saved
// when the client closes.
func (f *globalFlags) withClient(ctx context.Context, fn func(*api.Client) error) (err error) {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Component: "nodenetctl",
		Out:       os.Stderr,
	})
	client, err := api.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	if err := client.Init(ctx); err != nil {
		_ = client.Close()
		return err
	}
	defer func() {
		if closeErr := client.Close(); err == nil {
			err = closeErr
		}
	}()
	return fn(client)
}

func newInitCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the config file and initialize the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.configPath == "" {
				flags.configPath = "nodenet.yaml"
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := config.Save(flags.configPath, cfg); err != nil {
				return err
			}
			store, err := storage.NewStore(cfg.Store.Kind, cfg.Store.SQLitePath)
			if err != nil {
				return err
			}
			defer func() {
				_ = storage.CloseIfSupported(store)
			}()
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized store=%s config=%s\n", cfg.Store.Kind, flags.configPath)
			return nil
		},
	}
}

func newDemoCmd(flags *globalFlags) *cobra.Command {
	var (
		steps int
		light float64
	)
	cmd := &cobra.Command{
		Use:   "demo [uid]",
		Short: "Create the demo net, optionally stepping it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := "demo"
			if len(args) == 1 {
				uid = args[0]
			}
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				summary, err := client.CreateDemo(cmd.Context(), uid)
				if err != nil {
					return err
				}
				if steps > 0 {
					client.SetDatasource(api.DemoDatasource, light)
					if summary, err = client.Step(cmd.Context(), api.StepRequest{UID: uid, Steps: steps}); err != nil {
						return err
					}
				}
				printSummary(cmd.OutOrStdout(), summary)
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%g\n", api.DemoDatatarget, client.Datatarget(api.DemoDatatarget))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "steps to run after creation")
	cmd.Flags().Float64Var(&light, "light", 1, "value of the light datasource")
	return cmd
}

func newListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored and loaded nets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				nets, err := client.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(nets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no nodenets")
					return nil
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "UID\tNAME\tSTEP\tNODES\tLINKS")
				for _, n := range nets {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", n.UID, n.Name,
						humanize.Comma(int64(n.Step)), humanize.Comma(int64(n.Nodes)), humanize.Comma(int64(n.Links)))
				}
				return w.Flush()
			})
		},
	}
}

func newStepCmd(flags *globalFlags) *cobra.Command {
	var (
		steps   int
		sources []string
	)
	cmd := &cobra.Command{
		Use:   "step <uid>",
		Short: "Step a net and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(sources)
			if err != nil {
				return err
			}
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				for name, v := range values {
					client.SetDatasource(name, v)
				}
				summary, err := client.Step(cmd.Context(), api.StepRequest{UID: args[0], Steps: steps, Save: true})
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps")
	cmd.Flags().StringSliceVar(&sources, "set", nil, "datasource values as name=value")
	return cmd
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	var (
		duration time.Duration
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <uid>",
		Short: "Run a net in the background for a while",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				if err := client.Start(cmd.Context(), uid, interval); err != nil {
					return err
				}
				timer := time.NewTimer(duration)
				select {
				case <-cmd.Context().Done():
				case <-timer.C:
				}
				timer.Stop()
				if err := client.Stop(uid); err != nil {
					return err
				}
				status, err := client.Status(uid)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "nodenet=%s step=%s\n", uid, humanize.Comma(int64(status.Step)))
				if status.LastError != "" {
					return fmt.Errorf("nodenet %s stopped at step %d: %s", uid, status.StoppedAtStep, status.LastError)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "for", time.Second, "how long to run")
	cmd.Flags().DurationVar(&interval, "interval", 0, "step interval (default from config)")
	return cmd
}

func newShowCmd(flags *globalFlags) *cobra.Command {
	var (
		nodespace string
		maxNodes  int
	)
	cmd := &cobra.Command{
		Use:   "show <uid>",
		Short: "Print the contents of one nodespace as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				data, err := client.NodespaceData(cmd.Context(), args[0], nodespace, maxNodes)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			})
		},
	}
	cmd.Flags().StringVar(&nodespace, "nodespace", "", "nodespace id (default Root)")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "limit the number of nodes shown")
	return cmd
}

func newExportCmd(flags *globalFlags) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export <uid>",
		Short: "Write a net snapshot as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				data, err := client.ExportJSON(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if outPath == "" {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return err
				}
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported nodenet=%s file=%s size=%s\n", args[0], outPath, humanize.Bytes(uint64(len(data))))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON snapshot and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				summary, err := client.ImportJSON(cmd.Context(), data)
				if err != nil {
					return err
				}
				printSummary(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
}

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a stored net",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				if err := client.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted nodenet=%s\n", args[0])
				return nil
			})
		},
	}
}

func newTypesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered node types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return flags.withClient(cmd.Context(), func(client *api.Client) error {
				for _, name := range client.NodeTypes() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func printSummary(out io.Writer, s api.StepSummary) {
	fmt.Fprintf(out, "nodenet=%s step=%s nodes=%s links=%s\n", s.UID,
		humanize.Comma(int64(s.Step)), humanize.Comma(int64(s.Nodes)), humanize.Comma(int64(s.Links)))
}

func parseAssignments(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: want name=value", pair)
		}
		var v float64
		if _, err := fmt.Sscanf(raw, "%g", &v); err != nil {
			return nil, fmt.Errorf("invalid value in %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}
