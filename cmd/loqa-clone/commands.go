package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/loqalabs/loqa-clone/internal/config"
	"github.com/loqalabs/loqa-clone/internal/convert"
	"github.com/loqalabs/loqa-clone/internal/eventstore"
	"github.com/loqalabs/loqa-clone/internal/languages"
	"github.com/loqalabs/loqa-clone/internal/wavfile"
	"github.com/spf13/cobra"
)

func newLanguagesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				data, err := sonic.MarshalIndent(languages.All(), "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCODE")
			for _, l := range languages.All() {
				fmt.Fprintf(w, "%s\t%s\n", l.Name, l.Code)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "convert <input> <output.wav>",
		Short: "Convert an audio file to the canonical speaker WAV format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if verify {
				cfg.Converter.Verify = true
			}
			conv, err := convert.New(cfg.Converter)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := conv.ConvertFile(ctx, args[0], args[1]); err != nil {
				return err
			}
			format, err := wavfile.Inspect(args[1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d Hz, %d ch, %d-bit, %s\n",
				args[1], format.SampleRate, format.Channels, format.BitDepth, format.Duration)
			return err
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "fail unless the result matches the canonical format")
	return cmd
}

func newValidateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok: node=%s synth=%s port=%d\n", cfg.Node.ID, cfg.Synth.Mode, cfg.HTTP.Port)
			return err
		},
	}
}

func newJobsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "jobs <job-id>",
		Short: "Show the recorded timeline of a clone job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if cfg.EventStore.RetentionMode == "ephemeral" {
				return errors.New("job timeline disabled (event_store.retention_mode is ephemeral)")
			}
			log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			store, err := eventstore.Open(cmd.Context(), cfg.EventStore, log)
			if err != nil {
				return err
			}
			defer store.Close()

			events, err := store.ListJobEvents(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return fmt.Errorf("no events recorded for job %s", args[0])
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tTYPE\tTRACE\tPAYLOAD")
			for _, evt := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", evt.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"), evt.Type, evt.TraceID, evt.Payload)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events to show")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
