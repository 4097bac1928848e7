package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/nsrrkit/psgprep/internal/batch"
	"github.com/nsrrkit/psgprep/internal/conf"
	"github.com/nsrrkit/psgprep/internal/observability/metrics"
)

// processCommand runs batch preprocessing over a CSV manifest of
// recordings. SIGINT/SIGTERM cancel in-flight work; completed outputs
// stay published.
func processCommand(load func() *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <manifest.csv>",
		Short: "Preprocess the recordings listed in a manifest",
		Long: "Reads a CSV manifest with subject_id, edf_path and optional " +
			"annotation_path and cohort columns, conditions every recording " +
			"and writes one signal container plus one stage array per subject.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := load()

			items, err := batch.LoadManifest(args[0])
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("manifest %s lists no recordings", args[0])
			}

			m, err := metrics.NewPipelineMetrics(nil)
			if err != nil {
				return fmt.Errorf("registering metrics: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			summary, runErr := batch.New(settings, m).Run(ctx, items)
			if summary != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return err
				}
				if settings.Debug {
					if err := dumpMetrics(m, cmd.ErrOrStderr()); err != nil {
						return err
					}
				}
			}
			return runErr
		},
	}
	return cmd
}

// dumpMetrics writes the gathered Prometheus metrics in text exposition
// format, for post-run inspection of batch runs without a scrape target.
func dumpMetrics(m *metrics.PipelineMetrics, w io.Writer) error {
	families, err := m.Registry().Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}
	return nil
}
