package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsassist/opsassist/internal/dataset"
)

func newSeedCommand(opts Options) *cobra.Command {
	var (
		out     string
		count   int
		seed    int64
		upload  bool
		perFile int
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Generate a synthetic tickets dataset as parquet",
		Args:  cobra.NoArgs,
		Example: `  opsassist seed --out tickets.parquet --count 500
  opsassist seed --upload --count 5000 --per-file 1000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return fmt.Errorf("--count must be >= 1")
			}
			tickets := dataset.NewGenerator(seed).Generate(count)

			if upload {
				if opts.Store == nil {
					return fmt.Errorf("object store is not configured")
				}
				store, err := opts.Store(cmd.Context())
				if err != nil {
					return err
				}
				keys, err := dataset.Upload(cmd.Context(), store, opts.Database, opts.Table, tickets, perFile)
				if err != nil {
					return err
				}
				for _, key := range keys {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			}

			if err := dataset.WriteFile(out, tickets); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d tickets to %s\n", count, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "tickets.parquet", "Output parquet file")
	cmd.Flags().IntVar(&count, "count", 1000, "Number of tickets")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Random seed")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload to the object store instead of writing a file")
	cmd.Flags().IntVar(&perFile, "per-file", 0, "Tickets per uploaded file (0 puts all in one file)")
	return cmd
}
