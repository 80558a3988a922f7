package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/site-survey/internal/evidence"
	"github.com/ironsheep/site-survey/internal/pipeline"
)

func runCommand(a *app) *cobra.Command {
	var (
		elevation []string
		imagery   []string
		docs      string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one survey over rasters and a historical archive",
		Long: `Run detection on every elevation and imagery raster and on the historical
archive, fuse the observations into site candidates, validate them and write
findings.json and sites.geojson to the output directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.build(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if output == "" {
				output = a.settings.Output.Dir
			}

			res, err := c.pipeline.Run(ctx, pipeline.Input{
				ElevationFiles: elevation,
				ImageryFiles:   imagery,
				DocumentDir:    docs,
			})
			if res == nil {
				return err
			}
			if err != nil && !errors.Is(err, evidence.ErrNoEvidenceFound) {
				// a cancelled run still reports what finished
				a.logger.Warn("survey interrupted", zap.Error(err))
			}

			now := time.Now()
			written, werr := pipeline.WriteOutputs(output, res, now)
			if werr != nil {
				return werr
			}
			if c.store != nil {
				// an interrupted run is stored with status partial
				if _, serr := c.store.SaveFindings(context.WithoutCancel(ctx), res.Findings(now)); serr != nil {
					return serr
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %s, %d candidates (%d fused), %d failures\n",
				res.RunID, res.Status, len(res.Candidates), res.Fused, len(res.Failures))
			for _, f := range res.Failures {
				fmt.Fprintf(out, "  skipped %s\n", f)
			}
			for _, p := range written {
				fmt.Fprintf(out, "  wrote %s\n", p)
			}
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&elevation, "elevation", "e", nil, "Elevation raster (.asc), repeatable")
	cmd.Flags().StringSliceVarP(&imagery, "imagery", "i", nil, "Imagery raster (PNG/JPEG/TIFF with world file), repeatable")
	cmd.Flags().StringVarP(&docs, "docs", "d", "", "Historical archive with colonial_diaries/ and indigenous_maps/")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory, defaults to output.dir")
	return cmd
}
