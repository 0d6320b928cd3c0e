package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/CyberBigfoot/CleanSheet/internal/core/sandbox"
	"github.com/CyberBigfoot/CleanSheet/internal/errs"
	"github.com/CyberBigfoot/CleanSheet/internal/worker"
)

// workerCmd is the in-sandbox entrypoint. The host invokes it once per
// pipeline stage; the exit code is the stage's verdict, so failures here
// must never fall through to the generic CLI error exit.
func workerCmd() *cli.Command {
	return &cli.Command{
		Name:  "worker",
		Usage: "Run a single pipeline stage (invoked inside the sandbox)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "stage",
				Usage:    "Stage to run (normalize, disarm, rasterize, reconstruct, validate)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "input",
				Usage:    "Input path",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "output",
				Usage: "Output path",
			},
			&cli.StringFlag{
				Name:  "pages",
				Usage: "Rasterized page directory (validate stage)",
			},
			&cli.IntFlag{
				Name:  "dpi",
				Usage: "Raster resolution (rasterize stage)",
				Value: 200,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			stage := cmd.String("stage")
			err := worker.RunStage(ctx,
				stage,
				cmd.String("input"),
				cmd.String("output"),
				cmd.String("pages"),
				int(cmd.Int("dpi")),
			)
			if err == nil {
				return nil
			}

			log.Error().Err(err).Str("stage", stage).Msg("stage failed")
			if errs.Is(err, errs.KindReconstructionInvalid) {
				os.Exit(sandbox.ExitInvalid)
			}
			os.Exit(sandbox.ExitFailure)
			return nil
		},
	}
}
