package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/CyberBigfoot/CleanSheet/internal/config"
	"github.com/CyberBigfoot/CleanSheet/internal/server"
)

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the sanitization service (HTTP API + sandbox orchestration)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "work-dir",
				Usage:   "Directory for per-job working files",
				Sources: cli.EnvVars("CS_STORAGE_WORK_DIR"),
			},
			&cli.StringFlag{
				Name:    "sandbox-backend",
				Usage:   "Sandbox backend (docker, local)",
				Sources: cli.EnvVars("CS_SANDBOX_BACKEND"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if v := cmd.String("work-dir"); v != "" {
				cfg.Storage.WorkDir = v
			}
			if v := cmd.String("sandbox-backend"); v != "" {
				cfg.Sandbox.Backend = v
			}
			if v := cmd.String("log-level"); v != "" {
				cfg.Logging.Level = v
			}

			return server.Run(ctx, cfg)
		},
	}
}
