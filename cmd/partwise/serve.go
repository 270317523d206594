package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/partwise/partwise/internal/config"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		mode     string
		httpAddr string
		grpcAddr string
		noGRPC   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, logger, cleanup, err := flags.open(ctx, func(cfg *config.Config) {
				if mode != "" {
					cfg.Mode = config.Mode(mode)
				}
				if httpAddr != "" {
					cfg.HTTP.Addr = httpAddr
				}
				if grpcAddr != "" {
					cfg.GRPC.Addr = grpcAddr
				}
				if noGRPC {
					cfg.GRPC.Enabled = false
				}
			})
			if err != nil {
				return err
			}
			defer cleanup()

			logger.Info("starting partwise", zap.String("version", version), zap.String("commit", commit))
			return a.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "surfaces to serve: all, http, grpc")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	cmd.Flags().BoolVar(&noGRPC, "no-grpc", false, "disable the gRPC API")
	return cmd
}
