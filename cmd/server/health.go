package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/tutorlens/internal/status"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var healthAddr string

// healthCmd queries the gRPC health service of a running proxy.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query the gRPC health service of a running proxy",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "gRPC address (default localhost:$GRPC_PORT)")
}

func runHealth(cmd *cobra.Command, _ []string) error {
	addr := healthAddr
	if addr == "" {
		if cfg.GRPCPort == "" {
			return fmt.Errorf("no gRPC address: set --addr or GRPC_PORT")
		}
		addr = "localhost:" + cfg.GRPCPort
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	st, err := status.Check(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", status.ServiceName, st)
	if st != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%s is %s", status.ServiceName, st)
	}
	return nil
}
