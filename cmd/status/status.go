package status

import (
	"context"
	"encoding/json"
	"os"
	"time"

	mpcgrpc "github.com/kashguard/go-mpc-oracle/internal/mpc/grpc"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/party"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/protocol"
	"github.com/kashguard/go-mpc-oracle/internal/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	var endpoint string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Asks a node over gRPC whether it holds a usable key",
		Run: func(cmd *cobra.Command, args []string) {
			res, err := checkStatus(cmd.Context(), endpoint, timeout)
			if err != nil {
				log.Fatal().Err(err).Str("endpoint", endpoint).Msg("Failed to check node status")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				log.Fatal().Err(err).Msg("Failed to print status")
			}
		},
	}

	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "localhost:9090", "gRPC endpoint of the node")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Call timeout")
	return cmd
}

func checkStatus(ctx context.Context, endpoint string, timeout time.Duration) (*protocol.StatusResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := mpcgrpc.NewGRPCClient(&mpcgrpc.ClientConfig{
		TLSEnabled:    util.GetEnvAsBool("MPC_TLS_ENABLED", false),
		TLSCertFile:   util.GetEnv("MPC_TLS_CERT_FILE", "/app/certs/node.crt"),
		TLSKeyFile:    util.GetEnv("MPC_TLS_KEY_FILE", "/app/certs/node.key"),
		TLSCACertFile: util.GetEnv("MPC_TLS_CA_CERT_FILE", "/app/certs/ca.crt"),
		Timeout:       timeout,
	}, "", party.PeerInfo{ID: "status-cli"}, func() []party.PeerInfo { return nil })
	defer client.Close()

	res := new(protocol.StatusResponse)
	peer := party.PeerInfo{ID: endpoint, Addrs: []string{endpoint}}
	if err := client.Call(ctx, peer, protocol.MethodCheckStatus, nil, res); err != nil {
		return nil, err
	}
	return res, nil
}
