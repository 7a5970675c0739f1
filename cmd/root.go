package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/kashguard/go-mpc-oracle/cmd/cert"
	"github.com/kashguard/go-mpc-oracle/cmd/keyconfig"
	"github.com/kashguard/go-mpc-oracle/cmd/server"
	"github.com/kashguard/go-mpc-oracle/cmd/status"
	"github.com/kashguard/go-mpc-oracle/internal/util"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oracle-node",
	Short: "Threshold key node of the P2P oracle network",
	Long: `oracle-node runs one member of a threshold party.

The party jointly generates a secp256k1 key that no single node knows,
keeps one share per node and restores lost shares from t healthy partners.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		server.New(),
		status.New(),
		keyconfig.New(),
		cert.New(),
	)
}

// initLogger 全局日志级别与输出格式
func initLogger() {
	level, err := zerolog.ParseLevel(strings.ToLower(util.GetEnv("MPC_LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if util.GetEnvAsBool("MPC_LOG_PRETTY", false) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
