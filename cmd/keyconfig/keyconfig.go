package keyconfig

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/kashguard/go-mpc-oracle/internal/mpc/storage"
	"github.com/kashguard/go-mpc-oracle/internal/mpc/tss"
	"github.com/kashguard/go-mpc-oracle/internal/util"
	"github.com/kashguard/go-mpc-oracle/internal/util/command"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("keyconfig",
		newShowCmd(),
		newVerifyCmd(),
	)
}

type options struct {
	path       string
	passphrase string
}

func (o *options) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.path, "path", "p", util.GetEnv("MPC_KEY_CONFIG_PATH", storage.DefaultConfigFile), "Key config file")
}

func (o *options) load(ctx context.Context) (*storage.KeyConfig, error) {
	o.passphrase = util.GetEnv("MPC_KEY_CONFIG_PASSPHRASE", "")
	store, err := storage.NewFileKeyConfigStore(o.path, o.passphrase)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx)
}

// PublicView 不含分片的配置视图
type PublicView struct {
	Party     storage.PartyConfig `json:"party"`
	KeyID     string              `json:"keyId"`
	PublicKey string              `json:"publicKey"`
	Address   string              `json:"address"`
}

func newShowCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Prints the saved key config without the share",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := o.load(context.Background())
			if err != nil {
				log.Fatal().Err(err).Str("path", o.path).Msg("Failed to load key config")
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(PublicView{
				Party:     cfg.Party,
				KeyID:     cfg.Key.ID,
				PublicKey: cfg.Key.PublicKey,
				Address:   cfg.Key.Address,
			}); err != nil {
				log.Fatal().Err(err).Msg("Failed to print key config")
			}
		},
	}
	o.bind(cmd)
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Checks that the saved share and public key are well formed",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := o.load(context.Background())
			if err != nil {
				log.Fatal().Err(err).Str("path", o.path).Msg("Failed to load key config")
			}
			if err := Verify(cfg); err != nil {
				log.Fatal().Err(err).Str("key_id", cfg.Key.ID).Msg("Key config is invalid")
			}
			log.Info().Str("key_id", cfg.Key.ID).Str("address", cfg.Key.Address).Msg("Key config is valid")
		},
	}
	o.bind(cmd)
	return cmd
}

// Verify 检查分片可解析、公钥为规范形式且地址与公钥一致
func Verify(cfg *storage.KeyConfig) error {
	if cfg.Party.ID == "" || cfg.Party.T < 1 || cfg.Party.T > cfg.Party.Max {
		return errors.Errorf("invalid party %q t=%d max=%d", cfg.Party.ID, cfg.Party.T, cfg.Party.Max)
	}
	if cfg.Key.ID == "" {
		return errors.New("key id is empty")
	}
	share, err := tss.ScalarFromHex(cfg.Key.Share)
	if err != nil {
		return errors.Wrap(err, "invalid share")
	}
	if share.IsZero() {
		return errors.New("share is zero")
	}
	pub, err := tss.PointFromHex(cfg.Key.PublicKey)
	if err != nil {
		return errors.Wrap(err, "invalid public key")
	}
	if !tss.IsCanonical(pub) {
		return errors.New("public key is not canonical")
	}
	address, err := tss.PubToAddress(pub)
	if err != nil {
		return err
	}
	if !strings.EqualFold(address, cfg.Key.Address) {
		return errors.Errorf("address %s does not match public key address %s", cfg.Key.Address, address)
	}
	return nil
}
