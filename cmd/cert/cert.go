package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/kashguard/go-mpc-oracle/internal/util/command"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const organization = "Oracle Node"

func New() *cobra.Command {
	return command.NewSubcommandGroup("cert",
		newGenCmd(),
	)
}

func newGenCmd() *cobra.Command {
	var outDir string
	var hostnames []string

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate development certificates for gRPC mTLS between nodes",
		Run: func(cmd *cobra.Command, args []string) {
			if err := Generate(outDir, hostnames); err != nil {
				log.Fatal().Err(err).Msg("Failed to generate certificates")
			}
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "certs", "Output directory for certificates")
	cmd.Flags().StringSliceVar(&hostnames, "host", []string{"localhost", "127.0.0.1", "node-1", "node-2", "node-3"}, "Hostnames/IPs for the node certificate")

	return cmd
}

// entity 由 CA 签发的证书
type entity struct {
	name     string
	cn       string
	hosts    []string
	isServer bool
}

// Generate 生成 CA、节点证书（同时用作服务端与客户端）和 status 命令的客户端证书
func Generate(outDir string, hostnames []string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	log.Info().Msg("Generating CA certificate...")
	caKey, caCert, caPEM, caKeyPEM, err := generateCA()
	if err != nil {
		return err
	}
	if err := writePair(outDir, "ca", caPEM, caKeyPEM); err != nil {
		return err
	}

	entities := []entity{
		{name: "node", cn: "oracle-node", hosts: hostnames, isServer: true},
		{name: "client", cn: "oracle-cli"},
	}
	for _, e := range entities {
		log.Info().Str("name", e.name).Strs("hosts", e.hosts).Msg("Generating certificate...")
		certPEM, keyPEM, err := generateEntityCert(e, caCert, caKey)
		if err != nil {
			return err
		}
		if err := writePair(outDir, e.name, certPEM, keyPEM); err != nil {
			return err
		}
	}

	log.Info().Str("dir", outDir).Msg("Certificates generated successfully")
	return nil
}

func writePair(dir, name string, certPEM, keyPEM []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name+".crt"), certPEM, 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".key"), keyPEM, 0600)
}

func generateCA() (*ecdsa.PrivateKey, *x509.Certificate, []byte, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   organization + " Root CA",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour * 10),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	keyPEM, err := encodeKey(priv)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return priv, cert, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), keyPEM, nil
}

func generateEntityCert(e entity, caCert *x509.Certificate, caKey *ecdsa.PrivateKey) ([]byte, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   e.cn,
		},
		NotBefore: time.Now(),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageDigitalSignature,
	}

	if e.isServer {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	} else {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	for _, h := range e.hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, &priv.PublicKey, caKey)
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := encodeKey(priv)
	if err != nil {
		return nil, nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), keyPEM, nil
}

func encodeKey(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}
