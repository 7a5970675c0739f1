package cert

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/pkg/errors"
)

// VerifyTLSConfig checks the node certificate before the gRPC listener starts.
// The same pair is used for inbound and outbound calls, so it must be valid for
// both server and client auth and chain to the party CA.
func VerifyTLSConfig(certFile, keyFile, caCertFile string) error {
	for name, path := range map[string]string{"node certificate": certFile, "node key": keyFile, "party CA": caCertFile} {
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(err, "%s file not found: %s", name, path)
		}
	}

	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return errors.Wrap(err, "node certificate does not match its key")
	}
	if len(pair.Certificate) == 0 {
		return errors.Errorf("no certificate in %s", certFile)
	}
	nodeCert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return errors.Wrap(err, "failed to parse node certificate")
	}

	now := time.Now()
	if now.After(nodeCert.NotAfter) {
		return errors.Errorf("node certificate %q expired at %s", nodeCert.Subject.CommonName, nodeCert.NotAfter)
	}
	if now.Before(nodeCert.NotBefore) {
		return errors.Errorf("node certificate %q not valid until %s", nodeCert.Subject.CommonName, nodeCert.NotBefore)
	}

	caBytes, err := os.ReadFile(caCertFile)
	if err != nil {
		return errors.Wrap(err, "failed to read party CA")
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caBytes) {
		return errors.Errorf("no CA certificate in %s", caCertFile)
	}

	// 节点之间互为服务端与客户端
	for _, usage := range []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth} {
		if _, err := nodeCert.Verify(x509.VerifyOptions{Roots: roots, KeyUsages: []x509.ExtKeyUsage{usage}}); err != nil {
			return errors.Wrapf(err, "node certificate %q is not accepted by the party CA", nodeCert.Subject.CommonName)
		}
	}
	return nil
}

// NewMutualTLSConfig builds a TLS config where both sides present a certificate signed by the shared CA.
func NewMutualTLSConfig(certFile, keyFile, caCertFile string, server bool) (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load certificate key pair")
	}
	caBytes, err := os.ReadFile(caCertFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CA certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, errors.New("failed to parse CA certificate")
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	if server {
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		cfg.RootCAs = pool
	}
	return cfg, nil
}
