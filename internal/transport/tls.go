package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/redalert/redalert/internal/config"
)

// TLSConfig builds the client TLS settings for a wss:// stream. It
// returns nil when nothing is configured so the dialer keeps the
// system roots.
func TLSConfig(cfg config.TLS) (*tls.Config, error) {
	if !cfg.Configured() {
		return nil, nil
	}
	pool, err := loadCertPool(cfg.CAFile)
	if err != nil {
		return nil, err
	}
	certs, err := loadClientCert(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		RootCAs:            pool,
		Certificates:       certs,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}, nil
}

// WithTLS sets the TLS config used when dialing wss:// URLs
func WithTLS(t *tls.Config) Option {
	return func(cl *Client) { cl.tlsConfig = t }
}

// loadCertPool loads extra CA certificates. Nil means system roots.
func loadCertPool(caFile string) (*x509.CertPool, error) {
	if caFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("invalid ca certs in %s", caFile)
	}
	return pool, nil
}

// loadClientCert loads client certificate and key
func loadClientCert(certFile, keyFile string) ([]tls.Certificate, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}
	return []tls.Certificate{cert}, nil
}
