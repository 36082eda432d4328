// Package relaytls builds *tls.Config values for mutual TLS between
// relay, agent, and client. It consumes certificates and keys the
// operator already has on disk; it does not issue them. Adapted from the
// teacher's relay.MTLSConfig/ServerTLSConfig/ClientTLSConfig, with the
// CA/cert-generation helpers dropped — certificate issuance is out of
// scope here, only *tls.Config construction from existing PEM files.
package relaytls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// MTLSConfig names the PEM files and policy needed to build a *tls.Config
// for either side of a relay connection.
type MTLSConfig struct {
	CACertFile     string
	ServerCertFile string
	ServerKeyFile  string
	ClientCertFile string
	ClientKeyFile  string

	// RequireClientCert, when true, has the relay refuse any connection
	// that doesn't present a CA-signed client certificate.
	RequireClientCert bool
}

// ServerTLSConfig builds the relay's server-side *tls.Config: it presents
// its own certificate and, depending on policy, verifies the connecting
// node's certificate against the configured CA.
func ServerTLSConfig(cfg MTLSConfig) (*tls.Config, error) {
	caPool, err := loadCAPool(cfg.CACertFile)
	if err != nil {
		return nil, err
	}

	serverCert, err := tls.LoadX509KeyPair(cfg.ServerCertFile, cfg.ServerKeyFile)
	if err != nil {
		return nil, fmt.Errorf("relaytls: load server cert/key: %w", err)
	}

	clientAuth := tls.VerifyClientCertIfGiven
	if cfg.RequireClientCert {
		clientAuth = tls.RequireAndVerifyClientCert
	}

	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientCAs:    caPool,
		ClientAuth:   clientAuth,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig builds a node's (agent or client) outbound *tls.Config:
// it presents its own certificate and verifies the relay's certificate
// against the configured CA.
func ClientTLSConfig(cfg MTLSConfig) (*tls.Config, error) {
	caPool, err := loadCAPool(cfg.CACertFile)
	if err != nil {
		return nil, err
	}

	clientCert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
	if err != nil {
		return nil, fmt.Errorf("relaytls: load client cert/key: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{clientCert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientIdentity is the node identity recovered from a verified peer
// certificate.
type ClientIdentity struct {
	NodeID      string
	Fingerprint string
	ValidUntil  time.Time
}

// VerifyClientCert extracts and sanity-checks the node identity presented
// in a handshake's peer certificate. The relay calls this after the
// standard TLS verification already accepted the chain, to additionally
// pull the node id out of the certificate's Common Name.
func VerifyClientCert(state *tls.ConnectionState) (*ClientIdentity, error) {
	if state == nil || len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("relaytls: no client certificate presented")
	}
	cert := state.PeerCertificates[0]
	if cert.Subject.CommonName == "" {
		return nil, fmt.Errorf("relaytls: certificate has empty Common Name")
	}
	now := time.Now()
	if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
		return nil, fmt.Errorf("relaytls: certificate not valid at %s (valid %s to %s)",
			now.Format(time.RFC3339), cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
	}
	return &ClientIdentity{
		NodeID:      cert.Subject.CommonName,
		Fingerprint: fmt.Sprintf("%x", cert.Signature[:16]),
		ValidUntil:  cert.NotAfter,
	}, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relaytls: read CA cert %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("relaytls: failed to parse CA certificate from %s", path)
	}
	return pool, nil
}
