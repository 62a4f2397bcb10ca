// Package tlscert supplies the TLS certificate the HTTPS bootstrap
// interceptor serves: either a locally generated ECDSA self-signed
// certificate covering the configured intercept domains, or a
// cert/key pair loaded from disk, mirroring the TLS-enabled branch of
// internal/proxy.AcceptLoop generalized from a single listen cert to
// a multi-SAN one covering the game's bootstrap domains.
//
// No third-party library in the retrieved corpus generates or loads
// self-signed certificates; every repo that touches TLS (karoo's
// AcceptLoop, connection.Dial, awg-proxy's tunnel) either loads a
// pre-existing cert/key pair or dials with tls.Config directly. This
// package therefore stays on stdlib crypto/x509 and crypto/tls, noted
// in DESIGN.md as a justified stdlib-only piece.
package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Load returns a certificate for the HTTPS listener to present. If
// certPath and keyPath are both non-empty and both files exist, they
// are loaded via tls.LoadX509KeyPair. Otherwise a fresh self-signed
// certificate covering domains is generated; if certPath/keyPath are
// set but missing, the generated pair is written there so restarts
// reuse it.
func Load(certPath, keyPath string, domains []string) (tls.Certificate, error) {
	if certPath != "" && keyPath != "" {
		if fileExists(certPath) && fileExists(keyPath) {
			return tls.LoadX509KeyPair(certPath, keyPath)
		}
	}

	cert, certPEM, keyPEM, err := generate(domains)
	if err != nil {
		return tls.Certificate{}, err
	}

	if certPath != "" && keyPath != "" {
		if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
			return tls.Certificate{}, fmt.Errorf("writing generated cert: %w", err)
		}
		if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
			return tls.Certificate{}, fmt.Errorf("writing generated key: %w", err)
		}
	}

	return cert, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func generate(domains []string) (tls.Certificate, []byte, []byte, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("generating key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("generating serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domains[0]},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(5, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     domains,
		IsCA:         true,
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("creating certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("marshaling key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, nil, nil, fmt.Errorf("building tls.Certificate: %w", err)
	}
	return cert, certPEM, keyPEM, nil
}
