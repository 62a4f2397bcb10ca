package tlscert

import (
	"crypto/x509"
	"path/filepath"
	"testing"
)

func TestLoadGeneratesCertCoveringDomains(t *testing.T) {
	domains := []string{"www.growtopia1.com", "www.growtopia2.com", "growtopia1.com", "growtopia2.com"}
	cert, err := Load("", "", domains)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	got := make(map[string]bool)
	for _, d := range leaf.DNSNames {
		got[d] = true
	}
	for _, d := range domains {
		if !got[d] {
			t.Errorf("expected SAN to cover %q, got %v", d, leaf.DNSNames)
		}
	}
}

func TestLoadPersistsAndReusesGeneratedPair(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	domains := []string{"example.test"}

	first, err := Load(certPath, keyPath, domains)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}

	second, err := Load(certPath, keyPath, domains)
	if err != nil {
		t.Fatalf("second Load (should reuse file): %v", err)
	}

	if string(first.Certificate[0]) != string(second.Certificate[0]) {
		t.Fatalf("expected second Load to reuse the persisted certificate")
	}
}
