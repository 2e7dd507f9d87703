package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"
)

func selfSignedPEM(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestParsePEMCertificatesOrdersMultipleBlocks(t *testing.T) {
	bundle := append(selfSignedPEM(t, "first"), selfSignedPEM(t, "second")...)
	certs, err := parsePEMCertificates(bundle)
	if err != nil {
		t.Fatalf("parsePEMCertificates: %v", err)
	}
	if len(certs) != 2 {
		t.Fatalf("expected 2 certificates, got %d", len(certs))
	}
	if certs[0].Subject.CommonName != "first" || certs[1].Subject.CommonName != "second" {
		t.Fatalf("expected file-order preservation, got %q then %q", certs[0].Subject.CommonName, certs[1].Subject.CommonName)
	}
}

func TestParsePEMCertificatesRejectsEmptyInput(t *testing.T) {
	if _, err := parsePEMCertificates([]byte("not a pem bundle")); err == nil {
		t.Fatal("expected an error for a bundle with no PEM-encoded certificates")
	}
}

func TestLoadTrustRootsAccumulatesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	p1 := dir + "/root1.pem"
	p2 := dir + "/root2.pem"
	if err := os.WriteFile(p1, selfSignedPEM(t, "root-one"), 0o644); err != nil {
		t.Fatalf("write %s: %v", p1, err)
	}
	if err := os.WriteFile(p2, selfSignedPEM(t, "root-two"), 0o644); err != nil {
		t.Fatalf("write %s: %v", p2, err)
	}

	pool, err := loadTrustRoots([]string{p1, p2})
	if err != nil {
		t.Fatalf("loadTrustRoots: %v", err)
	}
	if pool == nil {
		t.Fatal("expected a non-nil pool")
	}
	if len(pool.Subjects()) != 2 { //nolint:staticcheck // Subjects() is deprecated but still the simplest count here
		t.Fatalf("expected 2 pooled roots, got %d", len(pool.Subjects()))
	}
}

func TestLoadTrustRootsRejectsMissingFile(t *testing.T) {
	if _, err := loadTrustRoots([]string{"/nonexistent/root.pem"}); err == nil {
		t.Fatal("expected an error for a missing trust root bundle")
	}
}

func TestTokenFuncForEmptyEnvVarNameIsNil(t *testing.T) {
	if f := tokenFuncFor(""); f != nil {
		t.Fatal("expected a nil TokenFunc when no environment variable is configured")
	}
}

func TestTokenFuncForReadsEnvironmentAtCallTime(t *testing.T) {
	t.Setenv("TRUSTCTL_TEST_TOKEN", "")
	f := tokenFuncFor("TRUSTCTL_TEST_TOKEN")
	if f == nil {
		t.Fatal("expected a non-nil TokenFunc")
	}
	if _, err := f(context.Background()); err == nil {
		t.Fatal("expected an error when the environment variable is unset")
	}

	t.Setenv("TRUSTCTL_TEST_TOKEN", "secret-value")
	token, err := f(context.Background())
	if err != nil {
		t.Fatalf("f: %v", err)
	}
	if token != "secret-value" {
		t.Fatalf("got %q, want secret-value (TokenFunc must read the environment at call time, not at construction)", token)
	}
}
