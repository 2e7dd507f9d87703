package revocation

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"golang.org/x/crypto/ocsp"
)

func issueCA(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate CA key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "revocation test CA"},
		NotBefore:              time.Now().Add(-time.Hour),
		NotAfter:               time.Now().Add(time.Hour),
		IsCA:                   true,
		BasicConstraintsValid:  true,
		KeyUsage:               x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create CA cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse CA cert: %v", err)
	}
	return key, cert
}

func issueLeaf(t *testing.T, caKey *rsa.PrivateKey, caCert *x509.Certificate, serial int64) *x509.Certificate {
	t.Helper()
	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate leaf key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "revocation test leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("create leaf cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse leaf cert: %v", err)
	}
	return cert
}

func TestIsRevokedViaCRL(t *testing.T) {
	caKey, caCert := issueCA(t)
	revokedLeaf := issueLeaf(t, caKey, caCert, 42)
	goodLeaf := issueLeaf(t, caKey, caCert, 43)

	crlTemplate := &x509.RevocationList{
		Number:     big.NewInt(1),
		ThisUpdate: time.Now(),
		NextUpdate: time.Now().Add(time.Hour),
		RevokedCertificateEntries: []x509.RevocationListEntry{
			{SerialNumber: revokedLeaf.SerialNumber, RevocationTime: time.Now()},
		},
	}
	crlDER, err := x509.CreateRevocationList(rand.Reader, crlTemplate, caCert, caKey)
	if err != nil {
		t.Fatalf("create CRL: %v", err)
	}

	var archival InfoArchival
	if err := archival.AddCRL(crlDER); err != nil {
		t.Fatalf("AddCRL: %v", err)
	}

	if !archival.IsRevoked(revokedLeaf) {
		t.Fatal("expected revoked leaf to be reported revoked")
	}
	if archival.IsRevoked(goodLeaf) {
		t.Fatal("expected non-listed leaf to not be reported revoked")
	}
}

func TestIsRevokedViaOCSP(t *testing.T) {
	caKey, caCert := issueCA(t)
	revokedLeaf := issueLeaf(t, caKey, caCert, 100)
	goodLeaf := issueLeaf(t, caKey, caCert, 101)

	now := time.Now()
	revokedTemplate := ocsp.Response{
		Status:       ocsp.Revoked,
		SerialNumber: revokedLeaf.SerialNumber,
		ThisUpdate:   now.Add(-time.Hour),
		NextUpdate:   now.Add(time.Hour),
		RevokedAt:    now.Add(-time.Minute),
	}
	revokedResp, err := ocsp.CreateResponse(caCert, caCert, revokedTemplate, caKey)
	if err != nil {
		t.Fatalf("create revoked OCSP response: %v", err)
	}

	goodTemplate := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: goodLeaf.SerialNumber,
		ThisUpdate:   now.Add(-time.Hour),
		NextUpdate:   now.Add(time.Hour),
	}
	goodResp, err := ocsp.CreateResponse(caCert, caCert, goodTemplate, caKey)
	if err != nil {
		t.Fatalf("create good OCSP response: %v", err)
	}

	var archival InfoArchival
	if err := archival.AddOCSP(revokedResp); err != nil {
		t.Fatalf("AddOCSP revoked: %v", err)
	}
	if err := archival.AddOCSP(goodResp); err != nil {
		t.Fatalf("AddOCSP good: %v", err)
	}

	if !archival.IsRevoked(revokedLeaf) {
		t.Fatal("expected OCSP-revoked leaf to be reported revoked")
	}
	if archival.IsRevoked(goodLeaf) {
		t.Fatal("expected OCSP-good leaf to not be reported revoked")
	}
}

func TestHasRevocationInfoRequiresCoverage(t *testing.T) {
	caKey, caCert := issueCA(t)
	coveredLeaf := issueLeaf(t, caKey, caCert, 7)
	uncoveredLeaf := issueLeaf(t, caKey, caCert, 8)

	now := time.Now()
	template := ocsp.Response{
		Status:       ocsp.Good,
		SerialNumber: coveredLeaf.SerialNumber,
		ThisUpdate:   now.Add(-time.Hour),
		NextUpdate:   now.Add(time.Hour),
	}
	resp, err := ocsp.CreateResponse(caCert, caCert, template, caKey)
	if err != nil {
		t.Fatalf("create OCSP response: %v", err)
	}

	var archival InfoArchival
	if err := archival.AddOCSP(resp); err != nil {
		t.Fatalf("AddOCSP: %v", err)
	}

	if !archival.HasRevocationInfo(coveredLeaf) {
		t.Fatal("expected covered leaf to report revocation info present")
	}
	if archival.HasRevocationInfo(uncoveredLeaf) {
		t.Fatal("expected uncovered leaf to report no revocation info, per STV's hard-fail-on-missing-info policy")
	}
}

func TestIsRevokedIgnoresMalformedEntries(t *testing.T) {
	_, caCert := issueCA(t)
	var archival InfoArchival
	_ = archival.AddCRL([]byte("not a crl"))
	_ = archival.AddOCSP([]byte("not an ocsp response"))

	if archival.IsRevoked(caCert) {
		t.Fatal("malformed entries must not be treated as revocation evidence")
	}
}
