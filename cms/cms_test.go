package cms

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
)

// testSigner adapts a plain *rsa.PrivateKey plus a self-signed certificate
// to the Signer capability cms needs (crypto.Signer + Certificate()),
// mirroring how hsm.Signer exposes the same surface around a remote key.
type testSigner struct {
	*rsa.PrivateKey
	cert *x509.Certificate
}

func (s *testSigner) Certificate() *x509.Certificate { return s.cert }

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "cms test signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return &testSigner{PrivateKey: key, cert: cert}
}

func TestHexPlaceholderRoundTrip(t *testing.T) {
	ph := hexPlaceholder(16)
	if len(ph) != 2+16*2 {
		t.Fatalf("unexpected placeholder length %d", len(ph))
	}
	if ph[0] != '<' || ph[len(ph)-1] != '>' {
		t.Fatalf("placeholder not bracketed: %s", ph)
	}
}

func TestEncodeHexContentsFitsBudget(t *testing.T) {
	der := bytes.Repeat([]byte{0xAB}, 100)
	hexStr, err := encodeHexContents(der, 200)
	if err != nil {
		t.Fatalf("encodeHexContents: %v", err)
	}
	if len(hexStr) != 200 {
		t.Fatalf("got %d hex chars, want 200", len(hexStr))
	}
}

func TestEncodeHexContentsExceedsBudget(t *testing.T) {
	der := bytes.Repeat([]byte{0xAB}, 100)
	_, err := encodeHexContents(der, 50)
	if err == nil {
		t.Fatal("expected SizeExceededError")
	}
	if _, ok := err.(*SizeExceededError); !ok {
		t.Fatalf("expected *SizeExceededError, got %T", err)
	}
}

func TestSigningCertificateV2Attribute(t *testing.T) {
	s := newTestSigner(t)
	attr, err := signingCertificateV2Attribute(s.cert)
	if err != nil {
		t.Fatalf("signingCertificateV2Attribute: %v", err)
	}
	if attr.Type.String() != "1.2.840.113549.1.9.16.2.47" {
		t.Fatalf("unexpected attribute OID %s", attr.Type.String())
	}
}

func TestBuildDetachedSignatureVerifies(t *testing.T) {
	s := newTestSigner(t)
	content := []byte("the ByteRange-covered bytes of a PDF revision")

	signedDER, err := buildDetachedSignature(content, s, nil, time.Now())
	if err != nil {
		t.Fatalf("buildDetachedSignature: %v", err)
	}

	p7, err := pkcs7.Parse(signedDER)
	if err != nil {
		t.Fatalf("parse resulting CMS: %v", err)
	}
	p7.Content = content
	if err := p7.Verify(); err != nil {
		t.Fatalf("verify resulting CMS: %v", err)
	}
	if len(p7.Certificates) == 0 || p7.Certificates[0].Subject.CommonName != "cms test signer" {
		t.Fatalf("expected embedded signer certificate, got %+v", p7.Certificates)
	}
}

func TestBuildDetachedSignatureTamperedContentFailsVerify(t *testing.T) {
	s := newTestSigner(t)
	content := []byte("original bytes")

	signedDER, err := buildDetachedSignature(content, s, nil, time.Now())
	if err != nil {
		t.Fatalf("buildDetachedSignature: %v", err)
	}

	p7, err := pkcs7.Parse(signedDER)
	if err != nil {
		t.Fatalf("parse resulting CMS: %v", err)
	}
	p7.Content = []byte("tampered bytes")
	if err := p7.Verify(); err == nil {
		t.Fatal("expected verification failure over tampered content")
	}
}
