package hsm

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/digitorus/pkcs7"
)

// chainCacheTTL is the short-TTL window the spec allows the client to
// cache the signer certificate chain for, avoiding a bootstrap round trip
// on every signing call.
const chainCacheTTL = 15 * time.Minute

// ParseCertificatePayload tries, in a fixed order, every normalization
// the remote HSM might use for its certificate payload: DER PKCS#7, PEM
// PKCS#7, single DER X.509, single PEM X.509, and base64-of-DER — failing
// only once all have been tried. It returns the leaf certificate's raw
// DER bytes.
func ParseCertificatePayload(payload []byte) ([]byte, error) {
	if der, err := tryPKCS7DER(payload); err == nil {
		return der, nil
	}
	if der, err := tryPKCS7PEM(payload); err == nil {
		return der, nil
	}
	if der, err := tryX509DER(payload); err == nil {
		return der, nil
	}
	if der, err := tryX509PEM(payload); err == nil {
		return der, nil
	}
	if der, err := tryBase64OfDER(payload); err == nil {
		return der, nil
	}
	return nil, fmt.Errorf("hsm: certificate payload matched none of DER PKCS#7, PEM PKCS#7, DER X.509, PEM X.509, base64-of-DER")
}

func tryPKCS7DER(payload []byte) ([]byte, error) {
	p7, err := pkcs7.Parse(payload)
	if err != nil || len(p7.Certificates) == 0 {
		return nil, fmt.Errorf("not PKCS#7 DER")
	}
	return p7.Certificates[0].Raw, nil
}

func tryPKCS7PEM(payload []byte) ([]byte, error) {
	block, _ := pem.Decode(payload)
	if block == nil {
		return nil, fmt.Errorf("not PEM")
	}
	p7, err := pkcs7.Parse(block.Bytes)
	if err != nil || len(p7.Certificates) == 0 {
		return nil, fmt.Errorf("not PKCS#7 PEM")
	}
	return p7.Certificates[0].Raw, nil
}

func tryX509DER(payload []byte) ([]byte, error) {
	cert, err := x509.ParseCertificate(payload)
	if err != nil {
		return nil, fmt.Errorf("not X.509 DER")
	}
	return cert.Raw, nil
}

func tryX509PEM(payload []byte) ([]byte, error) {
	block, _ := pem.Decode(payload)
	if block == nil {
		return nil, fmt.Errorf("not PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not X.509 PEM")
	}
	return cert.Raw, nil
}

func tryBase64OfDER(payload []byte) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("not base64")
	}
	cert, err := x509.ParseCertificate(decoded)
	if err != nil {
		return nil, fmt.Errorf("base64 payload is not X.509 DER")
	}
	return cert.Raw, nil
}

// BootstrapChain issues a one-shot sign over a sentinel input, discards
// the signature, and returns the parsed leaf certificate DER — the only
// way this remote exposes its signer certificate. Results are cached for
// chainCacheTTL.
func (c *Client) BootstrapChain(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if c.chain != nil && time.Now().Before(c.chainUntil) {
		chain := c.chain
		c.mu.Unlock()
		return chain, nil
	}
	c.mu.Unlock()

	sentinelDigest := sha256Of([]byte("bootstrap"))
	_, certChain, err := c.SignDigest(ctx, sentinelDigest, RS256, "bootstrap-chain")
	if err != nil {
		return nil, fmt.Errorf("hsm: bootstrap sign failed: %w", err)
	}
	if len(certChain) == 0 {
		return nil, &RemoteFailureError{Reason: "bootstrap sign returned no certificate"}
	}

	c.mu.Lock()
	c.chain = certChain[0]
	c.chainUntil = time.Now().Add(chainCacheTTL)
	chain := c.chain
	c.mu.Unlock()
	return chain, nil
}
