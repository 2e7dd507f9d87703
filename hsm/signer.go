package hsm

import (
	"context"
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"io"
)

func sha256Of(b []byte) []byte {
	sum := sha256.Sum256(b)
	return sum[:]
}

// Signer adapts Client to crypto.Signer so it can be handed directly to
// the CMS assembler exactly as the teacher hands a *azure.Signer to
// sign.SignData.Signer.
type Signer struct {
	Client        *Client
	CorrelationID string

	cert *x509.Certificate
}

// NewSigner bootstraps the certificate chain and returns a ready-to-use
// crypto.Signer.
func NewSigner(ctx context.Context, client *Client, correlationID string) (*Signer, error) {
	leafDER, err := client.BootstrapChain(ctx)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(leafDER)
	if err != nil {
		return nil, fmt.Errorf("hsm: parse bootstrapped leaf certificate: %w", err)
	}
	return &Signer{Client: client, CorrelationID: correlationID, cert: cert}, nil
}

// Certificate returns the signer's bootstrapped leaf certificate.
func (s *Signer) Certificate() *x509.Certificate { return s.cert }

// Public implements crypto.Signer.
func (s *Signer) Public() crypto.PublicKey { return s.cert.PublicKey }

// Sign implements crypto.Signer by delegating to SignContext with a
// background context; callers that need cancellation should call
// SignContext directly.
func (s *Signer) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.SignContext(context.Background(), digest, opts)
}

// SignContext performs the remote hash-then-sign operation over ctx.
func (s *Signer) SignContext(ctx context.Context, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	algo, err := SigningAlgorithmFor(s.cert.PublicKey, opts.HashFunc())
	if err != nil {
		return nil, err
	}
	sig, _, err := s.Client.SignDigest(ctx, digest, algo, s.CorrelationID)
	return sig, err
}
