// Package cms builds the detached CMS signatures and PAdES signature
// dictionaries the lifecycle orchestrator threads a PDF buffer through: a
// certification signature (Rev 1), a DSS+VRI revision (Rev 2), and a
// document timestamp revision (Rev 3).
//
// Grounded on the teacher's sign/pdfsignature.go (signature dictionary
// literal bytes, SigningCertificateV2 attribute construction) and
// sign/sign.go (fetch-revocation-before-sizing discipline, CMS assembly via
// github.com/digitorus/pkcs7), generalized from one combined sign call into
// three independently invocable revision builders per §4.4.
package cms

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/digitorus/pkcs7"
)

// ReservedSignatureBytes is the fixed byte budget reserved for the CMS
// signature placeholder. The spec permits "a safe constant" (e.g. 32 KiB);
// dry-run sizing never needs a second HSM round trip because this budget
// is assumed to always be large enough for an RSA-2048/3072/4096 detached
// CMS SignedData with one signer and a short certificate chain.
const ReservedSignatureBytes = 32 * 1024

// ReservedTimestampBytes is the equivalent reservation for an RFC 3161
// TimeStampToken, which tends to run larger than a bare CMS signature
// because it embeds the TSA's own certificate chain.
const ReservedTimestampBytes = 48 * 1024

// Signer is the capability this package needs from the HSM client: a
// crypto.Signer plus its bootstrapped certificate, exactly the surface
// hsm.Signer exposes.
type Signer interface {
	crypto.Signer
	Certificate() *x509.Certificate
}

// signingCertificateV2Attribute builds the ESS SigningCertificateV2 signed
// attribute binding the CMS signature to the specific signer certificate,
// mirroring the teacher's createSigningCertificateAttribute but restricted
// to the SHA-256 case this system's HSM contract always uses.
func signingCertificateV2Attribute(cert *x509.Certificate) (*pkcs7.Attribute, error) {
	sum := crypto.SHA256.New()
	sum.Write(cert.Raw)
	certHash := sum.Sum(nil)

	type essCertIDv2 struct {
		CertHash []byte
	}
	type signingCertificateV2 struct {
		Certs []essCertIDv2
	}
	inner, err := asn1.Marshal(signingCertificateV2{Certs: []essCertIDv2{{CertHash: certHash}}})
	if err != nil {
		return nil, fmt.Errorf("cms: marshal SigningCertificateV2: %w", err)
	}
	return &pkcs7.Attribute{
		Type:  asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 47},
		Value: asn1.RawValue{FullBytes: inner},
	}, nil
}

// buildDetachedSignature signs content (the document bytes covered by
// ByteRange, i.e. everything except the /Contents hole) and returns the DER
// bytes of a detached CMS SignedData.
func buildDetachedSignature(content []byte, signer Signer, chain []*x509.Certificate, signingTime time.Time) ([]byte, error) {
	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("cms: new signed data: %w", err)
	}
	sd.SetDigestAlgorithm(asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}) // id-sha256

	scAttr, err := signingCertificateV2Attribute(signer.Certificate())
	if err != nil {
		return nil, err
	}

	cfg := pkcs7.SignerInfoConfig{
		ExtraSignedAttributes: []pkcs7.Attribute{*scAttr},
	}
	if err := sd.AddSignerChain(signer.Certificate(), signer, chain, cfg); err != nil {
		return nil, fmt.Errorf("cms: add signer chain: %w", err)
	}
	sd.Detach()

	der, err := sd.Finish()
	if err != nil {
		return nil, fmt.Errorf("cms: finish signed data: %w", err)
	}
	return der, nil
}

// hexPlaceholder returns a zero-filled hex placeholder of the given raw
// byte budget, bracketed as a PDF hex string.
func hexPlaceholder(reservedBytes int) string {
	return "<" + string(bytes.Repeat([]byte("0"), reservedBytes*2)) + ">"
}

// encodeHexContents hex-encodes der for embedding as a PDF /Contents value,
// verifying it still fits the placeholder it must replace.
func encodeHexContents(der []byte, reservedBytes int) (string, error) {
	h := hex.EncodeToString(der)
	if len(h) > reservedBytes*2 {
		return "", &SizeExceededError{Reserved: reservedBytes * 2, Actual: len(h)}
	}
	return h, nil
}
