// Package revocation holds the PKCS#7 revocation-information container
// embedded in a DSS revision and consumed by seal trust verification.
//
// Adapted from the teacher's revocation/revocation.go. The teacher's
// IsRevoked hard-codes its OCSP branch to unconditionally return false
// ("fail open", per its own inline admission that the gap couldn't be
// closed without adding an import). This package does not carry that stub
// forward: IsRevoked parses every embedded OCSP response and treats
// ocsp.Revoked as a hard failure, matching this system's revocation policy
// of requiring and honoring revocation information for every certificate.
package revocation

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"

	"golang.org/x/crypto/ocsp"
)

func bytesEqual(a, b []byte) bool { return bytes.Equal(a, b) }

// InfoArchival is the PKCS#7 container carrying the revocation information
// for all certificates embedded in one signature's DSS/VRI entry.
type InfoArchival struct {
	CRL   CRL   `asn1:"tag:0,optional,explicit"`
	OCSP  OCSP  `asn1:"tag:1,optional,explicit"`
	Other Other `asn1:"tag:2,optional,explicit"`
}

// AddCRL embeds the raw bytes of a downloaded CRL.
func (r *InfoArchival) AddCRL(b []byte) error {
	r.CRL = append(r.CRL, asn1.RawValue{FullBytes: b})
	return nil
}

// AddOCSP embeds the raw bytes of an OCSP response.
func (r *InfoArchival) AddOCSP(b []byte) error {
	r.OCSP = append(r.OCSP, asn1.RawValue{FullBytes: b})
	return nil
}

// IsRevoked reports whether any embedded CRL or OCSP response marks c as
// revoked. Unlike the teacher's version, an OCSP response that parses and
// reports ocsp.Revoked is a hard failure, not silently ignored.
func (r *InfoArchival) IsRevoked(c *x509.Certificate) bool {
	for _, crlRaw := range r.CRL {
		crl, err := x509.ParseRevocationList(crlRaw.FullBytes)
		if err != nil {
			continue
		}
		for _, rc := range crl.RevokedCertificateEntries {
			if rc.SerialNumber.Cmp(c.SerialNumber) == 0 {
				return true
			}
		}
	}

	for _, ocspRaw := range r.OCSP {
		resp, err := ocsp.ParseResponse(ocspRaw.FullBytes, nil)
		if err != nil {
			continue
		}
		if resp.SerialNumber != nil && resp.SerialNumber.Cmp(c.SerialNumber) == 0 && resp.Status == ocsp.Revoked {
			return true
		}
	}

	return false
}

// HasRevocationInfo reports whether any CRL or OCSP entry names c at all —
// used by STV's hard-fail-on-missing-revocation-info policy, which is
// distinct from "checked and found not revoked".
func (r *InfoArchival) HasRevocationInfo(c *x509.Certificate) bool {
	for _, crlRaw := range r.CRL {
		crl, err := x509.ParseRevocationList(crlRaw.FullBytes)
		if err != nil {
			continue
		}
		if bytesEqual(crl.RawIssuer, c.RawIssuer) {
			return true
		}
	}
	for _, ocspRaw := range r.OCSP {
		resp, err := ocsp.ParseResponse(ocspRaw.FullBytes, nil)
		if err != nil {
			continue
		}
		if resp.SerialNumber != nil && resp.SerialNumber.Cmp(c.SerialNumber) == 0 {
			return true
		}
	}
	return false
}

// CRL holds the raw bytes of zero or more PKIX certificate lists.
type CRL []asn1.RawValue

// OCSP holds the raw bytes of zero or more OCSP responses.
type OCSP []asn1.RawValue

// Other is the ANS.1 OtherRevInfo escape hatch, carried through unused.
type Other struct {
	Type  asn1.ObjectIdentifier
	Value []byte
}
