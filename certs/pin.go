package certs

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// PinnedTLSConfig builds a client tls.Config that trusts a server
// presenting a certificate whose SHA-256 fingerprint matches one of
// fingerprints (each the base64 form CertInfo.FingerprintBase64
// produces), instead of verifying a chain to a root CA. This is the
// client-side half of Generate: a self-signed, short-lived relay
// certificate has no CA to chain to, so the client pins the exact
// fingerprint it was handed out of band (matching how a browser
// WebTransport client supplies serverCertificateHashes).
//
// Grounded on the InsecureSkipVerify-plus-VerifyPeerCertificate idiom
// used for self-signed QUIC/WebTransport endpoints in the example
// corpus's standalone clients, combined with this package's own
// Generate/FingerprintBase64 fingerprint format.
func PinnedTLSConfig(fingerprints ...string) (*tls.Config, error) {
	if len(fingerprints) == 0 {
		return nil, fmt.Errorf("certs: PinnedTLSConfig requires at least one fingerprint")
	}
	want := make(map[[32]byte]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		raw, err := base64.StdEncoding.DecodeString(fp)
		if err != nil {
			return nil, fmt.Errorf("certs: invalid fingerprint %q: %w", fp, err)
		}
		if len(raw) != sha256.Size {
			return nil, fmt.Errorf("certs: fingerprint %q is %d bytes, want %d", fp, len(raw), sha256.Size)
		}
		var sum [32]byte
		copy(sum[:], raw)
		want[sum] = struct{}{}
	}

	return &tls.Config{
		InsecureSkipVerify: true, // chain verification is meaningless for a self-signed relay cert
		VerifyConnection: func(state tls.ConnectionState) error {
			return verifyPinned(state.PeerCertificates, want)
		},
	}, nil
}

func verifyPinned(peerCerts []*x509.Certificate, want map[[32]byte]struct{}) error {
	if len(peerCerts) == 0 {
		return fmt.Errorf("certs: no peer certificate presented")
	}
	sum := sha256.Sum256(peerCerts[0].Raw)
	if _, ok := want[sum]; !ok {
		return fmt.Errorf("certs: peer certificate fingerprint %s does not match any pinned fingerprint",
			base64.StdEncoding.EncodeToString(sum[:]))
	}
	return nil
}
