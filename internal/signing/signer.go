package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/adamscao/licenseserver/internal/license"
)

// pssOptions uses the largest salt the key allows when signing and detects
// the salt length when verifying.
var pssOptions = &rsa.PSSOptions{
	SaltLength: rsa.PSSSaltLengthAuto,
	Hash:       crypto.SHA256,
}

// Digest returns the SHA-256 hash of the record's canonical bytes
func Digest(rec license.Record) [32]byte {
	return sha256.Sum256(license.Canonicalize(rec))
}

// pssDigest is the value handed to RSA-PSS. The canonical hash is itself the
// PSS message, hashed once more with SHA-256 as PSS requires.
func pssDigest(rec license.Record) []byte {
	h := Digest(rec)
	d := sha256.Sum256(h[:])
	return d[:]
}

// Signer signs license records with an RSA private key
type Signer struct {
	key *rsa.PrivateKey
}

// NewSigner creates a signer for the given key
func NewSigner(key *rsa.PrivateKey) *Signer {
	return &Signer{key: key}
}

// Sign returns the base64 RSA-PSS signature of the record
func (s *Signer) Sign(rec license.Record) (string, error) {
	sig, err := s.key.Sign(rand.Reader, pssDigest(rec), pssOptions)
	if err != nil {
		return "", fmt.Errorf("failed to sign license: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// SignRecord signs rec and returns it together with its signature
func (s *Signer) SignRecord(rec license.Record) (license.SignedRecord, error) {
	sig, err := s.Sign(rec)
	if err != nil {
		return license.SignedRecord{}, err
	}
	return license.SignedRecord{Record: rec, Signature: sig}, nil
}

// Verifier checks license signatures with an RSA public key
type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifier creates a verifier for the given key
func NewVerifier(key *rsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

// Verify reports whether signature is a valid signature of rec. A signature
// that decodes but does not match yields false with no error; text that is
// empty or not base64 yields an error wrapping ErrSignatureMalformed.
func (v *Verifier) Verify(rec license.Record, signature string) (bool, error) {
	if signature == "" {
		return false, fmt.Errorf("%w: empty signature", ErrSignatureMalformed)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSignatureMalformed, err)
	}

	err = rsa.VerifyPSS(v.key, crypto.SHA256, pssDigest(rec), sig, pssOptions)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, rsa.ErrVerification) {
		return false, nil
	}
	return false, fmt.Errorf("failed to verify signature: %w", err)
}

// VerifySigned verifies a signed record against its own signature
func (v *Verifier) VerifySigned(rec license.SignedRecord) (bool, error) {
	return v.Verify(rec.Record, rec.Signature)
}
