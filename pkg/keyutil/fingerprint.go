package keyutil

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Fingerprint returns the SHA256 fingerprint of a public key in the format
// printed by ssh-keygen -l, so operators can compare it out of band
func Fingerprint(pub crypto.PublicKey) (string, error) {
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to convert public key: %w", err)
	}
	return ssh.FingerprintSHA256(sshKey), nil
}

// PEMFingerprint calculates the fingerprint of a PEM encoded public key
func PEMFingerprint(pemData []byte) (string, error) {
	pub, err := parsePEM(pemData)
	if err != nil {
		return "", err
	}
	return Fingerprint(pub)
}

// AuthorizedKey returns the public key as a single authorized_keys line
func AuthorizedKey(pub crypto.PublicKey) (string, error) {
	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to convert public key: %w", err)
	}
	line := ssh.MarshalAuthorizedKey(sshKey)
	return string(line[:len(line)-1]), nil
}

// FingerprintMatches checks if two PEM public keys have the same fingerprint
func FingerprintMatches(pem1, pem2 []byte) (bool, error) {
	fp1, err := PEMFingerprint(pem1)
	if err != nil {
		return false, err
	}

	fp2, err := PEMFingerprint(pem2)
	if err != nil {
		return false, err
	}

	return fp1 == fp2, nil
}

func parsePEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return pub, nil
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key: %w", err)
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}
