package signing

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultKeyBits is the RSA modulus size for generated key pairs
const DefaultKeyBits = 2048

// LoadPrivateKey reads an RSA private key from a PEM file (PKCS#8 or PKCS#1)
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &KeyLoadError{Path: path, Op: "read private", Err: err}
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &KeyLoadError{Path: path, Op: "parse private", Err: errors.New("no PEM block found")}
	}

	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, &KeyLoadError{Path: path, Op: "parse private", Err: err}
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, &KeyLoadError{Path: path, Op: "parse private", Err: fmt.Errorf("%w: %T", ErrUnsupportedKey, key)}
		}
		return rsaKey, nil

	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, &KeyLoadError{Path: path, Op: "parse private", Err: err}
		}
		return key, nil

	default:
		return nil, &KeyLoadError{Path: path, Op: "parse private", Err: fmt.Errorf("unexpected PEM block %q", block.Type)}
	}
}

// LoadPublicKey reads an RSA public key from a PEM file (PKIX or PKCS#1)
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &KeyLoadError{Path: path, Op: "read public", Err: err}
	}

	key, err := ParsePublicKeyPEM(data)
	if err != nil {
		return nil, &KeyLoadError{Path: path, Op: "parse public", Err: err}
	}
	return key, nil
}

// ParsePublicKeyPEM decodes an RSA public key from PEM bytes
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
		}
		return rsaKey, nil

	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)

	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

// EncodePublicKeyPEM encodes an RSA public key as a PKIX PEM block
func EncodePublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// GenerateKeyPair creates a new RSA key pair and writes it to the given
// paths: the private key as PKCS#8 with mode 0600, the public key as PKIX.
func GenerateKeyPair(privatePath, publicPath string, bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(privatePath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory for private key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(publicPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for public key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(privatePath, privPEM, 0600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	pubPEM, err := EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(publicPath, pubPEM, 0644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	return priv, nil
}

// KeyStore loads the signing key pair once and hands out immutable keys.
// A failed load is not cached, so a fixed key file is picked up on the next
// call; a successful load is never repeated.
type KeyStore struct {
	privatePath string
	publicPath  string

	mu      sync.Mutex
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// NewKeyStore creates a key store for the given PEM paths. Either path may be
// empty when that half of the pair is not needed (clients hold only the
// public key).
func NewKeyStore(privatePath, publicPath string) *KeyStore {
	return &KeyStore{
		privatePath: privatePath,
		publicPath:  publicPath,
	}
}

// LoadOrGenerate loads the key pair, generating and saving one first when the
// private key file does not exist.
func LoadOrGenerate(privatePath, publicPath string, bits int) (*KeyStore, error) {
	ks := NewKeyStore(privatePath, publicPath)

	if _, err := os.Stat(privatePath); errors.Is(err, os.ErrNotExist) {
		priv, err := GenerateKeyPair(privatePath, publicPath, bits)
		if err != nil {
			return nil, err
		}
		ks.private = priv
		ks.public = &priv.PublicKey
		return ks, nil
	}

	if _, err := ks.PrivateKey(); err != nil {
		return nil, err
	}
	return ks, nil
}

// PrivateKey returns the cached private key, loading it on first use
func (ks *KeyStore) PrivateKey() (*rsa.PrivateKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	return ks.privateLocked()
}

// PublicKey returns the cached public key. It is read from the public key
// file when one is configured, otherwise derived from the private key.
func (ks *KeyStore) PublicKey() (*rsa.PublicKey, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.public != nil {
		return ks.public, nil
	}

	if ks.publicPath == "" {
		priv, err := ks.privateLocked()
		if err != nil {
			return nil, err
		}
		return &priv.PublicKey, nil
	}

	key, err := LoadPublicKey(ks.publicPath)
	if err != nil {
		return nil, err
	}
	ks.public = key
	return key, nil
}

func (ks *KeyStore) privateLocked() (*rsa.PrivateKey, error) {
	if ks.private != nil {
		return ks.private, nil
	}
	if ks.privatePath == "" {
		return nil, &KeyLoadError{Op: "read private", Err: errors.New("no private key path configured")}
	}

	key, err := LoadPrivateKey(ks.privatePath)
	if err != nil {
		return nil, err
	}
	ks.private = key
	return key, nil
}

// Signer returns a signer backed by the private key
func (ks *KeyStore) Signer() (*Signer, error) {
	priv, err := ks.PrivateKey()
	if err != nil {
		return nil, err
	}
	return NewSigner(priv), nil
}

// Verifier returns a verifier backed by the public key
func (ks *KeyStore) Verifier() (*Verifier, error) {
	pub, err := ks.PublicKey()
	if err != nil {
		return nil, err
	}
	return NewVerifier(pub), nil
}
