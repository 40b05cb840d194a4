package handlers

import (
	"crypto/rsa"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/adamscao/licenseserver/internal/signing"
	"github.com/adamscao/licenseserver/pkg/keyutil"
)

// PublicKeySource provides the signing public key
type PublicKeySource interface {
	PublicKey() (*rsa.PublicKey, error)
}

// KeyHandler distributes the license signing public key
type KeyHandler struct {
	keys PublicKeySource
}

// NewKeyHandler creates a new key handler
func NewKeyHandler(keys PublicKeySource) *KeyHandler {
	return &KeyHandler{
		keys: keys,
	}
}

// PublicKeyResponse represents the public key response
type PublicKeyResponse struct {
	PublicKey   string `json:"public_key"`
	Fingerprint string `json:"fingerprint"`
	Algorithm   string `json:"algorithm"`
	Bits        int    `json:"bits"`
}

// GetPublicKey returns the PEM public key clients verify licenses with.
// ?format=pem returns the bare PEM.
// GET /api/v1/keys/public
func (h *KeyHandler) GetPublicKey(c *gin.Context) {
	pub, err := h.keys.PublicKey()
	if err != nil {
		log.WithError(err).Error("Failed to load public key")
		RespondError(c, http.StatusInternalServerError, "key_error", "Public key unavailable")
		return
	}

	pemData, err := signing.EncodePublicKeyPEM(pub)
	if err != nil {
		log.WithError(err).Error("Failed to encode public key")
		RespondError(c, http.StatusInternalServerError, "key_error", "Public key unavailable")
		return
	}

	if c.Query("format") == "pem" {
		c.Data(http.StatusOK, "application/x-pem-file", pemData)
		return
	}

	fingerprint, err := keyutil.Fingerprint(pub)
	if err != nil {
		log.WithError(err).Error("Failed to fingerprint public key")
		RespondError(c, http.StatusInternalServerError, "key_error", "Public key unavailable")
		return
	}

	RespondSuccess(c, PublicKeyResponse{
		PublicKey:   string(pemData),
		Fingerprint: fingerprint,
		Algorithm:   "RSA-PSS-SHA256",
		Bits:        pub.N.BitLen(),
	})
}
