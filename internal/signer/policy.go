package signer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	apperrors "github.com/o3willard-AI/agentpki/internal/errors"
)

const minRSABits = 2048

// enforceKeyPolicy rejects public keys below the issuance bar: RSA under
// 2048 bits, EC curves other than P-256, and any other key type
func enforceKeyPolicy(pub crypto.PublicKey) error {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		bits := key.N.BitLen()
		if bits < minRSABits {
			return apperrors.KeyPolicyRsaTooSmall(bits)
		}
	case *ecdsa.PublicKey:
		if key.Curve == nil || key.Curve.Params() == nil {
			return apperrors.KeyPolicyUnknownEcCurve()
		}
		if key.Curve != elliptic.P256() {
			return apperrors.KeyPolicyUnsupportedEcCurve(key.Curve.Params().Name)
		}
	default:
		return apperrors.KeyPolicyUnsupportedKeyType(fmt.Sprintf("%T", pub))
	}
	return nil
}
