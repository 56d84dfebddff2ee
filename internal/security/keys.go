package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnsupportedKey = errors.New("unsupported key type")

// ReadPrivateKeyFile : loads a PEM private key (RSA, EC or Ed25519).
func ReadPrivateKeyFile(path string) (crypto.Signer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if key, err := jwt.ParseRSAPrivateKeyFromPEM(content); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPrivateKeyFromPEM(content); err == nil {
		return key, nil
	}
	key, err := jwt.ParseEdPrivateKeyFromPEM(content)
	if err != nil {
		return nil, fmt.Errorf("no private key in %s: %w", path, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, ErrUnsupportedKey
	}
	return signer, nil
}

// ReadPublicKeyFile : loads a PEM public key, or derives it from a PEM private key.
func ReadPublicKeyFile(path string) (crypto.PublicKey, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if key, err := jwt.ParseRSAPublicKeyFromPEM(content); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(content); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseEdPublicKeyFromPEM(content); err == nil {
		return key, nil
	}

	signer, err := ReadPrivateKeyFile(path)
	if err != nil {
		return nil, fmt.Errorf("no public key in %s: %w", path, err)
	}
	return signer.Public(), nil
}

func signingMethodFor(key crypto.Signer) (jwt.SigningMethod, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return jwt.SigningMethodRS256, nil
	case *ecdsa.PrivateKey:
		switch k.Curve.Params().BitSize {
		case 256:
			return jwt.SigningMethodES256, nil
		case 384:
			return jwt.SigningMethodES384, nil
		case 521:
			return jwt.SigningMethodES512, nil
		}
	case ed25519.PrivateKey:
		return jwt.SigningMethodEdDSA, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
}
