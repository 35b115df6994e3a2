package beacon

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

const (
	privateKeyPEMType = "PRIVATE KEY"
	publicKeyPEMType  = "PUBLIC KEY"
)

// LoadOrGenerateKeyPair reads an Ed25519 key pair from privPath/pubPath,
// generating and persisting a fresh pair if privPath does not exist.
func LoadOrGenerateKeyPair(privPath, pubPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if _, err := os.Stat(privPath); errors.Is(err, os.ErrNotExist) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("beacon: generate key: %w", err)
		}
		if err := writeKeyPair(privPath, pubPath, priv, pub); err != nil {
			return nil, nil, err
		}
		return priv, pub, nil
	}

	priv, err := readPrivateKey(privPath)
	if err != nil {
		return nil, nil, err
	}
	return priv, priv.Public().(ed25519.PublicKey), nil
}

func writeKeyPair(privPath, pubPath string, priv ed25519.PrivateKey, pub ed25519.PublicKey) error {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("beacon: marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: privDER})
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return fmt.Errorf("beacon: write private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("beacon: marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: pubDER})
	if err := os.WriteFile(pubPath, pubPEM, 0644); err != nil {
		return fmt.Errorf("beacon: write public key: %w", err)
	}
	return nil
}

func readPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("beacon: read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("beacon: %s is not a PEM-encoded private key", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("beacon: parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("beacon: %s does not hold an Ed25519 key", path)
	}
	return priv, nil
}

// PublicKeyPEM returns the PEM SubjectPublicKeyInfo encoding of pub.
func PublicKeyPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("beacon: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der}), nil
}
