// Package keycrypto cifra el material privado de las claves de firma en reposo.
//
// La clave AES-256 se deriva del master key (SIGNING_MASTER_KEY) con HKDF-SHA256,
// así el master key puede ser cualquier secreto de alta entropía y no
// necesariamente 32 bytes exactos. Formato: base64(nonce)|base64(ciphertext).
package keycrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	nonceSizeGCM = 12
	keyLength    = 32
	sep          = "|"
	hkdfInfo     = "jwkgate/signing-key/v1"
	minMasterLen = 16
)

var (
	ErrNoMasterKey   = errors.New("keycrypto: master key no configurada")
	ErrWeakMasterKey = errors.New("keycrypto: master key demasiado corta (min 16 bytes)")
	ErrFormat        = errors.New("keycrypto: formato inválido, esperado base64(nonce)|base64(ciphertext)")
)

// Box cifra y descifra con una clave derivada del master key.
type Box struct {
	aead cipher.AEAD
}

// New deriva la clave y prepara el AEAD.
func New(masterKey string) (*Box, error) {
	mk := strings.TrimSpace(masterKey)
	if mk == "" {
		return nil, ErrNoMasterKey
	}
	if len(mk) < minMasterLen {
		return nil, ErrWeakMasterKey
	}

	key := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(mk), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("keycrypto: hkdf: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keycrypto: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keycrypto: cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal cifra plain; aad liga el ciphertext a un contexto (usamos el kid).
func (b *Box) Seal(plain []byte, aad string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("keycrypto: nonce: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, plain, []byte(aad))
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Open revierte Seal. Falla si el ciphertext o el aad fueron alterados.
func (b *Box) Open(sealed string, aad string) ([]byte, error) {
	nonceB64, ctB64, ok := strings.Cut(sealed, sep)
	if !ok {
		return nil, ErrFormat
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return nil, fmt.Errorf("keycrypto: decode nonce: %w", err)
	}
	if len(nonce) != nonceSizeGCM {
		return nil, fmt.Errorf("keycrypto: nonce inválido: %d bytes", len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return nil, fmt.Errorf("keycrypto: decode ciphertext: %w", err)
	}
	pt, err := b.aead.Open(nil, nonce, ct, []byte(aad))
	if err != nil {
		return nil, fmt.Errorf("keycrypto: gcm auth/decrypt: %w", err)
	}
	return pt, nil
}
