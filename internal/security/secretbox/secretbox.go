// Package secretbox cifra secretos de configuración at-rest (AES-256-GCM).
// La clave maestra viene de SECRETBOX_MASTER_KEY (base64 de 32 bytes);
// generar con: openssl rand -base64 32.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	envVar    = "SECRETBOX_MASTER_KEY"
	keyLength = 32  // AES-256
	sep       = "|" // base64(nonce)|base64(ciphertext)
)

var (
	once    sync.Once
	key     []byte
	loadErr error
)

func ensureLoaded() error {
	once.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(envVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s not set; generate one with: openssl rand -base64 32", envVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", envVar, err)
			return
		}
		if len(k) != keyLength {
			loadErr = fmt.Errorf("%s must decode to %d bytes, got %d", envVar, keyLength, len(k))
			return
		}
		key = k
	})
	return loadErr
}

// Ready reporta si la clave maestra está cargada (para healthchecks).
func Ready() bool { return ensureLoaded() == nil }

// Encrypt cifra plain y retorna base64(nonce)|base64(ciphertext).
func Encrypt(plain string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	aead, err := newAEAD()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt revierte Encrypt.
func Decrypt(sealed string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	parts := strings.SplitN(sealed, sep, 2)
	if len(parts) != 2 {
		return "", errors.New("secretbox: malformed sealed value")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	aead, err := newAEAD()
	if err != nil {
		return "", err
	}
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", errors.New("secretbox: decrypt failed (wrong key?)")
	}
	return string(plain), nil
}

func newAEAD() (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// UnsafeResetForTests descarta la clave cargada para que el próximo uso
// relea el entorno. Solo para tests.
func UnsafeResetForTests() {
	once = sync.Once{}
	key = nil
	loadErr = nil
}
