package secure

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
)

const (
	aesKeySize   = 32
	gcmNonceSize = 12
	jpegQuality  = 90
)

var ErrEnvelopeShape = errors.New("secure: frame and nonce counts do not match")

// Envelope is a registration submission: every frame encrypted independently
// under one fresh AES-256 key, the key itself wrapped with the server's RSA
// public key. The plaintext key never leaves the packing process.
type Envelope struct {
	Frames     [][]byte // AES-GCM ciphertexts, one per captured frame
	Nonces     [][]byte // fresh 12-byte nonce per frame
	WrappedKey []byte   // RSA-OAEP-SHA256 over the AES key
}

// PackRegistration encrypts the burst for the registration upload.
func PackRegistration(frames [][]byte, serverKey *rsa.PublicKey) (*Envelope, error) {
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Frames: make([][]byte, 0, len(frames)),
		Nonces: make([][]byte, 0, len(frames)),
	}
	for i, frame := range frames {
		nonce := make([]byte, gcmNonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("generating nonce for frame %d: %w", i+1, err)
		}
		env.Frames = append(env.Frames, gcm.Seal(nil, nonce, frame, nil))
		env.Nonces = append(env.Nonces, nonce)
	}

	env.WrappedKey, err = rsa.EncryptOAEP(sha256.New(), rand.Reader, serverKey, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping session key: %w", err)
	}
	return env, nil
}

// Unpack reverses PackRegistration on the server: unwraps the session key and
// opens every frame. Any tampered ciphertext fails the whole envelope.
func Unpack(env *Envelope, serverKey *rsa.PrivateKey) ([][]byte, error) {
	if len(env.Frames) != len(env.Nonces) {
		return nil, ErrEnvelopeShape
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, serverKey, env.WrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrapping session key: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	frames := make([][]byte, 0, len(env.Frames))
	for i, ct := range env.Frames {
		if len(env.Nonces[i]) != gcm.NonceSize() {
			return nil, fmt.Errorf("frame %d: bad nonce length %d", i+1, len(env.Nonces[i]))
		}
		plain, err := gcm.Open(nil, env.Nonces[i], ct, nil)
		if err != nil {
			return nil, fmt.Errorf("opening frame %d: %w", i+1, err)
		}
		frames = append(frames, plain)
	}
	return frames, nil
}

// PackSigning encodes the single selected frame for the signing endpoint.
// The signing path sends it unencrypted; transport security covers it.
func PackSigning(frame image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}
	return gcm, nil
}
