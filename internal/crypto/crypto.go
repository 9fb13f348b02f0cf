// Package crypto implements the Cipher component (§4.2): authenticated
// symmetric encryption of blobs under a repository master key. The scheme
// is AES-256-CTR for confidentiality and Poly1305-AES128 for
// authentication, combined the same way restic's crypto layer does it:
// IV‖ciphertext‖tag, with the tag computed over IV and ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/poly1305"

	"github.com/strata-backup/strata/internal/errors"
)

const (
	aesKeySize  = 32
	macKeySizeK = 16
	macKeySizeR = 16
	macKeySize  = macKeySizeK + macKeySizeR
	ivSize      = aes.BlockSize
	macSize     = poly1305.TagSize

	// Extension is the number of bytes a plaintext is enlarged by Seal.
	Extension = ivSize + macSize
)

// CryptoErrorKind distinguishes the ways an Open can fail.
type CryptoErrorKind int

const (
	// Tampered means the authentication tag did not verify: either the
	// ciphertext was modified, or it was sealed under a different key.
	Tampered CryptoErrorKind = iota
	// WrongKey is raised by callers (e.g. the keystore's trial-decryption
	// loop) that have independent context that the key, not the
	// ciphertext, is at fault. Open itself cannot distinguish the two
	// cases and always reports Tampered.
	WrongKey
)

// CryptoError is returned when an authenticated decryption fails.
type CryptoError struct {
	Kind CryptoErrorKind
}

func (e *CryptoError) Error() string {
	switch e.Kind {
	case WrongKey:
		return "crypto: wrong key"
	default:
		return "crypto: ciphertext verification failed"
	}
}

// Key holds the encryption and MAC keys for one repository master key or
// key-encryption-key.
type Key struct {
	MACKey
	EncryptionKey
}

// EncryptionKey is the AES-256 key used for confidentiality.
type EncryptionKey [aesKeySize]byte

// MACKey is used to authenticate sealed blobs.
type MACKey struct {
	K [macKeySizeK]byte
	R [macKeySizeR]byte

	masked bool
}

// poly1305 key mask, see https://cr.yp.to/mac/poly1305-20050329.pdf.
var poly1305KeyMask = [16]byte{
	0xff, 0xff, 0xff, 0x0f,
	0xfc, 0xff, 0xff, 0x0f,
	0xfc, 0xff, 0xff, 0x0f,
	0xfc, 0xff, 0xff, 0x0f,
}

func maskKey(k *MACKey) {
	if k == nil || k.masked {
		return
	}
	for i := 0; i < poly1305.TagSize; i++ {
		k.R[i] &= poly1305KeyMask[i]
	}
	k.masked = true
}

func poly1305PrepareKey(nonce []byte, key *MACKey) [32]byte {
	var k [32]byte
	maskKey(key)

	c, err := aes.NewCipher(key.K[:])
	if err != nil {
		panic(err)
	}
	c.Encrypt(k[16:], nonce)
	copy(k[:16], key.R[:])
	return k
}

func poly1305MAC(msg, nonce []byte, key *MACKey) []byte {
	k := poly1305PrepareKey(nonce, key)
	var out [16]byte
	poly1305.Sum(&out, msg, &k)
	return out[:]
}

func poly1305Verify(msg, nonce []byte, key *MACKey, mac []byte) bool {
	k := poly1305PrepareKey(nonce, key)
	var m [16]byte
	copy(m[:], mac)
	return poly1305.Verify(&m, msg, &k)
}

// NewRandomKey generates a fresh random encryption and MAC key pair, used
// both for the repository master key and for key-encryption-keys derived
// ad hoc (the KDF normally fills this role for KEKs, but tests and the
// "generate a brand-new master key at init" path need a direct random
// source too).
func NewRandomKey() *Key {
	k := &Key{}
	if _, err := rand.Read(k.EncryptionKey[:]); err != nil {
		panic("unable to read enough random bytes for encryption key")
	}
	if _, err := rand.Read(k.MACKey.K[:]); err != nil {
		panic("unable to read enough random bytes for MAC encryption key")
	}
	if _, err := rand.Read(k.MACKey.R[:]); err != nil {
		panic("unable to read enough random bytes for MAC key")
	}
	maskKey(&k.MACKey)
	return k
}

func newIV() []byte {
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		panic("unable to read enough random bytes for iv")
	}
	return iv
}

// Valid reports whether k is non-zero.
func (k *Key) Valid() bool {
	return k.EncryptionKey.valid() && k.MACKey.valid()
}

func (k *EncryptionKey) valid() bool {
	for _, b := range k {
		if b != 0 {
			return true
		}
	}
	return false
}

func (m *MACKey) valid() bool {
	nonzeroK := false
	for _, b := range m.K {
		if b != 0 {
			nonzeroK = true
		}
	}
	if !nonzeroK {
		return false
	}
	for _, b := range m.R {
		if b != 0 {
			return true
		}
	}
	return false
}

// Seal authenticates and encrypts plaintext under key, drawing a fresh
// random nonce for every call. The result is nonce‖ciphertext‖tag.
func Seal(key *Key, plaintext []byte) ([]byte, error) {
	if !key.Valid() {
		return nil, errors.New("crypto: invalid key")
	}

	iv := newIV()
	ciphertext := make([]byte, ivSize, ivSize+len(plaintext)+macSize)
	copy(ciphertext, iv)

	c, err := aes.NewCipher(key.EncryptionKey[:])
	if err != nil {
		panic(fmt.Sprintf("unable to create cipher: %v", err))
	}
	stream := cipher.NewCTR(c, iv)
	ciphertext = append(ciphertext, make([]byte, len(plaintext))...)
	stream.XORKeyStream(ciphertext[ivSize:], plaintext)

	mac := poly1305MAC(ciphertext[ivSize:], ciphertext[:ivSize], &key.MACKey)
	ciphertext = append(ciphertext, mac...)
	return ciphertext, nil
}

// Open verifies and decrypts ciphertext (nonce‖ciphertext‖tag) under key.
// A bit flip anywhere in the input, or a mismatched key, causes Open to
// fail with a *CryptoError of kind Tampered.
func Open(key *Key, ciphertext []byte) ([]byte, error) {
	if !key.Valid() {
		return nil, errors.New("crypto: invalid key")
	}
	if len(ciphertext) < Extension {
		return nil, errors.Errorf("crypto: ciphertext too small (%d bytes)", len(ciphertext))
	}

	l := len(ciphertext) - macSize
	ciphertextWithIV, mac := ciphertext[:l], ciphertext[l:]
	iv, ct := ciphertextWithIV[:ivSize], ciphertextWithIV[ivSize:]

	if !poly1305Verify(ct, iv, &key.MACKey, mac) {
		return nil, &CryptoError{Kind: Tampered}
	}

	c, err := aes.NewCipher(key.EncryptionKey[:])
	if err != nil {
		panic(fmt.Sprintf("unable to create cipher: %v", err))
	}
	plaintext := make([]byte, len(ct))
	cipher.NewCTR(c, iv).XORKeyStream(plaintext, ct)
	return plaintext, nil
}

type jsonMACKey struct {
	K []byte `json:"k"`
	R []byte `json:"r"`
}

// MarshalJSON implements json.Marshaler for MACKey.
func (m MACKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonMACKey{K: m.K[:], R: m.R[:]})
}

// UnmarshalJSON implements json.Unmarshaler for MACKey.
func (m *MACKey) UnmarshalJSON(data []byte) error {
	var j jsonMACKey
	if err := json.Unmarshal(data, &j); err != nil {
		return errors.Wrap(err, "unmarshal MACKey")
	}
	copy(m.K[:], j.K)
	copy(m.R[:], j.R)
	return nil
}

// MarshalJSON implements json.Marshaler for EncryptionKey.
func (k EncryptionKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k[:])
}

// UnmarshalJSON implements json.Unmarshaler for EncryptionKey.
func (k *EncryptionKey) UnmarshalJSON(data []byte) error {
	d := make([]byte, aesKeySize)
	if err := json.Unmarshal(data, &d); err != nil {
		return errors.Wrap(err, "unmarshal EncryptionKey")
	}
	copy(k[:], d)
	return nil
}
