package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"time"

	sscrypt "github.com/elithrar/simple-scrypt"
	"golang.org/x/crypto/scrypt"

	"github.com/strata-backup/strata/internal/errors"
)

const saltLength = 64

// Params are the scrypt cost parameters used to derive a key-encryption
// key from a password. They travel with each envelope so a repository's
// KDF cost can be bumped over time without invalidating envelopes
// created under an older, cheaper cost.
type Params struct {
	N int
	R int
	P int
}

// DefaultKDFParams are used whenever a caller has not run Calibrate,
// e.g. in tests or non-interactive contexts.
var DefaultKDFParams = Params{
	N: sscrypt.DefaultParams.N,
	R: sscrypt.DefaultParams.R,
	P: sscrypt.DefaultParams.P,
}

// Calibrate probes the local machine to find scrypt cost parameters that
// take approximately timeout to compute, using no more than memory
// megabytes of RAM.
func Calibrate(timeout time.Duration, memory int) (Params, error) {
	defaultParams := sscrypt.Params{
		N:       DefaultKDFParams.N,
		R:       DefaultKDFParams.R,
		P:       DefaultKDFParams.P,
		DKLen:   sscrypt.DefaultParams.DKLen,
		SaltLen: sscrypt.DefaultParams.SaltLen,
	}

	params, err := sscrypt.Calibrate(timeout, memory, defaultParams)
	if err != nil {
		return DefaultKDFParams, errors.Wrap(err, "scrypt.Calibrate")
	}

	return Params{N: params.N, R: params.R, P: params.P}, nil
}

// KDF derives a key-encryption Key from password and salt using scrypt
// under the given cost parameters.
func KDF(p Params, salt []byte, password string) (*Key, error) {
	if len(salt) != saltLength {
		return nil, errors.Errorf("scrypt() called with invalid salt bytes (len %d)", len(salt))
	}

	params := sscrypt.Params{
		N:       p.N,
		R:       p.R,
		P:       p.P,
		DKLen:   sscrypt.DefaultParams.DKLen,
		SaltLen: len(salt),
	}
	if err := params.Check(); err != nil {
		return nil, errors.Wrap(err, "check KDF parameters")
	}

	keybytes := macKeySize + aesKeySize
	derived, err := scrypt.Key([]byte(password), salt, p.N, p.R, p.P, keybytes)
	if err != nil {
		return nil, errors.Wrap(err, "scrypt.Key")
	}
	if len(derived) != keybytes {
		return nil, errors.Errorf("invalid number of bytes expanded from scrypt(): %d", len(derived))
	}

	k := &Key{}
	copy(k.EncryptionKey[:], derived[:aesKeySize])
	copy(k.MACKey.K[:], derived[aesKeySize:aesKeySize+macKeySizeK])
	copy(k.MACKey.R[:], derived[aesKeySize+macKeySizeK:])
	maskKey(&k.MACKey)
	return k, nil
}

// NewSalt returns new random salt bytes for use with KDF. It panics if
// the random source cannot supply enough bytes (without entropy there is
// no safe way to derive a key-encryption key), so the returned error is
// always nil.
func NewSalt() ([]byte, error) {
	buf := make([]byte, saltLength)
	n, err := rand.Read(buf)
	if n != saltLength || err != nil {
		panic("unable to read enough random bytes for new salt")
	}
	return buf, nil
}

// Equal reports whether two Keys are identical, comparing secret material
// in constant time.
func (k *Key) Equal(other *Key) bool {
	if k == nil || other == nil {
		return k == other
	}
	encOK := subtle.ConstantTimeCompare(k.EncryptionKey[:], other.EncryptionKey[:]) == 1
	kOK := subtle.ConstantTimeCompare(k.MACKey.K[:], other.MACKey.K[:]) == 1
	rOK := subtle.ConstantTimeCompare(k.MACKey.R[:], other.MACKey.R[:]) == 1
	return encOK && kOK && rOK
}
