// Package keystore implements the Keystore component (§4.3): password
// envelopes that wrap a single repository master key under one or more
// key-encryption keys, so the master key never changes when a password
// is added, rotated, or removed.
package keystore

import (
	"encoding/json"
	"path"
	"sort"
	"time"

	"github.com/strata-backup/strata/internal/backend"
	"github.com/strata-backup/strata/internal/crypto"
	"github.com/strata-backup/strata/internal/debug"
	"github.com/strata-backup/strata/internal/errors"
	"github.com/strata-backup/strata/internal/hashing"
	"github.com/strata-backup/strata/internal/ids"
)

// dirName is the on-disk directory holding one file per envelope (§6.2).
const dirName = "keys"

// AuthErrorKind distinguishes keystore authentication failures.
type AuthErrorKind int

const (
	// NoMatchingEnvelope means the given password did not open any
	// stored envelope.
	NoMatchingEnvelope AuthErrorKind = iota
)

// AuthError is returned when a password cannot be matched to any
// envelope (§7).
type AuthError struct {
	Kind AuthErrorKind
}

func (e *AuthError) Error() string {
	return "keystore: no envelope accepts the given password"
}

// Envelope is the on-disk JSON structure persisted to keys/<id>: a
// master key sealed under a key-encryption key derived from one
// password, plus the KDF parameters and salt needed to re-derive that
// KEK (§4.3, §6.2).
type Envelope struct {
	ID              ids.ID       `json:"id"`
	Salt            []byte       `json:"salt"`
	Params          crypto.Params `json:"params"`
	Created         time.Time    `json:"created"`
	SealedMasterKey []byte       `json:"sealed_master_key"`
}

func envelopePath(envelopeID ids.ID) string {
	return path.Join(dirName, envelopeID.String())
}

// AddPassword is called once, at repository init: it generates a fresh
// random master key, derives a key-encryption key from password, and
// writes the first envelope. The returned master key is what every
// subsequent Seal/Open call in the repository uses.
func AddPassword(be backend.Backend, password string) (*crypto.Key, error) {
	masterKey := crypto.NewRandomKey()
	if err := AddEnvelope(be, masterKey, password); err != nil {
		return nil, err
	}
	return masterKey, nil
}

// AddEnvelope wraps the existing masterKey under a freshly derived
// key-encryption key for password and writes a new envelope file. It
// never touches already-encrypted repository data: adding a password
// never re-keys anything (§4.3).
func AddEnvelope(be backend.Backend, masterKey *crypto.Key, password string) error {
	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	params := crypto.DefaultKDFParams

	kek, err := crypto.KDF(params, salt, password)
	if err != nil {
		return err
	}

	sealed, err := crypto.Seal(kek, masterKeyBytes(masterKey))
	if err != nil {
		return err
	}

	envelopeID := newEnvelopeID(salt, sealed)
	env := Envelope{
		ID:              envelopeID,
		Salt:            salt,
		Params:          params,
		Created:         time.Now(),
		SealedMasterKey: sealed,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}

	if err := be.CreateDir(dirName); err != nil {
		debug.Log("CreateDir(%s) failed, continuing: %v", dirName, err)
	}

	if err := be.Write(envelopePath(envelopeID), data); err != nil {
		return errors.Wrap(err, "write envelope")
	}
	debug.Log("wrote envelope %s", envelopeID)
	return nil
}

// RetrieveKey lists every envelope under keys/ and trial-decrypts each
// one's sealed master key under a KEK derived from password, returning
// the master key from the first envelope that opens cleanly. Envelopes
// are tried in a stable (sorted) order so the result is deterministic
// even when several envelopes exist.
func RetrieveKey(be backend.Backend, password string) (*crypto.Key, error) {
	names, err := be.ReadDir(dirName)
	if err != nil {
		return nil, errors.Wrap(err, "list key envelopes")
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := be.Read(path.Join(dirName, name))
		if err != nil {
			debug.Log("skipping unreadable envelope %s: %v", name, err)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			debug.Log("skipping malformed envelope %s: %v", name, err)
			continue
		}

		kek, err := crypto.KDF(env.Params, env.Salt, password)
		if err != nil {
			debug.Log("KDF failed for envelope %s: %v", name, err)
			continue
		}

		plaintext, err := crypto.Open(kek, env.SealedMasterKey)
		if err != nil {
			// This password simply doesn't apply to this envelope; try
			// the next one rather than surfacing crypto's generic
			// Tampered verdict.
			continue
		}

		masterKey, err := masterKeyFromBytes(plaintext)
		if err != nil {
			continue
		}
		return masterKey, nil
	}

	return nil, &AuthError{Kind: NoMatchingEnvelope}
}

// newEnvelopeID derives a stable identifier for an envelope from its
// salt and sealed payload, so two envelopes never collide on disk even
// if created in the same instant.
func newEnvelopeID(salt, sealed []byte) ids.ID {
	buf := make([]byte, 0, len(salt)+len(sealed))
	buf = append(buf, salt...)
	buf = append(buf, sealed...)
	return hashing.Hash(buf)
}

func masterKeyBytes(k *crypto.Key) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, k.EncryptionKey[:]...)
	buf = append(buf, k.MACKey.K[:]...)
	buf = append(buf, k.MACKey.R[:]...)
	return buf
}

func masterKeyFromBytes(b []byte) (*crypto.Key, error) {
	if len(b) != 64 {
		return nil, errors.Errorf("keystore: malformed master key (%d bytes)", len(b))
	}
	k := &crypto.Key{}
	copy(k.EncryptionKey[:], b[:32])
	copy(k.MACKey.K[:], b[32:48])
	copy(k.MACKey.R[:], b[48:64])
	return k, nil
}
