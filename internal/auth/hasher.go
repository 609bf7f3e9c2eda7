// Package auth provides pluggable password hashing for the account store.
package auth

import (
	"fmt"
	"hash/fnv"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords. The store depends on this
// interface only, so swapping the default for a memory-hard hash is a
// single-point change (spec.md §9).
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// referenceSalt mirrors the original reference server's fixed salt
// exactly (original_source/server/Database.cpp: hashPassword).
const referenceSalt = "chat_salt_2024"

// ReferenceHasher is a salted, non-cryptographic digest. It is the
// default hasher and is NOT suitable for real deployment: it exists only
// to reproduce the reference implementation's behavior. Production
// deployments should use BcryptHasher or an equivalent memory-hard hash.
type ReferenceHasher struct{}

func (ReferenceHasher) Hash(password string) (string, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(password + referenceSalt))
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func (r ReferenceHasher) Verify(password, hash string) bool {
	got, _ := r.Hash(password)
	return got == hash
}

// BcryptHasher is the pluggable, cryptographically strong alternative
// spec.md §9 calls for production use. Not the default.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() BcryptHasher {
	return BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (b BcryptHasher) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
