// Package cryptox implements password verifiers: argon2id hashes encoded in
// the PHC string format. Verifiers are opaque to every other package.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// ErrEmptyPassword is returned when hashing an empty password.
var ErrEmptyPassword = oops.Code("PASSWORD_EMPTY").Errorf("password cannot be empty")

// PasswordHasher produces and checks password verifiers.
type PasswordHasher interface {
	// Hash returns a fresh verifier for password.
	Hash(password string) (string, error)

	// Verify reports whether password matches verifier. A malformed verifier
	// is an error, a mismatch is not.
	Verify(password, verifier string) (bool, error)
}

// Params are the argon2id cost settings.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// DefaultParams follow the OWASP argon2id recommendation.
var DefaultParams = Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	SaltLen: 16,
	KeyLen:  32,
}

// Argon2idHasher implements PasswordHasher.
type Argon2idHasher struct {
	p Params
}

func NewArgon2idHasher(p Params) *Argon2idHasher {
	return &Argon2idHasher{p: p}
}

// Hash encodes the result as
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	salt := common.GenerateRandByteArray(h.p.SaltLen)
	key := argon2.IDKey(pw, salt, h.p.Time, h.p.Memory, h.p.Threads, h.p.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.p.Memory,
		h.p.Time,
		h.p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters stored in verifier, so
// verifiers minted under older Params keep working.
func (h *Argon2idHasher) Verify(password, verifier string) (bool, error) {
	parts := strings.Split(verifier, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Errorf("unsupported verifier format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Errorf("unsupported argon2 version %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Wrap(err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Wrap(err)
	}
	if len(expected) == 0 || len(expected) > 1024 {
		return false, oops.Code("PASSWORD_VERIFIER_MALFORMED").Errorf("invalid key length %d", len(expected))
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	computed := argon2.IDKey(pw, salt, time, memory, uint8(threads), uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}
