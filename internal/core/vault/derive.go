package vault

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"

	"savings-lockbox/internal/core/domain"
)

const (
	MaxSeeds      = 16
	MaxSeedLength = 32

	derivationMarker = "ProgramDerivedAddress"
)

var (
	// LockBoxSeed prefixes the seeds of a lockbox record address.
	LockBoxSeed = []byte("lockbox")
	// CustodySeed prefixes the seeds of a custody account address.
	CustodySeed = []byte("vault")
)

var (
	ErrNoViableNonce = errors.New("vault: no nonce yields an off-curve address")
	ErrOnCurve       = errors.New("vault: derived address lies on the ed25519 curve")
	ErrInvalidSeeds  = errors.New("vault: invalid seeds")
)

// CreateDerivedAddress computes the address for seeds and a known nonce:
// blake2b-256(seed_1 ‖ … ‖ seed_n ‖ nonce ‖ programID ‖ "ProgramDerivedAddress").
// It fails with ErrOnCurve when the digest is a valid ed25519 point, since a
// private key could then exist for it.
func CreateDerivedAddress(programID domain.Address, seeds [][]byte, nonce uint8) (domain.Address, error) {
	var addr domain.Address
	if len(seeds) >= MaxSeeds {
		return addr, fmt.Errorf("%w: %d seeds", ErrInvalidSeeds, len(seeds))
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return addr, err
	}
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return addr, fmt.Errorf("%w: seed of %d bytes", ErrInvalidSeeds, len(s))
		}
		h.Write(s)
	}
	h.Write([]byte{nonce})
	h.Write(programID[:])
	h.Write([]byte(derivationMarker))
	copy(addr[:], h.Sum(nil))

	if isOnCurve(addr) {
		return domain.Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindDerivedAddress searches nonces from 255 down to 0 and returns the first
// off-curve address. The result is the canonical address for the seeds.
func FindDerivedAddress(programID domain.Address, seeds ...[]byte) (domain.Address, uint8, error) {
	for n := 255; n >= 0; n-- {
		addr, err := CreateDerivedAddress(programID, seeds, uint8(n))
		if errors.Is(err, ErrOnCurve) {
			continue
		}
		if err != nil {
			return domain.Address{}, 0, err
		}
		return addr, uint8(n), nil
	}
	return domain.Address{}, 0, ErrNoViableNonce
}

// DeriveLockBoxAddress returns the record address of owner's lockbox.
func DeriveLockBoxAddress(programID, owner domain.Address) (domain.Address, uint8, error) {
	return FindDerivedAddress(programID, LockBoxSeed, owner[:])
}

// DeriveCustodyAddress returns the keyless account that holds a lockbox's funds.
func DeriveCustodyAddress(programID, lockbox domain.Address) (domain.Address, uint8, error) {
	return FindDerivedAddress(programID, CustodySeed, lockbox[:])
}

func custodySeeds(lockbox domain.Address) [][]byte {
	return [][]byte{CustodySeed, lockbox.Bytes()}
}

// IsOnCurve reports whether addr decodes as an ed25519 public key.
func IsOnCurve(addr domain.Address) bool {
	return isOnCurve(addr)
}

func isOnCurve(addr domain.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(addr[:])
	return err == nil
}
