package vault

import (
	"errors"
	"fmt"

	"savings-lockbox/internal/core/domain"
)

var (
	ErrLedgerInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrLedgerUnauthorized      = errors.New("ledger: transfer not authorized by source")
)

type AuthorityKind uint8

const (
	AuthoritySigner AuthorityKind = iota + 1
	AuthorityDelegated
)

func (k AuthorityKind) String() string {
	switch k {
	case AuthoritySigner:
		return "signer"
	case AuthorityDelegated:
		return "delegated"
	default:
		return "unknown"
	}
}

// Authorization proves the right to debit a source account. A signer proof
// names the key holder; a delegation proof carries the seeds and nonce from
// which the source address is re-derived.
type Authorization struct {
	Kind      AuthorityKind
	Signer    domain.Address
	ProgramID domain.Address
	Seeds     [][]byte
	Nonce     uint8
}

// SignerAuthority authorizes a debit signed by the account's own key.
func SignerAuthority(signer domain.Address) Authorization {
	return Authorization{Kind: AuthoritySigner, Signer: signer}
}

// DelegatedAuthority authorizes a debit from the address derived from seeds and nonce.
func DelegatedAuthority(programID domain.Address, seeds [][]byte, nonce uint8) Authorization {
	return Authorization{Kind: AuthorityDelegated, ProgramID: programID, Seeds: seeds, Nonce: nonce}
}

// Verify checks that the authorization covers a debit from source.
func (a Authorization) Verify(source domain.Address) error {
	switch a.Kind {
	case AuthoritySigner:
		if a.Signer != source {
			return fmt.Errorf("%w: signer %s is not %s", ErrLedgerUnauthorized, a.Signer, source)
		}
		return nil
	case AuthorityDelegated:
		derived, err := CreateDerivedAddress(a.ProgramID, a.Seeds, a.Nonce)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLedgerUnauthorized, err)
		}
		if derived != source {
			return fmt.Errorf("%w: proof derives %s, not %s", ErrLedgerUnauthorized, derived, source)
		}
		return nil
	default:
		return fmt.Errorf("%w: no authority", ErrLedgerUnauthorized)
	}
}
