package postgres

import (
	"time"

	"savings-lockbox/internal/core/domain"

	"github.com/pashagolub/pgxmock/v4"
)

func testAddr(fill byte) domain.Address {
	var a domain.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

func newTestLockBox() *domain.LockBox {
	return &domain.LockBox{
		Owner:            testAddr(1),
		Address:          testAddr(2),
		TargetAmount:     1000,
		CurrentBalance:   500,
		HasReachedTarget: false,
		IsActive:         true,
		Nonce:            254,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func lockboxRowColumns() []string {
	return []string{"owner", "address", "target_amount", "current_balance", "has_reached_target", "is_active", "nonce", "created_at"}
}

func lockboxRow(lb *domain.LockBox) *pgxmock.Rows {
	return pgxmock.NewRows(lockboxRowColumns()).AddRow(
		lb.Owner.String(), lb.Address.String(), lb.TargetAmount, lb.CurrentBalance,
		lb.HasReachedTarget, lb.IsActive, int16(lb.Nonce), lb.CreatedAt,
	)
}
