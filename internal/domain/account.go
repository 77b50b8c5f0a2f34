package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role differentiates operators from paying customers.
type Role string

const (
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStaff || r == RoleCustomer
}

// Account is a login identity with a prepaid balance.
//
// Balance is never negative in storage. LastActivity is the billing epoch: the
// next charge covers the time elapsed since it. A nil LastActivity means the
// epoch has not been established since the last connect.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	Balance      decimal.Decimal
	IsOnline     bool
	LastActivity *time.Time
	CreatedAt    time.Time
}

// IsStaff reports whether the account belongs to an operator.
func (a *Account) IsStaff() bool {
	return a != nil && a.Role == RoleStaff
}
