// internal/services/errors.go
package services

import "errors"

// Profiles and authentication
var (
	ErrProfileNotFound          = errors.New("profile not found")
	ErrEmailTaken               = errors.New("user with this email already exists")
	ErrUsernameTaken            = errors.New("username already taken")
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrInvalidRefreshToken      = errors.New("invalid refresh token")
	ErrInvalidVerificationToken = errors.New("invalid verification token")
	ErrPhoneInUse               = errors.New("phone number is linked to another profile")
)

// Opportunities
var (
	ErrOpportunityNotFound = errors.New("opportunity not found")
	ErrNotOpportunityOwner = errors.New("only the owner can change this opportunity")
	ErrOpportunityNotOpen  = errors.New("opportunity is not open")
)

// Payments and escrows
var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvalidAmount        = errors.New("amount does not match the listing price")
	ErrOwnListing           = errors.New("cannot pay for your own listing")
	ErrSellerWalletMissing  = errors.New("seller has no wallet address")
	ErrBuyerWalletMissing   = errors.New("buyer has no wallet address")
	ErrCurrencyMismatch     = errors.New("listing currency is not the escrow token")
	ErrEscrowTxRequired     = errors.New("crypto payments need the buyer's escrow transaction hash")
	ErrWrongNetwork         = errors.New("wallet is not on the target network")
	ErrEscrowMismatch       = errors.New("escrow does not match this purchase")
	ErrPaymentNotPending    = errors.New("payment is no longer pending")
	ErrNotEscrowParty       = errors.New("caller is not the authorized party for this escrow")
	ErrEscrowNotHeld        = errors.New("escrow is not held")
	ErrSettlementInProgress = errors.New("escrow settlement already in progress")
	ErrInvalidEscrowRole    = errors.New("role must be buyer, seller or all")
)

// Token ledger
var (
	ErrAlreadyClaimed   = errors.New("reward already claimed")
	ErrUnknownClaimType = errors.New("unknown claim type")
	ErrNotEligible      = errors.New("not eligible for this reward")
)

// Administration
var ErrOwnRoleChange = errors.New("admins cannot change their own role")
