// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Common
	KeySuccess = "success"
	KeyError   = "error"

	// Authentication
	KeyAuthRequired            = "auth.required"
	KeyAuthInvalidToken        = "auth.invalid_token"
	KeyAuthTokenExpired        = "auth.token_expired"
	KeyAuthInvalidCredentials  = "auth.invalid_credentials"
	KeyAuthUserExists          = "auth.user_exists"
	KeyAuthLoginSuccess        = "auth.login_success"
	KeyAuthRegisterSuccess     = "auth.register_success"
	KeyAuthEmailVerified       = "auth.email_verified"
	KeyAuthVerificationInvalid = "auth.verification_invalid"

	// Access
	KeyAccessDenied = "access.denied"

	// Profiles
	KeyProfileUpdated    = "profile.updated"
	KeyProfileNotFound   = "profile.not_found"
	KeyProfilePhoneInUse = "profile.phone_in_use"

	// Opportunities
	KeyOpportunityCreated  = "opportunity.created"
	KeyOpportunityUpdated  = "opportunity.updated"
	KeyOpportunityDeleted  = "opportunity.deleted"
	KeyOpportunityNotFound = "opportunity.not_found"
	KeyOpportunityNotOpen  = "opportunity.not_open"
	KeyOpportunityNotOwner = "opportunity.not_owner"

	// Payments
	KeyPaymentSuccess          = "payment.success"
	KeyPaymentFailed           = "payment.failed"
	KeyPaymentNotFound         = "payment.not_found"
	KeyPaymentInvalidAmount    = "payment.invalid_amount"
	KeyPaymentOwnListing       = "payment.own_listing"
	KeyPaymentNotIntegrated    = "payment.not_integrated"
	KeyPaymentWalletRequired   = "payment.wallet_required"
	KeyPaymentWrongNetwork     = "payment.wrong_network"
	KeyPaymentCurrencyMismatch = "payment.currency_mismatch"
	KeyPaymentTxRequired       = "payment.tx_required"
	KeyPaymentNotPending       = "payment.not_pending"
	KeyPaymentEscrowPrepared   = "payment.escrow_prepared"

	// Webhooks
	KeyWebhookSignatureInvalid = "webhook.signature_invalid"

	// Escrows
	KeyEscrowReleased           = "escrow.released"
	KeyEscrowRefunded           = "escrow.refunded"
	KeyEscrowNotFound           = "escrow.not_found"
	KeyEscrowNotParty           = "escrow.not_party"
	KeyEscrowNotHeld            = "escrow.not_held"
	KeyEscrowSettlementInFlight = "escrow.settlement_in_progress"
	KeyEscrowInvalidRole        = "escrow.invalid_role"

	// Tokens
	KeyTokensClaimed        = "tokens.claimed"
	KeyTokensAlreadyClaimed = "tokens.already_claimed"
	KeyTokensNotEligible    = "tokens.not_eligible"
	KeyTokensUnknownType    = "tokens.unknown_type"

	// Assistant
	KeyAssistantUnavailable = "assistant.unavailable"

	// External services
	KeyExternalServiceError = "external.service_error"

	// Validation
	KeyValidationRequired = "validation.required"
	KeyValidationInvalid  = "validation.invalid"

	// File Upload
	KeyFileUploadSuccess = "file.upload_success"
	KeyFileUploadFailed  = "file.upload_failed"
	KeyFileInvalidType   = "file.invalid_type"
	KeyFileTooLarge      = "file.too_large"

	// Rate limiting
	KeyRateLimited = "rate.limited"

	// Admin
	KeyAdminRoleUpdated = "admin.role_updated"
	KeyAdminOwnRole     = "admin.own_role"
	KeyAdminSweepDone   = "admin.sweep_done"
)
