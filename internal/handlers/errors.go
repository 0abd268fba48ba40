// internal/handlers/errors.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/campushub/backend/internal/i18n"
	"github.com/campushub/backend/internal/services"
	"github.com/campushub/backend/internal/utils"
	"github.com/campushub/backend/pkg/assistant"
	"github.com/campushub/backend/pkg/blockchain"
	"github.com/campushub/backend/pkg/payment"
)

// respondError maps a service error onto the response envelope. Upstream
// failures are logged here and answered with a generic message.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	switch {
	// Not found
	case errors.Is(err, services.ErrProfileNotFound):
		utils.NotFoundResponse(c, "profile")
	case errors.Is(err, services.ErrOpportunityNotFound):
		utils.NotFoundResponse(c, "opportunity")
	case errors.Is(err, services.ErrPaymentNotFound):
		utils.NotFoundResponse(c, "payment")

	// Authentication
	case errors.Is(err, services.ErrInvalidCredentials):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidCredentials))
	case errors.Is(err, services.ErrInvalidRefreshToken):
		utils.UnauthorizedResponse(c, i18n.T(lang, i18n.KeyAuthInvalidToken))

	// Ownership
	case errors.Is(err, services.ErrNotOpportunityOwner):
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyOpportunityNotOwner))
	case errors.Is(err, services.ErrNotEscrowParty):
		utils.ForbiddenResponse(c, i18n.T(lang, i18n.KeyEscrowNotParty))

	// Conflicts with stored state
	case errors.Is(err, services.ErrEmailTaken), errors.Is(err, services.ErrUsernameTaken):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyAuthUserExists))
	case errors.Is(err, services.ErrPhoneInUse):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyProfilePhoneInUse))
	case errors.Is(err, services.ErrOpportunityNotOpen):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyOpportunityNotOpen))
	case errors.Is(err, services.ErrAlreadyClaimed):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyTokensAlreadyClaimed))
	case errors.Is(err, services.ErrNotEligible):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyTokensNotEligible))
	case errors.Is(err, services.ErrEscrowNotHeld):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyEscrowNotHeld))
	case errors.Is(err, services.ErrSettlementInProgress):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyEscrowSettlementInFlight))
	case errors.Is(err, services.ErrPaymentNotPending):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyPaymentNotPending))

	// Bad input the validator cannot see
	case errors.Is(err, services.ErrInvalidVerificationToken):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyAuthVerificationInvalid), nil)
	case errors.Is(err, services.ErrInvalidAmount):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentInvalidAmount), nil)
	case errors.Is(err, services.ErrOwnListing):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentOwnListing), nil)
	case errors.Is(err, services.ErrSellerWalletMissing), errors.Is(err, services.ErrBuyerWalletMissing):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentWalletRequired), nil)
	case errors.Is(err, services.ErrCurrencyMismatch):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentCurrencyMismatch), nil)
	case errors.Is(err, services.ErrEscrowTxRequired):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentTxRequired), nil)
	case errors.Is(err, services.ErrWrongNetwork):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentWrongNetwork, "target"), nil)
	case errors.Is(err, services.ErrEscrowMismatch), errors.Is(err, blockchain.ErrInvalidEscrowID):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyPaymentFailed, err.Error()), nil)
	case errors.Is(err, services.ErrInvalidEscrowRole):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyEscrowInvalidRole), nil)
	case errors.Is(err, services.ErrUnknownClaimType):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyTokensUnknownType), nil)
	case errors.Is(err, services.ErrFileTooLarge):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileTooLarge), nil)
	case errors.Is(err, services.ErrFileInvalidType):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyFileInvalidType), nil)
	case errors.Is(err, services.ErrOwnRoleChange):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyAdminOwnRole), nil)

	// External services
	case errors.Is(err, payment.ErrProviderNotIntegrated):
		utils.BadGatewayResponse(c, i18n.T(lang, i18n.KeyPaymentNotIntegrated))
	case errors.Is(err, payment.ErrDeclined), errors.Is(err, payment.ErrNotSettled):
		utils.BadGatewayResponse(c, i18n.T(lang, i18n.KeyPaymentFailed, err.Error()))
	case errors.Is(err, assistant.ErrUnavailable):
		utils.BadGatewayResponse(c, i18n.T(lang, i18n.KeyAssistantUnavailable))
	case errors.Is(err, blockchain.ErrNotConfigured),
		errors.Is(err, blockchain.ErrWalletUnavailable),
		errors.Is(err, blockchain.ErrEscrowCreationFailed),
		errors.Is(err, blockchain.ErrTransactionFailed):
		logrus.WithError(err).WithField("path", c.FullPath()).Warn("Chain operation failed")
		utils.BadGatewayResponse(c, "")

	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Unhandled request error")
		utils.InternalErrorResponse(c, "")
	}
}

// bindAndValidate binds the JSON body and runs the struct validator. It
// writes the error response itself and reports whether the handler should
// continue.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	lang := utils.GetLangFromContext(c)

	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return false
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return false
	}
	return true
}

// currentProfile reads the authenticated profile id set by AuthRequired.
func currentProfile(c *gin.Context) (uuid.UUID, bool) {
	id, ok := utils.GetProfileIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
	}
	return id, ok
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, name), nil)
		return uuid.Nil, false
	}
	return id, true
}
