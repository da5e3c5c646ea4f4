package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/skara-labs/crowdgate/internal/pkg/apperrors"
	"github.com/skara-labs/crowdgate/internal/sale"
)

var kindTypes = map[string]apperrors.ErrorType{
	"Unauthorized":       apperrors.ErrUnauthorized,
	"CapViolation":       apperrors.ErrCapViolation,
	"PhaseViolation":     apperrors.ErrPhaseViolation,
	"BelowMinimum":       apperrors.ErrBelowMinimum,
	"AlreadyFinalized":   apperrors.ErrAlreadyDone,
	"AlreadyClaimed":     apperrors.ErrAlreadyDone,
	"AlreadyRevoked":     apperrors.ErrAlreadyDone,
	"SaleNotEnded":       apperrors.ErrSaleState,
	"NotFinalized":       apperrors.ErrSaleState,
	"ScheduleConflict":   apperrors.ErrSaleState,
	"NotRevocable":       apperrors.ErrSaleState,
	"InsufficientPool":   apperrors.ErrInsufficientPool,
	"NothingToRelease":   apperrors.ErrNothingToRelease,
	"UnknownBeneficiary": apperrors.ErrNotFound,
	"NoSchedule":         apperrors.ErrNotFound,
	"InvalidAmount":      apperrors.ErrInvalidRequest,
	"ZeroAddress":        apperrors.ErrInvalidRequest,
	"Overflow":           apperrors.ErrInvalidRequest,
	"InvalidConfig":      apperrors.ErrInternal,
}

// fail records err for ErrorHandler. Sale failures keep their kind; anything
// else came from the ledger.
func fail(c *gin.Context, err error) {
	kind := sale.Kind(err)
	if t, ok := kindTypes[kind]; ok {
		c.Error(apperrors.New(t, err.Error(), err).WithKind(kind))
		return
	}
	c.Error(apperrors.New(apperrors.ErrUpstream, "token ledger failure", err))
}
