package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"memeetf/internal/domain"
	"memeetf/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`

	// buy aborted and refunded
	Refunded            bool     `json:"refunded,omitempty"`
	FailedIndex         *int     `json:"failedIndex,omitempty"`
	CompletedSignatures []string `json:"completedSignatures,omitempty"`

	RequiresReconciliation bool     `json:"requiresReconciliation,omitempty"`
	Operation              string   `json:"operation,omitempty"`
	ReferenceID            string   `json:"referenceId,omitempty"`
	TxSignatures           []string `json:"txSignatures,omitempty"`
}

// writeError maps the error taxonomy to a status code and body.
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		recErr      *domain.ReconciliationError
		purchaseErr *domain.PurchaseFailedError
	)
	switch {
	case errors.As(err, &recErr):
		c.JSON(http.StatusAccepted, errorResponse{
			Error:                  err.Error(),
			RequiresReconciliation: true,
			Operation:              recErr.Op,
			ReferenceID:            recErr.ReferenceID.String(),
			TxSignatures:           recErr.TxSignatures,
		})
	case errors.As(err, &purchaseErr):
		idx := purchaseErr.FailedIndex
		c.JSON(http.StatusBadGateway, errorResponse{
			Error:               err.Error(),
			Refunded:            purchaseErr.Refunded,
			FailedIndex:         &idx,
			CompletedSignatures: domain.Signatures(purchaseErr.Completed),
		})
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInsufficientFunds), errors.Is(err, domain.ErrInsufficientChainFunds):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrExternalCall), errors.Is(err, domain.ErrChain):
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		h.log.Errorw("request failed", "route", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
