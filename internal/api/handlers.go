package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"memeetf/internal/bundle"
	"memeetf/internal/deposit"
	"memeetf/internal/domain"
	"memeetf/internal/etf"
	"memeetf/internal/investment"
	"memeetf/internal/withdrawal"
)

type swapItem struct {
	Position      int    `json:"position"`
	RequestedMint string `json:"requestedMint"`
	OutputMint    string `json:"outputMint"`
	Substituted   bool   `json:"substituted"`
	InputAmount   uint64 `json:"inputAmount"`
	OutputAmount  uint64 `json:"outputAmount"`
	TxSignature   string `json:"txSignature"`
}

func swapItems(results []domain.SwapResult) []swapItem {
	out := make([]swapItem, 0, len(results))
	for _, r := range results {
		out = append(out, swapItem{
			Position:      r.Position,
			RequestedMint: r.RequestedMint,
			OutputMint:    r.OutputMint,
			Substituted:   r.Substituted,
			InputAmount:   r.InputAmount,
			OutputAmount:  r.OutputAmount,
			TxSignature:   r.TxSignature,
		})
	}
	return out
}

type buyRequest struct {
	Wallet string          `json:"wallet"`
	ETFID  uuid.UUID       `json:"etfId"`
	Amount decimal.Decimal `json:"amount"`
}

type buyResponse struct {
	InvestmentID uuid.UUID       `json:"investmentId"`
	ETFID        uuid.UUID       `json:"etfId"`
	Amount       decimal.Decimal `json:"amount"`
	AfterFees    decimal.Decimal `json:"amountAfterFees"`
	Balance      decimal.Decimal `json:"balance"`
	Swaps        []swapItem      `json:"swaps"`
}

// Buy handles POST /api/investments.
func (h *Handler) Buy(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if !actingAs(c, req.Wallet) {
		return
	}

	res, err := h.investments.Buy(c.Request.Context(), investment.BuyRequest{
		Wallet: req.Wallet,
		ETFID:  req.ETFID,
		Amount: req.Amount,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, buyResponse{
		InvestmentID: res.Investment.ID,
		ETFID:        res.Investment.ETFID,
		Amount:       res.Investment.SOLAmount,
		AfterFees:    res.Investment.SOLAfterFees,
		Balance:      res.Balance,
		Swaps:        swapItems(res.Swaps),
	})
}

type sellRequest struct {
	Wallet string `json:"wallet"`
}

type sellResponse struct {
	InvestmentID           uuid.UUID       `json:"investmentId"`
	Proceeds               decimal.Decimal `json:"proceeds"`
	RealizedPnL            decimal.Decimal `json:"realizedPnl"`
	Balance                decimal.Decimal `json:"balance"`
	Swaps                  []swapItem      `json:"swaps"`
	Unsold                 []int           `json:"unsoldPositions,omitempty"`
	RequiresReconciliation bool            `json:"requiresReconciliation"`
}

// Sell handles POST /api/investments/:id/sell.
func (h *Handler) Sell(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid investment id")
		return
	}
	var req sellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if !actingAs(c, req.Wallet) {
		return
	}

	res, err := h.investments.Sell(c.Request.Context(), req.Wallet, id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusOK
	if res.RequiresReconciliation {
		status = http.StatusAccepted
	}
	c.JSON(status, sellResponse{
		InvestmentID:           res.InvestmentID,
		Proceeds:               res.Proceeds,
		RealizedPnL:            res.RealizedPnL,
		Balance:                res.Balance,
		Swaps:                  swapItems(res.Swaps),
		Unsold:                 res.Unsold,
		RequiresReconciliation: res.RequiresReconciliation,
	})
}

type prepareBuyRequest struct {
	ETFID  uuid.UUID       `json:"etfId"`
	Amount decimal.Decimal `json:"amount"`
	Buyer  string          `json:"buyer"`
}

// PrepareBuy handles POST /api/investments/prepare.
func (h *Handler) PrepareBuy(c *gin.Context) {
	var req prepareBuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if req.ETFID == uuid.Nil {
		badRequest(c, "etfId is required")
		return
	}

	e, err := h.etfs.GetByID(c.Request.Context(), req.ETFID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	b, err := h.bundles.PrepareBuy(c.Request.Context(), bundle.PrepareRequest{
		ETFID:        e.ID,
		Amount:       req.Amount,
		Buyer:        req.Buyer,
		Creator:      e.Creator,
		Constituents: e.Constituents,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type holdingItem struct {
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount"`
}

type prepareSellRequest struct {
	ETFID    uuid.UUID     `json:"etfId"`
	Seller   string        `json:"seller"`
	Holdings []holdingItem `json:"holdings"`
}

// PrepareSell handles POST /api/investments/prepare-sell.
func (h *Handler) PrepareSell(c *gin.Context) {
	var req prepareSellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if req.ETFID == uuid.Nil {
		badRequest(c, "etfId is required")
		return
	}

	e, err := h.etfs.GetByID(c.Request.Context(), req.ETFID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	holdings := make([]bundle.Holding, 0, len(req.Holdings))
	for _, hd := range req.Holdings {
		holdings = append(holdings, bundle.Holding{Mint: hd.Mint, Amount: hd.Amount})
	}
	b, err := h.bundles.PrepareSell(c.Request.Context(), bundle.PrepareSellRequest{
		ETFID:    e.ID,
		Seller:   req.Seller,
		Creator:  e.Creator,
		Holdings: holdings,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type prepareCreateRequest struct {
	Creator      string               `json:"creator"`
	Constituents []domain.Constituent `json:"tokens"`
}

// PrepareCreate handles POST /api/etfs/prepare.
func (h *Handler) PrepareCreate(c *gin.Context) {
	var req prepareCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	b, err := h.bundles.PrepareCreate(c.Request.Context(), bundle.PrepareCreateRequest{
		Creator:      req.Creator,
		Constituents: req.Constituents,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type confirmETFRequest struct {
	Creator         string               `json:"creator"`
	Name            string               `json:"name"`
	ContractAddress string               `json:"contractAddress"`
	TxSignature     string               `json:"txSignature"`
	Constituents    []domain.Constituent `json:"tokens"`
}

type etfResponse struct {
	ID                 uuid.UUID            `json:"id"`
	Name               string               `json:"name"`
	Creator            string               `json:"creator"`
	ContractAddress    string               `json:"contractAddress"`
	Network            domain.Network       `json:"network"`
	Constituents       []domain.Constituent `json:"tokens"`
	MarketCapAtListing decimal.Decimal      `json:"marketCapAtListing"`
}

// ConfirmETF handles POST /api/etfs/confirm.
func (h *Handler) ConfirmETF(c *gin.Context) {
	var req confirmETFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	e, err := h.listings.Confirm(c.Request.Context(), etf.ConfirmRequest{
		Creator:         req.Creator,
		Name:            req.Name,
		ContractAddress: req.ContractAddress,
		TxSignature:     req.TxSignature,
		Constituents:    req.Constituents,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, etfResponse{
		ID:                 e.ID,
		Name:               e.Name,
		Creator:            e.Creator,
		ContractAddress:    e.ContractAddress,
		Network:            e.Network,
		Constituents:       e.Constituents,
		MarketCapAtListing: e.MarketCapAtListing,
	})
}

type claimRequest struct {
	Lister string `json:"lister"`
}

type claimResponse struct {
	ClaimID     uuid.UUID       `json:"claimId"`
	Amount      decimal.Decimal `json:"amount"`
	Records     int             `json:"records"`
	TxSignature string          `json:"txSignature"`
}

// ClaimFees handles POST /api/fees/claim.
func (h *Handler) ClaimFees(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if !actingAs(c, req.Lister) {
		return
	}

	res, err := h.listings.ClaimFees(c.Request.Context(), req.Lister)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, claimResponse{
		ClaimID:     res.ClaimID,
		Amount:      res.Amount,
		Records:     res.Records,
		TxSignature: res.TxSignature,
	})
}

type withdrawRequest struct {
	Wallet      string          `json:"wallet"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Network     domain.Network  `json:"network"`
}

type withdrawResponse struct {
	ID          uuid.UUID        `json:"id"`
	State       withdrawal.State `json:"state"`
	TxSignature string           `json:"txSignature"`
	Balance     decimal.Decimal  `json:"balance"`
}

// Withdraw handles POST /api/withdrawals.
func (h *Handler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if !actingAs(c, req.Wallet) {
		return
	}
	if req.Network == "" {
		req.Network = h.network
	}

	res, err := h.withdrawals.Withdraw(c.Request.Context(), withdrawal.Request{
		Wallet:      req.Wallet,
		Destination: req.Destination,
		Amount:      req.Amount,
		Network:     req.Network,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, withdrawResponse{
		ID:          res.ID,
		State:       res.State,
		TxSignature: res.TxSignature,
		Balance:     res.Balance,
	})
}

type depositRequest struct {
	Wallet    string `json:"wallet"`
	Signature string `json:"txSignature"`
}

type depositResponse struct {
	ID              uuid.UUID       `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Balance         decimal.Decimal `json:"balance"`
	TxSignature     string          `json:"txSignature"`
	AlreadyCredited bool            `json:"alreadyCredited"`
}

// ConfirmDeposit handles POST /api/deposits/confirm.
func (h *Handler) ConfirmDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}

	res, err := h.deposits.Confirm(c.Request.Context(), deposit.Request{Wallet: req.Wallet, Signature: req.Signature})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, depositResponse{
		ID:              res.Entry.ID,
		Amount:          res.Entry.Amount,
		Balance:         res.Balance,
		TxSignature:     res.Entry.TxSignature,
		AlreadyCredited: res.AlreadyCredited,
	})
}

type balanceResponse struct {
	Wallet  string          `json:"wallet"`
	Balance decimal.Decimal `json:"balance"`
}

// Balance handles GET /api/users/:wallet/balance.
func (h *Handler) Balance(c *gin.Context) {
	wallet := c.Param("wallet")
	if err := domain.Address.Validate(wallet); err != nil {
		badRequest(c, "invalid wallet address")
		return
	}
	if !actingAs(c, wallet) {
		return
	}

	u, err := h.users.GetUser(c.Request.Context(), wallet)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{Wallet: u.WalletAddress, Balance: u.Balance})
}
