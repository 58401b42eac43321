// Package api is the HTTP surface of the service. Handlers only translate
// JSON to service calls and errors to status codes.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"memeetf/internal/bundle"
	"memeetf/internal/deposit"
	"memeetf/internal/domain"
	"memeetf/internal/etf"
	"memeetf/internal/investment"
	"memeetf/internal/observability"
	"memeetf/internal/withdrawal"
)

// Investments runs custodial buys and sells.
type Investments interface {
	Buy(ctx context.Context, req investment.BuyRequest) (*investment.BuyResult, error)
	Sell(ctx context.Context, wallet string, investmentID uuid.UUID) (*investment.SellResult, error)
}

// Bundles prepares unsigned transactions for client-side signing.
type Bundles interface {
	PrepareBuy(ctx context.Context, req bundle.PrepareRequest) (*bundle.Bundle, error)
	PrepareSell(ctx context.Context, req bundle.PrepareSellRequest) (*bundle.Bundle, error)
	PrepareCreate(ctx context.Context, req bundle.PrepareCreateRequest) (*bundle.Bundle, error)
}

// Withdrawals pays out ledger balance on chain.
type Withdrawals interface {
	Withdraw(ctx context.Context, req withdrawal.Request) (*withdrawal.Result, error)
}

// Deposits credits confirmed deposits.
type Deposits interface {
	Confirm(ctx context.Context, req deposit.Request) (*deposit.Result, error)
}

// Listings records created ETFs and pays lister fees.
type Listings interface {
	Confirm(ctx context.Context, req etf.ConfirmRequest) (*domain.ETF, error)
	ClaimFees(ctx context.Context, lister string) (*etf.ClaimResult, error)
}

// ETFReader loads listed ETFs.
type ETFReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ETF, error)
}

// UserReader loads ledger accounts.
type UserReader interface {
	GetUser(ctx context.Context, wallet string) (*domain.User, error)
}

// Authenticator resolves the wallet a request acts for. ok is false when the
// request carries no valid credentials.
type Authenticator func(c *gin.Context) (wallet string, ok bool)

// Options wires the router.
type Options struct {
	Investments Investments
	Bundles     Bundles
	Withdrawals Withdrawals
	Deposits    Deposits
	Listings    Listings
	ETFs        ETFReader
	Users       UserReader
	Network     domain.Network
	// Authenticate, when set, guards /api and pins the acting wallet of
	// wallet-scoped requests. Without it the wallet in the body is trusted.
	Authenticate Authenticator
	Gatherer     prometheus.Gatherer // served on /metrics when set
	Metrics      *observability.Metrics
	Logger       *zap.SugaredLogger
}

// Handler holds the handler dependencies.
type Handler struct {
	investments Investments
	bundles     Bundles
	withdrawals Withdrawals
	deposits    Deposits
	listings    Listings
	etfs        ETFReader
	users       UserReader
	network     domain.Network
	log         *zap.SugaredLogger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With("component", "api")

	h := &Handler{
		investments: opts.Investments,
		bundles:     opts.Bundles,
		withdrawals: opts.Withdrawals,
		deposits:    opts.Deposits,
		listings:    opts.Listings,
		etfs:        opts.ETFs,
		users:       opts.Users,
		network:     opts.Network,
		log:         log,
	}

	r := gin.New()
	r.Use(RequestID(), Recovery(log), Logger(log, opts.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "network": opts.Network})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(observability.Handler(opts.Gatherer)))
	}

	h.Register(r.Group("/api", Identity(opts.Authenticate)))
	return r
}

// Register mounts the API routes on g.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/investments", h.Buy)
	g.POST("/investments/:id/sell", h.Sell)
	g.POST("/investments/prepare", h.PrepareBuy)
	g.POST("/investments/prepare-sell", h.PrepareSell)
	g.POST("/withdrawals", h.Withdraw)
	g.POST("/deposits/confirm", h.ConfirmDeposit)
	g.POST("/etfs/prepare", h.PrepareCreate)
	g.POST("/etfs/confirm", h.ConfirmETF)
	g.POST("/fees/claim", h.ClaimFees)
	g.GET("/users/:wallet/balance", h.Balance)
}
