package stub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"memeetf/internal/solana"
)

// ErrNotFound is returned when a stubbed value is missing.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
// Maps may be populated directly before use; methods are safe for concurrent calls.
type RPCClient struct {
	mu sync.Mutex

	Transactions map[string]*solana.Transaction
	Accounts     map[string]*solana.AccountInfo
	Balances     map[string]uint64
	Statuses     map[string]*solana.SignatureStatus
	Blockhash    string

	// Sent records submitted base64 transactions in order.
	Sent []string
	// SendErr, when set, is returned by SendTransaction.
	SendErr error
	// SendStatus, when set, is stored as the status of every submitted transaction.
	SendStatus *solana.SignatureStatus

	nextSig int
}

var _ solana.RPCClient = (*RPCClient)(nil)

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Transactions: make(map[string]*solana.Transaction),
		Accounts:     make(map[string]*solana.AccountInfo),
		Balances:     make(map[string]uint64),
		Statuses:     make(map[string]*solana.SignatureStatus),
		Blockhash:    "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
	}
}

// GetTransaction retrieves a transaction by signature from the stub store.
func (c *RPCClient) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tx, ok := c.Transactions[signature]
	if !ok {
		return nil, nil
	}
	return tx, nil
}

// GetAccountInfo returns the stubbed account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Accounts[pubkey], nil
}

// GetBalance returns the stubbed balance, zero when unset.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Blockhash == "" {
		return nil, ErrNotFound
	}
	return &solana.Blockhash{Hash: c.Blockhash, LastValidBlockHeight: 1000}, nil
}

// SendTransaction records the payload and returns a synthetic signature.
func (c *RPCClient) SendTransaction(_ context.Context, base64Tx string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, base64Tx)
	c.nextSig++
	sig := fmt.Sprintf("stubsig%d", c.nextSig)
	if c.SendStatus != nil {
		status := *c.SendStatus
		c.Statuses[sig] = &status
	}
	return sig, nil
}

// GetSignatureStatuses returns stubbed statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		out[i] = c.Statuses[sig]
	}
	return out, nil
}

// AddTransaction adds a transaction to the stub store.
func (c *RPCClient) AddTransaction(tx *solana.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Transactions[tx.Signature] = tx
}

// SetStatus sets the status returned for signature.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SentCount returns the number of submitted transactions.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

// Confirmed is a convenience confirmed status.
func Confirmed() *solana.SignatureStatus {
	return &solana.SignatureStatus{Slot: 1, ConfirmationStatus: solana.CommitmentConfirmed}
}

// Failed is a convenience failed status.
func Failed(reason string) *solana.SignatureStatus {
	return &solana.SignatureStatus{
		Slot:               1,
		ConfirmationStatus: solana.CommitmentConfirmed,
		Err:                map[string]interface{}{"reason": reason},
	}
}
