package solana

import "context"

// RPCClient defines the Solana JSON-RPC surface used by the service.
type RPCClient interface {
	// GetTransaction retrieves a confirmed transaction by signature.
	// Returns nil, nil when the node does not know the signature.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetAccountInfo retrieves account info. Returns nil, nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetLatestBlockhash returns a recent blockhash for transaction construction.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction submits a signed, base64-encoded transaction and returns its signature.
	SendTransaction(ctx context.Context, base64Tx string) (string, error)

	// GetSignatureStatuses returns one status per signature, nil for unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains transaction metadata.
type TransactionMeta struct {
	Err          interface{}
	Fee          uint64
	PreBalances  []uint64
	PostBalances []uint64
	LogMessages  []string

	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is an SPL token account balance recorded in transaction metadata.
// Amount is in base units.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       uint64
}

// TransactionMessage contains parsed transaction message.
type TransactionMessage struct {
	AccountKeys []string
	// NumRequiredSignatures is the count of leading account keys that signed.
	NumRequiredSignatures int
}

// Signers returns the account keys that signed the transaction.
func (m *TransactionMessage) Signers() []string {
	n := m.NumRequiredSignatures
	if n > len(m.AccountKeys) {
		n = len(m.AccountKeys)
	}
	return m.AccountKeys[:n]
}

// BalanceChange returns the lamport delta of account over the transaction.
// ok is false when the account is not part of the transaction.
func (t *Transaction) BalanceChange(account string) (delta int64, ok bool) {
	if t.Meta == nil || t.Message == nil {
		return 0, false
	}
	for i, key := range t.Message.AccountKeys {
		if key != account {
			continue
		}
		if i >= len(t.Meta.PreBalances) || i >= len(t.Meta.PostBalances) {
			return 0, false
		}
		return int64(t.Meta.PostBalances[i]) - int64(t.Meta.PreBalances[i]), true
	}
	return 0, false
}

// TokenBalanceChange returns the net change, in base units, of every mint
// token account held by owner over the transaction. Accounts created or closed
// by the transaction count as zero on the missing side. ok is false when owner
// holds no mint account in either snapshot.
func (t *Transaction) TokenBalanceChange(owner, mint string) (delta int64, ok bool) {
	if t.Meta == nil {
		return 0, false
	}
	for _, b := range t.Meta.PostTokenBalances {
		if b.Owner == owner && b.Mint == mint {
			delta += int64(b.Amount)
			ok = true
		}
	}
	for _, b := range t.Meta.PreTokenBalances {
		if b.Owner == owner && b.Mint == mint {
			delta -= int64(b.Amount)
			ok = true
		}
	}
	return delta, ok
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}

// Blockhash is a recent blockhash with its validity horizon.
type Blockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
}

// Commitment levels reported by getSignatureStatuses.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               int64       `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus string      `json:"confirmationStatus"`
}
