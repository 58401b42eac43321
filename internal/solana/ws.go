package solana

import "context"

// SignatureSubscriber defines the Solana WebSocket signature subscription interface.
type SignatureSubscriber interface {
	// SubscribeSignature waits for signature to reach confirmed commitment.
	// The returned channel receives at most one notification and is then closed.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification represents a signatureNotification message.
type SignatureNotification struct {
	Signature string
	Slot      int64
	// Err is the transaction error reported by the node, nil on success.
	Err interface{}
}
