package program

import (
	"encoding/base64"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
)

// NewUnsignedTransaction builds a transaction with zeroed signature slots so
// wallets can fill them in.
func NewUnsignedTransaction(instructions []solanago.Instruction, blockhash string, payer solanago.PublicKey) (*solanago.Transaction, error) {
	hash, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(instructions, hash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}

	tx.Signatures = make([]solanago.Signature, tx.Message.Header.NumRequiredSignatures)
	return tx, nil
}

// EncodeBase64Tx serializes tx for the wire.
func EncodeBase64Tx(tx *solanago.Transaction) (string, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

// DecodeBase64Tx parses a base64 wire transaction.
func DecodeBase64Tx(b64 string) (*solanago.Transaction, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
