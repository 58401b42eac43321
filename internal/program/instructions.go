package program

import (
	"encoding/binary"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// NewInitializeETFInstruction builds initialize_etf(token_addresses).
func NewInitializeETFInstruction(programID, etf, lister solanago.PublicKey, tokens []solanago.PublicKey) (solanago.Instruction, error) {
	if len(tokens) == 0 || len(tokens) > MaxTokens {
		return nil, fmt.Errorf("initialize_etf: %d tokens, want 1..%d", len(tokens), MaxTokens)
	}

	disc := InstructionDiscriminator(InstructionInitializeETF)
	data := make([]byte, 0, 8+4+32*len(tokens))
	data = append(data, disc[:]...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(tokens)))
	for _, t := range tokens {
		data = append(data, t[:]...)
	}

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(etf, true, false),
		solanago.NewAccountMeta(lister, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
	}
	return solanago.NewInstruction(programID, accounts, data), nil
}

// NewBuyETFInstruction builds buy_etf(sol_amount).
func NewBuyETFInstruction(programID, etf, investor, listerAccount solanago.PublicKey, lamports uint64) solanago.Instruction {
	return amountInstruction(programID, InstructionBuyETF, etf, investor, listerAccount, lamports)
}

// NewSellETFInstruction builds sell_etf(tokens_to_sell).
func NewSellETFInstruction(programID, etf, investor, listerAccount solanago.PublicKey, tokens uint64) solanago.Instruction {
	return amountInstruction(programID, InstructionSellETF, etf, investor, listerAccount, tokens)
}

// NewClaimFeesInstruction builds claim_fees.
func NewClaimFeesInstruction(programID, etf, lister solanago.PublicKey) solanago.Instruction {
	disc := InstructionDiscriminator(InstructionClaimFees)
	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(etf, true, false),
		solanago.NewAccountMeta(lister, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
	}
	return solanago.NewInstruction(programID, accounts, disc[:])
}

// buy_etf and sell_etf share accounts (etf, investor, lister_account, system_program).
func amountInstruction(programID solanago.PublicKey, name string, etf, investor, listerAccount solanago.PublicKey, amount uint64) solanago.Instruction {
	disc := InstructionDiscriminator(name)
	data := make([]byte, 0, 16)
	data = append(data, disc[:]...)
	data = binary.LittleEndian.AppendUint64(data, amount)

	accounts := solanago.AccountMetaSlice{
		solanago.NewAccountMeta(etf, true, false),
		solanago.NewAccountMeta(investor, true, true),
		solanago.NewAccountMeta(listerAccount, true, false),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
	}
	return solanago.NewInstruction(programID, accounts, data)
}
