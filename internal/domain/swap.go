package domain

// SwapRequest asks the Swap Executor to exchange InputAmount base units of InputMint.
type SwapRequest struct {
	InputMint   string
	OutputMint  string
	InputAmount uint64 // lamports when InputMint is WSOL
	SlippageBps int
}

// SwapResult is the outcome of one successful swap.
type SwapResult struct {
	Position      int // constituent index within the basket
	Weight        float64
	RequestedMint string
	OutputMint    string // actual mint received
	Substituted   bool   // devnet only: OutputMint replaced RequestedMint
	InputAmount   uint64
	OutputAmount  uint64
	TxSignature   string
}
