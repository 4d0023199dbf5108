package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawLog is an eth_getLogs entry as returned by a provider. Every field is
// optional so incomplete entries can be detected instead of failing the
// whole response.
type RawLog struct {
	Address          *common.Address `json:"address"`
	Topics           []common.Hash   `json:"topics"`
	Data             hexutil.Bytes   `json:"data"`
	BlockNumber      *hexutil.Uint64 `json:"blockNumber"`
	TransactionHash  *common.Hash    `json:"transactionHash"`
	TransactionIndex *hexutil.Uint   `json:"transactionIndex"`
	LogIndex         *hexutil.Uint   `json:"logIndex"`
	Removed          bool            `json:"removed"`
}
