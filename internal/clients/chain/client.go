// Package chain submits signed orders to the on-chain settlement contract.
// It is the taker side of fulfillment: it wraps the maker's signed order in a
// fill transaction and waits for it to be mined.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"zenmode/internal/domain"
)

const fillOrderABI = `[{
	"name": "fillOrder",
	"type": "function",
	"inputs": [
		{"name": "order", "type": "tuple", "components": [
			{"name": "maker", "type": "address"},
			{"name": "makerAsset", "type": "address"},
			{"name": "takerAsset", "type": "address"},
			{"name": "makingAmount", "type": "uint256"},
			{"name": "takingAmount", "type": "uint256"},
			{"name": "nonce", "type": "uint256"},
			{"name": "expiresAt", "type": "uint256"}
		]},
		{"name": "signature", "type": "bytes"}
	],
	"outputs": []
}]`

// orderTuple mirrors the contract's order struct for ABI encoding
type orderTuple struct {
	Maker        common.Address
	MakerAsset   common.Address
	TakerAsset   common.Address
	MakingAmount *big.Int
	TakingAmount *big.Int
	Nonce        *big.Int
	ExpiresAt    *big.Int
}

// Venue submits fill transactions to the settlement contract
type Venue struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	log      zerolog.Logger
}

// NewVenue connects to an RPC endpoint and prepares the taker account
func NewVenue(rpcURL string, chainID int64, contract, takerKeyHex string, log zerolog.Logger) (*Venue, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(fillOrderABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fill ABI: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(takerKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse taker key: %w", err)
	}
	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &Venue{
		client:   client,
		abi:      parsedABI,
		contract: common.HexToAddress(contract),
		key:      key,
		from:     crypto.PubkeyToAddress(*publicKey),
		chainID:  big.NewInt(chainID),
		log:      log.With().Str("client", "chain").Logger(),
	}, nil
}

// Submit sends a fill transaction for the signed order and waits for it to be
// mined. Returns the transaction hash of the successful fill. A reverted fill
// returns domain.ErrRejected; anything that leaves the outcome unknown is
// reported as transient.
func (v *Venue) Submit(ctx context.Context, order domain.SignedOrder) (string, error) {
	terms := order.Terms
	calldata, err := v.abi.Pack("fillOrder", orderTuple{
		Maker:        common.HexToAddress(terms.Maker),
		MakerAsset:   common.HexToAddress(terms.MakerAsset),
		TakerAsset:   common.HexToAddress(terms.TakerAsset),
		MakingAmount: terms.MakingAmount,
		TakingAmount: terms.TakingAmount,
		Nonce:        new(big.Int).SetUint64(terms.Nonce),
		ExpiresAt:    big.NewInt(terms.ExpiresAt),
	}, []byte(order.Signature))
	if err != nil {
		return "", fmt.Errorf("failed to encode fill calldata: %w", err)
	}

	nonce, err := v.client.PendingNonceAt(ctx, v.from)
	if err != nil {
		return "", domain.Transient("chain", fmt.Errorf("failed to get account nonce: %w", err))
	}

	gasPrice, err := v.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", domain.Transient("chain", fmt.Errorf("failed to get gas price: %w", err))
	}

	gasLimit, err := v.client.EstimateGas(ctx, ethereum.CallMsg{
		From: v.from,
		To:   &v.contract,
		Data: calldata,
	})
	if err != nil {
		// Estimation reverts when the fill itself would revert
		return "", fmt.Errorf("fill would revert: %w: %w", domain.ErrRejected, err)
	}

	tx := types.NewTransaction(nonce, v.contract, big.NewInt(0), gasLimit, gasPrice, calldata)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(v.chainID), v.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign fill transaction: %w", err)
	}

	if err := v.client.SendTransaction(ctx, signedTx); err != nil {
		return "", domain.Transient("chain", fmt.Errorf("failed to send fill transaction: %w", err))
	}

	v.log.Info().
		Str("tx_hash", signedTx.Hash().Hex()).
		Str("maker", terms.Maker).
		Msg("Fill transaction sent")

	receipt, err := bind.WaitMined(ctx, v.client, signedTx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", domain.Transient("chain", fmt.Errorf("fill outcome unknown: %w", err))
		}
		return "", domain.Transient("chain", fmt.Errorf("failed to wait for fill receipt: %w", err))
	}

	if receipt.Status == types.ReceiptStatusFailed {
		return "", fmt.Errorf("fill transaction reverted: %w", domain.ErrRejected)
	}
	return receipt.TxHash.Hex(), nil
}

// Close releases the underlying RPC connection
func (v *Venue) Close() {
	v.client.Close()
}
