package settlement

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const erc20ABI = `[{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}]`

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidAddress reports whether address is a 0x-prefixed 20-byte hex address.
func ValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

type Config struct {
	RPCURL          string        `mapstructure:"rpcUrl"`
	ChainID         int64         `mapstructure:"chainId"`
	TokenContract   string        `mapstructure:"tokenContract"`
	PrivateKey      string        `mapstructure:"privateKey"`
	Decimals        int32         `mapstructure:"decimals"`
	TransferTimeout time.Duration `mapstructure:"transferTimeout"`
	GasLimit        uint64        `mapstructure:"gasLimit"`
	ExplorerURL     string        `mapstructure:"explorerUrl"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
}

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
	StatusUnknown   Status = "unknown"
)

type backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client moves tokens out of the treasury wallet through an ERC-20 contract.
type Client struct {
	config     Config
	backend    backend
	closer     func()
	privateKey *ecdsa.PrivateKey
	address    common.Address
	token      common.Address
	tokenABI   abi.ABI
	logger     *zap.Logger

	// serializes nonce allocation
	sendMu sync.Mutex
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to settlement RPC: %w", err)
	}

	c, err := newClient(cfg, client, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.closer = client.Close

	logger.Info("Connected to settlement chain",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("token_contract", c.token.Hex()),
		zap.String("treasury_address", c.address.Hex()))

	return c, nil
}

func newClient(cfg Config, b backend, logger *zap.Logger) (*Client, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	tokenABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}

	if !ValidAddress(cfg.TokenContract) {
		return nil, fmt.Errorf("invalid token contract address %q", cfg.TokenContract)
	}

	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}

	return &Client{
		config:     cfg,
		backend:    b,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		token:      common.HexToAddress(cfg.TokenContract),
		tokenABI:   tokenABI,
		logger:     logger,
	}, nil
}

func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// WalletAddress returns the treasury address transfers are sent from.
func (c *Client) WalletAddress() string {
	return c.address.Hex()
}

func (c *Client) ExplorerURL(txHash string) string {
	if c.config.ExplorerURL == "" {
		return txHash
	}
	return strings.TrimRight(c.config.ExplorerURL, "/") + "/tx/" + txHash
}

// Transfer sends amount whole tokens to the destination and waits for the
// receipt. On failure the returned hash is set whenever a transaction was
// broadcast, so callers can reconcile it later.
func (c *Client) Transfer(ctx context.Context, to string, amount int64) (string, error) {
	if !ValidAddress(to) {
		return "", ErrInvalidAddress
	}
	if amount <= 0 {
		return "", fmt.Errorf("transfer: %w: non-positive amount %d", ErrRejected, amount)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.TransferTimeout)
	defer cancel()

	units := ToBaseUnits(decimal.NewFromInt(amount), c.config.Decimals)
	recipient := common.HexToAddress(to)

	data, err := c.tokenABI.Pack("transfer", recipient, units)
	if err != nil {
		return "", fmt.Errorf("failed to pack transfer: %w", err)
	}

	signed, err := c.send(ctx, data)
	if err != nil {
		if signed != nil && IsIndeterminate(err) {
			return signed.Hash().Hex(), err
		}
		return "", err
	}
	txHash := signed.Hash()

	c.logger.Info("Transfer transaction submitted",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", units.String()))

	receipt, err := c.waitForReceipt(ctx, txHash)
	if err != nil {
		return txHash.Hex(), classifySend("await receipt", err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return txHash.Hex(), fmt.Errorf("transfer %s: %w: reverted in block %d", txHash.Hex(), ErrRejected, receipt.BlockNumber.Uint64())
	}

	c.logger.Info("Transfer confirmed",
		zap.String("tx_hash", txHash.Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()),
		zap.Uint64("gas_used", receipt.GasUsed))

	return txHash.Hex(), nil
}

func (c *Client) send(ctx context.Context, data []byte) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, classifyBeforeSend("get nonce", err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, classifyBeforeSend("suggest gas price", err)
	}

	gasLimit := c.config.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{
			From: c.address,
			To:   &c.token,
			Data: data,
		})
		if err != nil {
			return nil, classifyBeforeSend("estimate gas", err)
		}
	}

	chainID := big.NewInt(c.config.ChainID)
	tx := types.NewTransaction(nonce, c.token, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w: %v", ErrUnavailable, err)
	}

	// The signed transaction is returned with an indeterminate send error:
	// the node may have accepted it before the connection dropped.
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return signed, classifySend("send transaction", err)
	}

	return signed, nil
}

func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Warn("Failed to fetch receipt", zap.String("tx_hash", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TransferStatus looks up the outcome of a previously broadcast transfer.
func (c *Client) TransferStatus(ctx context.Context, txHash string) (Status, error) {
	hash := common.HexToHash(txHash)

	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err == nil {
		if receipt.Status == types.ReceiptStatusSuccessful {
			return StatusConfirmed, nil
		}
		return StatusFailed, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return StatusUnknown, fmt.Errorf("failed to get receipt: %w", err)
	}

	_, pending, err := c.backend.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return StatusUnknown, nil
		}
		return StatusUnknown, fmt.Errorf("failed to get transaction: %w", err)
	}
	if pending {
		return StatusPending, nil
	}

	return StatusUnknown, nil
}

// BalanceOf returns the token balance of address in whole tokens.
func (c *Client) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	if !ValidAddress(address) {
		return decimal.Zero, ErrInvalidAddress
	}

	data, err := c.tokenABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to pack balanceOf: %w", err)
	}

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &c.token,
		Data: data,
	}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	out, err := c.tokenABI.Unpack("balanceOf", result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to unpack balanceOf: %w", err)
	}
	if len(out) != 1 {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf output length %d", len(out))
	}

	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf output type %T", out[0])
	}

	return FromBaseUnits(raw, c.config.Decimals), nil
}

// TreasuryBalance is BalanceOf for the wallet transfers are sent from.
func (c *Client) TreasuryBalance(ctx context.Context) (decimal.Decimal, error) {
	return c.BalanceOf(ctx, c.WalletAddress())
}
