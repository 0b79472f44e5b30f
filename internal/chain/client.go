// Package chain talks to the BFA node over JSON-RPC: it publishes
// record digests as zero-value transactions against the null address
// and looks previously published digests back up by transaction hash.
package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/clinicacampos/bfa-notary/internal/config"
	"github.com/clinicacampos/bfa-notary/internal/models"
	"github.com/clinicacampos/bfa-notary/pkg/utils"
)

const (
	// minGasLimit matches the intrinsic cost of a plain transfer; the
	// estimate never goes below it.
	minGasLimit = 21000
	// fallbackGasLimit is used when the node refuses to estimate.
	fallbackGasLimit = 50000
)

var oneGwei = big.NewInt(1_000_000_000)

// Backend is the subset of the node API the client needs. It is
// satisfied by *ethclient.Client and by fakes in tests.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Client submits and fetches digest transactions. The signing key is
// read at construction and never mutated afterwards; the account nonce
// is fetched fresh on every submit because other processes may share
// the account.
type Client struct {
	cfg     *config.BFAConfig
	backend Backend
	key     *ecdsa.PrivateKey
	account common.Address
	target  common.Address
	chainID *big.Int
	logger  *logrus.Logger
	closer  func()

	// sleep is replaceable in tests so retry paths run without delay.
	sleep func(time.Duration)
}

// Dial connects to the BFA node and verifies connectivity eagerly with
// a chain-id round trip, so an unreachable node fails here rather than
// deep inside a registration request. Backup nodes are tried in order
// after the primary.
func Dial(ctx context.Context, cfg *config.BFAConfig) (*Client, error) {
	key, account, err := parseSigningKey(cfg)
	if err != nil {
		return nil, err
	}

	urls := append([]string{cfg.NodeURL}, cfg.BackupNodes...)

	var lastErr error
	for _, url := range urls {
		dialCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		ec, err := ethclient.DialContext(dialCtx, url)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}

		chainID, err := ec.ChainID(dialCtx)
		cancel()
		if err != nil {
			ec.Close()
			lastErr = err
			continue
		}

		if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
			ec.Close()
			return nil, utils.NewAppError(utils.ErrCodeConfiguration,
				"BFA chain ID mismatch",
				fmt.Sprintf("expected %d, node %s reports %d", cfg.ChainID, url, chainID.Int64()))
		}

		logger := utils.GetLogger()
		logger.WithFields(logrus.Fields{
			"url":      url,
			"chain_id": chainID.Int64(),
			"account":  account.Hex(),
		}).Info("Connected to BFA node")

		return &Client{
			cfg:     cfg,
			backend: ec,
			key:     key,
			account: account,
			target:  common.HexToAddress(cfg.TargetAddress),
			chainID: chainID,
			logger:  logger,
			closer:  ec.Close,
			sleep:   time.Sleep,
		}, nil
	}

	return nil, fmt.Errorf("%w: no node answered (last error: %v)", ErrNodeUnreachable, lastErr)
}

// NewClient builds a client over an existing backend. Used by tests.
func NewClient(cfg *config.BFAConfig, backend Backend) (*Client, error) {
	key, account, err := parseSigningKey(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		backend: backend,
		key:     key,
		account: account,
		target:  common.HexToAddress(cfg.TargetAddress),
		chainID: big.NewInt(cfg.ChainID),
		logger:  utils.GetLogger(),
		sleep:   time.Sleep,
	}, nil
}

func parseSigningKey(cfg *config.BFAConfig) (*ecdsa.PrivateKey, common.Address, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x")
	if keyHex == "" {
		return nil, common.Address{}, utils.NewAppError(utils.ErrCodeConfiguration,
			"BFA signing key is not configured")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, common.Address{}, utils.NewAppError(utils.ErrCodeConfiguration,
			"Invalid BFA signing key", err.Error())
	}

	account := crypto.PubkeyToAddress(key.PublicKey)
	if cfg.AccountAddress != "" {
		configured := common.HexToAddress(cfg.AccountAddress)
		if configured != account {
			return nil, common.Address{}, utils.NewAppError(utils.ErrCodeConfiguration,
				"BFA account address does not match signing key",
				fmt.Sprintf("configured %s, key derives %s", configured.Hex(), account.Hex()))
		}
	}
	return key, account, nil
}

// Account returns the submitting account address.
func (c *Client) Account() common.Address {
	return c.account
}

// Ping checks node connectivity with a chain-id round trip.
func (c *Client) Ping(ctx context.Context) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.backend.ChainID(callCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
	}
	return nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Submit publishes a digest as the calldata of a signed zero-value
// transaction to the configured null address. Underpriced rejections
// are retried with a bumped fee up to the configured attempt ceiling;
// an already-known rejection (the identical payload and nonce is in
// the pool already) counts as success, so re-registering unchanged
// clinical content never errors.
func (c *Client) Submit(ctx context.Context, digestHex string) (*models.ChainSubmission, error) {
	digestHex = utils.NormalizeDigest(digestHex)
	if !utils.IsValidDigest(digestHex) {
		return nil, utils.NewAppError(utils.ErrCodeValidation,
			"Digest is not 64 hex characters", digestHex)
	}
	payload, err := hex.DecodeString(digestHex)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Digest is not valid hex", err.Error())
	}

	attempts := c.cfg.SubmitAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		signed, err := c.buildSignedTx(ctx, payload, attempt)
		if err != nil {
			return nil, err
		}

		sendCtx, cancel := c.callContext(ctx)
		err = c.backend.SendTransaction(sendCtx, signed)
		cancel()

		if err == nil {
			c.logger.WithFields(logrus.Fields{
				"tx_ref":  signed.Hash().Hex(),
				"attempt": attempt,
			}).Info("Digest published to BFA")
			return &models.ChainSubmission{
				TxRef:  signed.Hash().Hex(),
				Status: models.SubmissionSuccess,
			}, nil
		}

		switch classifySendError(err) {
		case sendErrorAlreadyKnown:
			// Identical payload and nonce: the digest is already in
			// flight, which is success from the caller's point of view.
			c.logger.WithField("tx_ref", signed.Hash().Hex()).Info("Digest already known to BFA node")
			return &models.ChainSubmission{
				TxRef:  signed.Hash().Hex(),
				Status: models.SubmissionAlreadyKnown,
			}, nil
		case sendErrorUnderpriced:
			lastErr = err
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("BFA rejected transaction as underpriced, bumping fee")
			if attempt < attempts {
				c.sleep(c.cfg.RetryDelay)
			}
		case sendErrorUnreachable:
			return nil, fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
	}

	return nil, fmt.Errorf("%w: underpriced after %d attempts (%v)", ErrSubmitFailed, attempts, lastErr)
}

// buildSignedTx assembles and signs one submission attempt. The nonce
// is fetched fresh each time; the gas price is bumped 10% per retry.
func (c *Client) buildSignedTx(ctx context.Context, payload []byte, attempt int) (*types.Transaction, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	nonce, err := c.backend.PendingNonceAt(callCtx, c.account)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching nonce: %v", ErrNodeUnreachable, err)
	}

	gasPrice, err := c.backend.SuggestGasPrice(callCtx)
	if err != nil || gasPrice == nil || gasPrice.Sign() == 0 {
		gasPrice = new(big.Int).Set(oneGwei)
	}
	gasPrice = bumpGasPrice(gasPrice, attempt)

	gasLimit, err := c.backend.EstimateGas(callCtx, ethereum.CallMsg{
		From:  c.account,
		To:    &c.target,
		Value: big.NewInt(0),
		Data:  payload,
	})
	if err != nil {
		gasLimit = fallbackGasLimit
	} else if gasLimit < minGasLimit {
		gasLimit = minGasLimit
	}

	tx := types.NewTransaction(nonce, c.target, big.NewInt(0), gasLimit, gasPrice, payload)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeBlockchain, "Failed to sign transaction", err.Error())
	}
	return signed, nil
}

// bumpGasPrice raises the suggested price by 10% per retry attempt.
func bumpGasPrice(price *big.Int, attempt int) *big.Int {
	if attempt <= 1 {
		return new(big.Int).Set(price)
	}
	bumped := new(big.Int).Set(price)
	for i := 1; i < attempt; i++ {
		bumped.Mul(bumped, big.NewInt(110))
		bumped.Div(bumped, big.NewInt(100))
	}
	return bumped
}

// Fetch retrieves a previously submitted transaction and extracts the
// digest from its input field, returning it in the same lowercase hex
// form Submit accepted.
func (c *Client) Fetch(ctx context.Context, txRef string) (string, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	tx, _, err := c.backend.TransactionByHash(callCtx, common.HexToHash(txRef))
	if err != nil {
		if err == ethereum.NotFound {
			return "", fmt.Errorf("%w: %s", ErrTxNotFound, txRef)
		}
		if isUnreachable(err) {
			return "", fmt.Errorf("%w: %v", ErrNodeUnreachable, err)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrTxNotFound, txRef, err)
	}

	return utils.NormalizeDigest(hex.EncodeToString(tx.Data())), nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}
