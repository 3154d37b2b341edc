package rpcpool

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
)

const defaultCallTimeout = 10 * time.Second

// Receipt mirrors the fields of eth_getTransactionReceipt the relay cares
// about.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
}

// Reverted reports whether the receipt records an on-chain execution
// failure (status 0).
func (r *Receipt) Reverted() bool {
	return r.Status == "0x0"
}

// Client is the per-chain RPC surface the relay's ingress handlers use.
type Client struct {
	chainID   uint64
	transport *transport
}

// wrapRPC shapes a transport-layer error into the relay taxonomy: node
// verdicts are non-retryable protocol errors, everything else is a
// retryable network failure.
func wrapRPC(method string, err error) error {
	if nodeErr, ok := err.(*NodeError); ok {
		classified := relayerr.Classify(nodeErr)
		if classified.Kind != relayerr.KindCriticalSystemFailure {
			return classified
		}
		return relayerr.New(relayerr.KindTransaction, "ERR_NODE_REJECTED", method+": "+nodeErr.Message, relayerr.NonRetryable, nodeErr)
	}
	return relayerr.Network("ERR_RPC_UNAVAILABLE", method+" RPC failed", err)
}

func parseErr(what string, err error) error {
	return relayerr.New(relayerr.KindNetwork, "ERR_RPC_PARSE", "failed to parse "+what, relayerr.NonRetryable, err)
}

// callString performs a JSON-RPC call whose result is a single hex string.
func (c *Client) callString(ctx context.Context, method string, params interface{}) (string, error) {
	result, err := c.transport.call(ctx, method, params)
	if err != nil {
		return "", wrapRPC(method, err)
	}
	var s string
	if err := json.Unmarshal(result, &s); err != nil {
		return "", parseErr(method+" result", err)
	}
	return s, nil
}

// GetNonce returns the next pending nonce for an address.
func (c *Client) GetNonce(ctx context.Context, address string) (uint64, error) {
	hex, err := c.callString(ctx, "eth_getTransactionCount", []interface{}{address, "pending"})
	if err != nil {
		return 0, err
	}
	nonce, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, parseErr("nonce", err)
	}
	return nonce, nil
}

// GasPrice returns a fee estimate, preferring EIP-1559 base fee plus median
// priority fee and falling back to legacy eth_gasPrice when the latest
// block carries no base fee (pre-London chain).
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	baseFee, err := c.baseFee(ctx)
	if err != nil {
		return nil, err
	}
	if baseFee.Sign() == 0 {
		return c.legacyGasPrice(ctx)
	}
	priorityFee, err := c.priorityFee(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Add(baseFee, priorityFee), nil
}

func (c *Client) baseFee(ctx context.Context) (*big.Int, error) {
	result, err := c.transport.call(ctx, "eth_getBlockByNumber", []interface{}{"latest", false})
	if err != nil {
		return nil, wrapRPC("eth_getBlockByNumber", err)
	}
	var block struct {
		BaseFeePerGas string `json:"baseFeePerGas"`
	}
	if err := json.Unmarshal(result, &block); err != nil {
		return nil, parseErr("latest block", err)
	}
	if block.BaseFeePerGas == "" {
		return big.NewInt(0), nil
	}
	fee, err := hexutil.DecodeBig(block.BaseFeePerGas)
	if err != nil {
		return nil, parseErr("base fee", err)
	}
	return fee, nil
}

// priorityFee averages the 50th-percentile priority fee over the last ten
// blocks, defaulting to 2 gwei when the node returns no reward data.
func (c *Client) priorityFee(ctx context.Context) (*big.Int, error) {
	result, err := c.transport.call(ctx, "eth_feeHistory", []interface{}{
		hexutil.EncodeUint64(10),
		"latest",
		[]int{50},
	})
	if err != nil {
		return nil, wrapRPC("eth_feeHistory", err)
	}
	var feeHistory struct {
		Reward [][]string `json:"reward"`
	}
	if err := json.Unmarshal(result, &feeHistory); err != nil {
		return nil, parseErr("fee history", err)
	}

	sum := big.NewInt(0)
	count := 0
	for _, rewards := range feeHistory.Reward {
		if len(rewards) == 0 {
			continue
		}
		fee, err := hexutil.DecodeBig(rewards[0])
		if err != nil {
			continue
		}
		sum.Add(sum, fee)
		count++
	}
	if count == 0 {
		return big.NewInt(2e9), nil
	}
	return new(big.Int).Div(sum, big.NewInt(int64(count))), nil
}

func (c *Client) legacyGasPrice(ctx context.Context) (*big.Int, error) {
	hex, err := c.callString(ctx, "eth_gasPrice", nil)
	if err != nil {
		return nil, err
	}
	price, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, parseErr("gas price", err)
	}
	return price, nil
}

// EstimateGas estimates the gas limit for a transaction.
func (c *Client) EstimateGas(ctx context.Context, from, to string, value *big.Int, data []byte) (uint64, error) {
	txObj := map[string]interface{}{
		"from": from,
		"to":   to,
	}
	if value != nil && value.Sign() > 0 {
		txObj["value"] = hexutil.EncodeBig(value)
	}
	if len(data) > 0 {
		txObj["data"] = hexutil.Encode(data)
	}

	hex, err := c.callString(ctx, "eth_estimateGas", []interface{}{txObj})
	if err != nil {
		return 0, err
	}
	gas, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, parseErr("gas estimate", err)
	}
	return gas, nil
}

// SendRaw broadcasts a signed, RLP-encoded transaction and returns the
// node-reported hash.
func (c *Client) SendRaw(ctx context.Context, rawTxHex string) (string, error) {
	txHash, err := c.callString(ctx, "eth_sendRawTransaction", []interface{}{rawTxHex})
	if err != nil {
		return "", err
	}
	if txHash == "" {
		return "", relayerr.Network("ERR_RPC_UNAVAILABLE", "no hash returned", nil)
	}
	return txHash, nil
}

// EthCall performs a read-only eth_call against to with the given ABI-packed
// calldata, used by the meta-transaction path to read a forwarder
// contract's nonce without ever needing a signed transaction.
func (c *Client) EthCall(ctx context.Context, to string, data []byte) ([]byte, error) {
	hex, err := c.callString(ctx, "eth_call", []interface{}{
		map[string]interface{}{
			"to":   to,
			"data": hexutil.Encode(data),
		},
		"latest",
	})
	if err != nil {
		return nil, err
	}
	out, err := hexutil.Decode(hex)
	if err != nil {
		return nil, parseErr("eth_call result", err)
	}
	return out, nil
}

// GetReceipt retrieves the transaction receipt, or nil if not yet mined.
func (c *Client) GetReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	result, err := c.transport.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash})
	if err != nil {
		return nil, wrapRPC("eth_getTransactionReceipt", err)
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}
	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return nil, parseErr("receipt", err)
	}
	return &receipt, nil
}

// BlockNumber retrieves the node's current block height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	hex, err := c.callString(ctx, "eth_blockNumber", nil)
	if err != nil {
		return 0, err
	}
	n, err := hexutil.DecodeUint64(hex)
	if err != nil {
		return 0, parseErr("block number", err)
	}
	return n, nil
}

// ChainID returns the chain ID this client was built for.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Close releases the underlying HTTP client's idle connections.
func (c *Client) Close() error {
	c.transport.close()
	return nil
}

// Pool keeps one Client per chain ID. Writes happen only at startup and
// config reload; reads are per-request.
type Pool struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

// New constructs a Pool with an empty client set.
func New() *Pool {
	return &Pool{clients: make(map[uint64]*Client)}
}

// Add constructs and registers a Client for the given chain configuration.
func (p *Pool) Add(cfg models.ChainConfig) error {
	tr, err := newTransport([]string{cfg.RPCURL}, defaultCallTimeout)
	if err != nil {
		return relayerr.New(relayerr.KindConfig, "ERR_RPC_CONFIG", "building RPC client for chain", relayerr.NonRetryable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.clients[cfg.ChainID] = &Client{chainID: cfg.ChainID, transport: tr}
	return nil
}

// Get returns the client for a chain ID, or false if none is registered.
func (p *Pool) Get(chainID uint64) (*Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.clients[chainID]
	return c, ok
}

// CloseAll closes every client in the pool, collecting (not stopping at) the
// first error.
func (p *Pool) CloseAll() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var firstErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
