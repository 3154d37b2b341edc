package httpapi

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/airchainpay/relay/internal/breaker"
	"github.com/airchainpay/relay/internal/forwarder"
	"github.com/airchainpay/relay/internal/models"
	"github.com/airchainpay/relay/internal/relayerr"
	"github.com/airchainpay/relay/internal/rpcpool"
	"github.com/airchainpay/relay/internal/signer"
	"github.com/airchainpay/relay/internal/store"
	"github.com/airchainpay/relay/internal/validator"
)

type sendMetaTxRequest struct {
	Envelope models.MetaTransaction `json:"envelope"`
	ChainID  uint64                 `json:"chain_id"`
}

// handleSendMetaTx countersigns and broadcasts a gasless meta-transaction:
// the caller's EIP-712 signature authorizes the transfer, the relay's own
// operator key pays gas for the forwarder call that carries it on-chain.
func (d *Deps) handleSendMetaTx(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if d.Metrics != nil {
		d.Metrics.RecordReceived()
	}

	var req sendMetaTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		d.failSendTx(w, r, start, relayerr.Validation("ERR_INVALID_INPUT", "malformed request body", err))
		return
	}
	req.Envelope.ChainID = req.ChainID

	chain, ok := d.Registry.Get(req.ChainID)
	if !ok {
		d.failSendTx(w, r, start, relayerr.Validation("ERR_UNSUPPORTED_CHAIN", "chain id is not registered", nil))
		return
	}
	if err := validator.Address(req.Envelope.From); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	if err := validator.Address(req.Envelope.To); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	if _, err := validator.ValueWei(req.Envelope.Value); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	if err := validator.Deadline(req.Envelope.Deadline, time.Now().Unix()); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	if req.Envelope.Token != "" {
		if err := validator.Address(req.Envelope.Token); err != nil {
			d.failSendTx(w, r, start, relayerr.Validation("ERR_UNSUPPORTED_TOKEN", "token is not a valid contract address", err))
			return
		}
	}

	client, ok := d.Pool.Get(req.ChainID)
	if !ok {
		d.failSendTx(w, r, start, relayerr.Validation("ERR_UNSUPPORTED_CHAIN", "no RPC client registered for chain", nil))
		return
	}

	// The EIP-712 domain separator, struct typehash, and replay nonce are
	// all read from the deployed forwarder contract at admission time —
	// never assumed locally — so the digest verified here is exactly the
	// digest the contract will verify on execution.
	onChainNonce, err := fetchForwarderNonce(r.Context(), client, chain.ContractAddress, req.Envelope.From)
	if err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	if err := validator.ReplayNonce(req.Envelope.Nonce, onChainNonce); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	domain, err := fetchForwarderBytes32(r.Context(), client, chain.ContractAddress, forwarder.EncodeGetEip712Domain())
	if err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	typehashCall := forwarder.EncodeGetPaymentTypehash()
	if req.Envelope.Token != "" {
		typehashCall = forwarder.EncodeGetTokenPaymentTypehash()
	}
	typeHash, err := fetchForwarderBytes32(r.Context(), client, chain.ContractAddress, typehashCall)
	if err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	structHash, err := signer.StructHash(typeHash, req.Envelope)
	if err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	digest := signer.Digest(domain, structHash)

	sigBytes := common.FromHex(req.Envelope.Signature)
	validSig, err := signer.VerifyTypedDataSignature(digest, sigBytes, req.Envelope.From)
	if err != nil {
		d.failSendTx(w, r, start, err)
		return
	}
	if !validSig {
		d.failSendTx(w, r, start, relayerr.Validation("ERR_INVALID_SIGNATURE", "recovered signer does not match envelope.from", nil))
		return
	}

	callData, err := encodeForwarderCall(req.Envelope)
	if err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	rec := &models.StoredTransaction{
		ID:        uuid.NewString(),
		ChainID:   req.ChainID,
		Timestamp: time.Now().UTC(),
		Status:    models.TxStatusPending,
		IsMetaTx:  true,
		Security: models.SecurityMetadata{
			Hash:      store.ContentHash(req.Envelope.Signature),
			CreatedAt: time.Now().UTC(),
			ServerID:  requestIDFrom(r.Context()),
		},
	}
	if err := d.Store.Put(rec); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	cpath := models.PathForEndpoint(r.URL.Path)
	if d.Guard != nil {
		if err := d.Guard.Allow(cpath); err != nil {
			writeBreakerRejection(w, r, d.Guard, cpath)
			return
		}
	}

	txHash, err := d.broadcastForwarderCall(r.Context(), client, req.ChainID, chain.ContractAddress, callData)
	if err != nil {
		d.settleFailure(rec, err.Error())
		if d.Guard != nil {
			d.Guard.RecordFailureDetailed(cpath, err, models.SeverityHigh, "meta_tx_broadcast")
		}
		d.failSendTx(w, r, start, relayerr.Classify(err))
		return
	}

	rec.Status = models.TxStatusConfirmed
	rec.TxHash = txHash
	if err := d.Store.Put(rec); err != nil {
		d.failSendTx(w, r, start, err)
		return
	}

	if d.Guard != nil {
		d.Guard.RecordSuccess(cpath)
	}
	if d.Metrics != nil {
		d.Metrics.RecordProcessed(float64(time.Since(start).Milliseconds()))
	}

	writeJSON(w, http.StatusOK, sendTxResponse{
		Success:       true,
		TransactionID: rec.ID,
		ChainID:       rec.ChainID,
		Timestamp:     rec.Timestamp,
		TxHash:        rec.TxHash,
	})
}

// fetchForwarderNonce reads the forwarder contract's replay-protection
// nonce for account via eth_call, rather than the EOA transaction nonce
// used for raw submissions — the two counters are unrelated.
func fetchForwarderNonce(ctx context.Context, client *rpcpool.Client, contractAddress, account string) (uint64, error) {
	result, err := client.EthCall(ctx, contractAddress, forwarder.EncodeGetNonce(account))
	if err != nil {
		return 0, relayerr.Network("ERR_RPC_UNAVAILABLE", "failed to read forwarder nonce", err)
	}
	nonce, err := forwarder.DecodeUint256(result)
	if err != nil {
		return 0, err
	}
	return nonce.Uint64(), nil
}

// fetchForwarderBytes32 reads one of the forwarder contract's bytes32
// accessors (domain separator, payment typehash, token payment typehash)
// via eth_call.
func fetchForwarderBytes32(ctx context.Context, client *rpcpool.Client, contractAddress string, callData []byte) ([32]byte, error) {
	result, err := client.EthCall(ctx, contractAddress, callData)
	if err != nil {
		return [32]byte{}, relayerr.Network("ERR_RPC_UNAVAILABLE", "failed to read forwarder EIP-712 parameters", err)
	}
	return forwarder.DecodeBytes32(result)
}

func encodeForwarderCall(envelope models.MetaTransaction) ([]byte, error) {
	data := common.FromHex(envelope.Data)
	signature := common.FromHex(envelope.Signature)
	if envelope.Token != "" {
		return forwarder.EncodeExecuteTokenMetaTransaction(envelope, data, signature)
	}
	return forwarder.EncodeExecuteMetaTransaction(envelope, data, signature)
}

// broadcastForwarderCall builds, signs with the relay's own operator key,
// and submits the transaction that carries callData to the forwarder
// contract — the relay pays gas; the caller's EIP-712 signature (already
// verified) is what authorizes the transfer inside callData.
func (d *Deps) broadcastForwarderCall(ctx context.Context, client *rpcpool.Client, chainID uint64, contractAddress string, callData []byte) (string, error) {
	operatorNonce, err := client.GetNonce(ctx, d.Signer.Address())
	if err != nil {
		return "", relayerr.Network("ERR_RPC_UNAVAILABLE", "failed to fetch operator nonce", err)
	}
	gasPrice, err := client.GasPrice(ctx)
	if err != nil {
		return "", relayerr.Network("ERR_RPC_UNAVAILABLE", "failed to fetch gas price", err)
	}
	gasLimit, err := client.EstimateGas(ctx, d.Signer.Address(), contractAddress, big.NewInt(0), callData)
	if err != nil {
		return "", relayerr.Network("ERR_RPC_UNAVAILABLE", "failed to estimate gas", err)
	}

	tx := types.NewTransaction(
		operatorNonce,
		common.HexToAddress(contractAddress),
		big.NewInt(0),
		gasLimit,
		gasPrice,
		callData,
	)

	signed, err := d.Signer.SignLegacyTransaction(tx, new(big.Int).SetUint64(chainID))
	if err != nil {
		return "", err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", relayerr.Crypto("ERR_RLP_ENCODE", "failed to encode signed transaction", err)
	}

	var txHash string
	err = breaker.Retry(ctx, d.broadcastAttempts(), 200*time.Millisecond, func() error {
		hash, sendErr := client.SendRaw(ctx, hexutil.Encode(raw))
		if sendErr != nil {
			return sendErr
		}
		txHash = hash
		return nil
	})
	return txHash, err
}
