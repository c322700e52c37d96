package ethereum

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newTestClient points the client at a fake JSON-RPC node. The handler
// receives every request and returns the value to wrap as the rpc result.
func newTestClient(t *testing.T, handler func(req rpcRequest) any) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handler(req),
		}))
	}))
	t.Cleanup(srv.Close)

	viper.Set("chain.rpc_url", srv.URL)
	viper.Set("chain.marketplace_address", "0x00000000000000000000000000000000000000aa")
	viper.Set("chain.escrow_address", "0x00000000000000000000000000000000000000bb")
	viper.Set("chain.batchnft_address", "0x00000000000000000000000000000000000000cc")
	viper.Set("chain.userprofile_address", "0x00000000000000000000000000000000000000dd")

	c := MustNewClient()
	t.Cleanup(c.Close)

	return c
}

func capturedTopics(t *testing.T, req rpcRequest) []json.RawMessage {
	t.Helper()

	var q struct {
		Topics []json.RawMessage `json:"topics"`
	}
	require.NoError(t, json.Unmarshal(req.Params[0], &q))

	return q.Topics
}

func TestPurchaseEventsBuyerFiltersThirdIndexedTopic(t *testing.T) {
	buyer := "0x1111111111111111111111111111111111111111"

	var topics []json.RawMessage
	c := newTestClient(t, func(req rpcRequest) any {
		if req.Method == "eth_getLogs" {
			topics = capturedTopics(t, req)
		}

		return []any{}
	})

	_, err := c.PurchaseEvents(context.Background(), buyer)
	require.NoError(t, err)

	require.Len(t, topics, 4)

	var sig []string
	require.NoError(t, json.Unmarshal(topics[0], &sig))
	assert.Equal(t, []string{c.marketABI.Events["Purchased"].ID.Hex()}, sig)

	// listingId and escrowId stay unconstrained.
	assert.Equal(t, "null", string(topics[1]))
	assert.Equal(t, "null", string(topics[2]))

	var buyerTopic []string
	require.NoError(t, json.Unmarshal(topics[3], &buyerTopic))
	want := common.BytesToHash(common.LeftPadBytes(common.HexToAddress(buyer).Bytes(), 32)).Hex()
	assert.Equal(t, []string{want}, buyerTopic)
}

func TestPurchaseEventsEmptyBuyerMatchesAll(t *testing.T) {
	var topics []json.RawMessage
	c := newTestClient(t, func(req rpcRequest) any {
		if req.Method == "eth_getLogs" {
			topics = capturedTopics(t, req)
		}

		return []any{}
	})

	events, err := c.PurchaseEvents(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, events)

	require.Len(t, topics, 1)
}

func TestPurchaseEventsParsesLog(t *testing.T) {
	buyer := "0x1111111111111111111111111111111111111111"
	purchased := mustParseABI(marketplaceABI).Events["Purchased"]

	data, err := purchased.Inputs.NonIndexed().Pack(big.NewInt(3), big.NewInt(2))
	require.NoError(t, err)

	txHash := common.HexToHash("0xdead")
	c := newTestClient(t, func(req rpcRequest) any {
		if req.Method != "eth_getLogs" {
			return []any{}
		}

		return []any{map[string]any{
			"address": "0x00000000000000000000000000000000000000aa",
			"topics": []string{
				purchased.ID.Hex(),
				common.BigToHash(big.NewInt(7)).Hex(),
				common.BigToHash(big.NewInt(9)).Hex(),
				common.BytesToHash(common.LeftPadBytes(common.HexToAddress(buyer).Bytes(), 32)).Hex(),
			},
			"data":             hexutil.Encode(data),
			"blockNumber":      "0x10",
			"transactionHash":  txHash.Hex(),
			"transactionIndex": "0x0",
			"blockHash":        common.HexToHash("0x1").Hex(),
			"logIndex":         "0x0",
			"removed":          false,
		}}
	})

	events, err := c.PurchaseEvents(context.Background(), buyer)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, int64(7), ev.ListingID)
	assert.Equal(t, int64(9), ev.EscrowID)
	assert.Equal(t, common.HexToAddress(buyer).Hex(), ev.Buyer)
	assert.Equal(t, int64(3), ev.TokenID)
	assert.Equal(t, int64(2), ev.Quantity)
	assert.Equal(t, uint64(0x10), ev.BlockNumber)
	assert.Equal(t, txHash.Hex(), ev.TxHash)
}

func TestPurchaseEventsRejectsMalformedData(t *testing.T) {
	purchased := mustParseABI(marketplaceABI).Events["Purchased"]
	txHash := common.HexToHash("0xbeef")

	c := newTestClient(t, func(req rpcRequest) any {
		if req.Method != "eth_getLogs" {
			return []any{}
		}

		return []any{map[string]any{
			"address": "0x00000000000000000000000000000000000000aa",
			"topics": []string{
				purchased.ID.Hex(),
				common.BigToHash(big.NewInt(7)).Hex(),
				common.BigToHash(big.NewInt(9)).Hex(),
				common.BigToHash(big.NewInt(0)).Hex(),
			},
			"data":             "0x",
			"blockNumber":      "0x10",
			"transactionHash":  txHash.Hex(),
			"transactionIndex": "0x0",
			"blockHash":        common.HexToHash("0x1").Hex(),
			"logIndex":         "0x0",
			"removed":          false,
		}}
	})

	_, err := c.PurchaseEvents(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), txHash.Hex())
	assert.NotContains(t, err.Error(), "%!w")
}
