package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/spf13/viper"
)

// ErrNoSigner is returned by write calls when the service was started without
// a transaction key.
var ErrNoSigner = errors.New("no chain signing key configured")

// Client talks to the deployed Marketplace, Escrow, BatchNFT and UserProfile
// contracts over JSON-RPC. It implements ichain.Reader and ichain.Writer.
type Client struct {
	eth *ethclient.Client

	marketABI  abi.ABI
	escrowAddr common.Address
	marketAddr common.Address

	market  *bind.BoundContract
	escrow  *bind.BoundContract
	batch   *bind.BoundContract
	profile *bind.BoundContract

	signer *bind.TransactOpts
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// MustNewClient dials the configured RPC node and binds the contracts. The
// signing key comes from the CHAIN_PRIVATE_KEY env var and is optional: a
// read-only deployment serves projections but rejects transition drives.
func MustNewClient() *Client {
	eth, err := ethclient.Dial(viper.GetString("chain.rpc_url"))
	if err != nil {
		panic(fmt.Sprintf("failed to dial rpc node: %v", err))
	}

	marketABI := mustParseABI(marketplaceABI)
	escrowParsed := mustParseABI(escrowABI)
	batchParsed := mustParseABI(batchNFTABI)
	profileParsed := mustParseABI(userProfileABI)

	marketAddr := common.HexToAddress(viper.GetString("chain.marketplace_address"))
	escrowAddr := common.HexToAddress(viper.GetString("chain.escrow_address"))
	batchAddr := common.HexToAddress(viper.GetString("chain.batchnft_address"))
	profileAddr := common.HexToAddress(viper.GetString("chain.userprofile_address"))

	c := &Client{
		eth:        eth,
		marketABI:  marketABI,
		marketAddr: marketAddr,
		escrowAddr: escrowAddr,
		market:     bind.NewBoundContract(marketAddr, marketABI, eth, eth, eth),
		escrow:     bind.NewBoundContract(escrowAddr, escrowParsed, eth, eth, eth),
		batch:      bind.NewBoundContract(batchAddr, batchParsed, eth, eth, eth),
		profile:    bind.NewBoundContract(profileAddr, profileParsed, eth, eth, eth),
	}

	if keyHex := os.Getenv("CHAIN_PRIVATE_KEY"); keyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			panic(fmt.Sprintf("invalid CHAIN_PRIVATE_KEY: %v", err))
		}
		chainID := big.NewInt(viper.GetInt64("chain.chain_id"))
		signer, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			panic(fmt.Sprintf("failed to build transactor: %v", err))
		}
		c.signer = signer
	}

	return c
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse contract abi: %v", err))
	}

	return parsed
}

// PurchaseEvents filters Purchased logs from block 0 to latest. An empty
// buyer matches every purchase; otherwise the indexed buyer topic is used.
// Buyer is the third indexed argument, after listingId and escrowId.
func (c *Client) PurchaseEvents(ctx context.Context, buyer string) ([]chainstate.PurchaseEvent, error) {
	topics := [][]common.Hash{{c.marketABI.Events["Purchased"].ID}}
	if buyer != "" {
		buyerTopic := common.BytesToHash(common.LeftPadBytes(common.HexToAddress(buyer).Bytes(), 32))
		topics = append(topics, nil, nil, []common.Hash{buyerTopic})
	}

	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{c.marketAddr},
		Topics:    topics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter Purchased logs: %w", err)
	}

	events := make([]chainstate.PurchaseEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 4 {
			continue
		}

		unpacked, err := c.marketABI.Unpack("Purchased", lg.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack Purchased log %s: %w", lg.TxHash, err)
		}
		if len(unpacked) < 2 {
			return nil, fmt.Errorf("short Purchased log data in tx %s", lg.TxHash)
		}
		tokenID, ok1 := unpacked[0].(*big.Int)
		quantity, ok2 := unpacked[1].(*big.Int)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("unexpected Purchased log shape in tx %s", lg.TxHash)
		}

		events = append(events, chainstate.PurchaseEvent{
			ListingID:   new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64(),
			EscrowID:    new(big.Int).SetBytes(lg.Topics[2].Bytes()).Int64(),
			Buyer:       common.BytesToAddress(lg.Topics[3].Bytes()).Hex(),
			TokenID:     tokenID.Int64(),
			Quantity:    quantity.Int64(),
			BlockNumber: lg.BlockNumber,
			TxHash:      lg.TxHash.Hex(),
		})
	}

	return events, nil
}

// ListingEvents filters ListingCreated logs from block 0 to latest.
func (c *Client) ListingEvents(ctx context.Context) ([]chainstate.ListingCreatedEvent, error) {
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{c.marketAddr},
		Topics:    [][]common.Hash{{c.marketABI.Events["ListingCreated"].ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter ListingCreated logs: %w", err)
	}

	events := make([]chainstate.ListingCreatedEvent, 0, len(logs))
	for _, lg := range logs {
		if len(lg.Topics) < 3 {
			continue
		}
		events = append(events, chainstate.ListingCreatedEvent{
			ListingID:   new(big.Int).SetBytes(lg.Topics[1].Bytes()).Int64(),
			Seller:      common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
			BlockNumber: lg.BlockNumber,
		})
	}

	return events, nil
}

// Listing reads the current Marketplace state of one listing.
func (c *Client) Listing(ctx context.Context, listingID int64) (chainstate.ListingSnapshot, error) {
	var out []interface{}
	err := c.market.Call(&bind.CallOpts{Context: ctx}, &out, "getListing", big.NewInt(listingID))
	if err != nil {
		return chainstate.ListingSnapshot{}, fmt.Errorf("getListing(%d): %w", listingID, err)
	}
	if len(out) < 6 {
		return chainstate.ListingSnapshot{}, fmt.Errorf("getListing(%d): short return", listingID)
	}

	return chainstate.ListingSnapshot{
		ListingID: listingID,
		Seller:    out[0].(common.Address).Hex(),
		PriceWei:  out[1].(*big.Int),
		Active:    out[2].(bool),
		TokenID:   out[3].(*big.Int).Int64(),
		URI:       out[4].(string),
		Stock:     out[5].(*big.Int).Int64(),
	}, nil
}

// Escrow reads the current Escrow state of one purchase.
func (c *Client) Escrow(ctx context.Context, escrowID int64) (chainstate.EscrowSnapshot, error) {
	var out []interface{}
	err := c.escrow.Call(&bind.CallOpts{Context: ctx}, &out, "getEscrow", big.NewInt(escrowID))
	if err != nil {
		return chainstate.EscrowSnapshot{}, fmt.Errorf("getEscrow(%d): %w", escrowID, err)
	}
	if len(out) < 9 {
		return chainstate.EscrowSnapshot{}, fmt.Errorf("getEscrow(%d): short return", escrowID)
	}

	return chainstate.EscrowSnapshot{
		EscrowID: escrowID,
		Buyer:    out[0].(common.Address).Hex(),
		Seller:   out[1].(common.Address).Hex(),
		TokenID:  out[2].(*big.Int).Int64(),
		Shipped:  out[4].(bool),
		Released: out[8].(bool),
	}, nil
}

// Shipping reads the per-escrow shipping assignment.
func (c *Client) Shipping(ctx context.Context, escrowID int64) (chainstate.ShippingRecord, error) {
	var out []interface{}
	err := c.escrow.Call(&bind.CallOpts{Context: ctx}, &out, "getShipping", big.NewInt(escrowID))
	if err != nil {
		return chainstate.ShippingRecord{}, fmt.Errorf("getShipping(%d): %w", escrowID, err)
	}
	if len(out) < 3 {
		return chainstate.ShippingRecord{}, fmt.Errorf("getShipping(%d): short return", escrowID)
	}

	return chainstate.ShippingRecord{
		Logistics: out[0].(common.Address).Hex(),
		RawStatus: out[2].(uint8),
	}, nil
}

// BatchStatus reads the token-wide production code.
func (c *Client) BatchStatus(ctx context.Context, tokenID int64) (uint8, error) {
	var out []interface{}
	err := c.batch.Call(&bind.CallOpts{Context: ctx}, &out, "getStatus", big.NewInt(tokenID))
	if err != nil {
		return 0, fmt.Errorf("getStatus(%d): %w", tokenID, err)
	}
	if len(out) < 1 {
		return 0, fmt.Errorf("getStatus(%d): short return", tokenID)
	}

	return out[0].(uint8), nil
}

// TokenURI reads the token's metadata pointer.
func (c *Client) TokenURI(ctx context.Context, tokenID int64) (string, error) {
	var out []interface{}
	err := c.batch.Call(&bind.CallOpts{Context: ctx}, &out, "tokenURI", big.NewInt(tokenID))
	if err != nil {
		return "", fmt.Errorf("tokenURI(%d): %w", tokenID, err)
	}
	if len(out) < 1 {
		return "", fmt.Errorf("tokenURI(%d): short return", tokenID)
	}

	return out[0].(string), nil
}

// Profile reads a UserProfile entry.
func (c *Client) Profile(ctx context.Context, addr string) (chainstate.ProfileRecord, error) {
	var out []interface{}
	err := c.profile.Call(&bind.CallOpts{Context: ctx}, &out, "getUser", common.HexToAddress(addr))
	if err != nil {
		return chainstate.ProfileRecord{}, fmt.Errorf("getUser(%s): %w", addr, err)
	}
	if len(out) < 3 {
		return chainstate.ProfileRecord{}, fmt.Errorf("getUser(%s): short return", addr)
	}

	return chainstate.ProfileRecord{
		Role:       out[0].(uint8),
		Username:   out[1].(string),
		Registered: out[2].(bool),
	}, nil
}

func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) error {
	if c.signer == nil {
		return ErrNoSigner
	}

	opts := *c.signer
	opts.Context = ctx

	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("%s: waiting for tx %s: %w", method, tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%s: tx %s reverted", method, tx.Hash())
	}

	return nil
}

// ConfirmReceived releases the escrow to the seller.
func (c *Client) ConfirmReceived(ctx context.Context, escrowID int64) error {
	return c.transact(ctx, c.escrow, "confirmReceived", big.NewInt(escrowID))
}

// MarkShipped marks one escrow as handed over to logistics.
func (c *Client) MarkShipped(ctx context.Context, escrowID int64) error {
	return c.transact(ctx, c.escrow, "markShipped", big.NewInt(escrowID))
}

// LogisticsMarkOnTheWay records the shipment as in transit.
func (c *Client) LogisticsMarkOnTheWay(ctx context.Context, escrowID int64) error {
	return c.transact(ctx, c.escrow, "logisticsMarkOnTheWay", big.NewInt(escrowID))
}

// LogisticsMarkArrived records the shipment as delivered.
func (c *Client) LogisticsMarkArrived(ctx context.Context, escrowID int64) error {
	return c.transact(ctx, c.escrow, "logisticsMarkArrived", big.NewInt(escrowID))
}

// UpdateBatchStatus advances the token-wide production code.
func (c *Client) UpdateBatchStatus(ctx context.Context, tokenID int64, code uint8) error {
	return c.transact(ctx, c.batch, "updateBatchStatus", big.NewInt(tokenID), code)
}
