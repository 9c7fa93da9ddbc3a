package clients

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/priceguard/internal/domain"
)

// order slippage tolerance for market-like IOC orders
const swapSlippage = 0.005

// HyperliquidClient wraps the DEX SDK as the trade boundary: exact-input
// quotes, wallet balances and guarded swaps. Constructed once at process
// start and passed by reference, never reached through globals.
//
// Without a private key the client is read-only: quotes and balances
// work, Swap fails. Whether swaps are simulated is a separate explicit
// configuration flag owned by the trader.
type HyperliquidClient struct {
	info        *hyperliquid.Info
	ex          *hyperliquid.Exchange
	accountAddr string
	symbols     map[domain.AssetID]string
	stable      domain.AssetID
}

// NewHyperliquidClient builds the DEX client. privateKeyHex may be empty
// for read-only use. symbols maps shared asset ids to Hyperliquid coin
// names; stable names the USD-pegged asset used as the quote leg of
// every swap.
func NewHyperliquidClient(privateKeyHex, baseURL string, symbols map[domain.AssetID]string, stable domain.AssetID) (*HyperliquidClient, error) {
	c := &HyperliquidClient{
		symbols: symbols,
		stable:  stable,
	}

	if privateKeyHex == "" {
		c.info = hyperliquid.NewInfo(context.Background(), baseURL, true, nil, nil)
		return c, nil
	}

	key := strings.TrimPrefix(strings.TrimPrefix(privateKeyHex, "0x"), "0X")
	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "parse hyperliquid private key")
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("error casting public key to ECDSA")
	}
	c.accountAddr = crypto.PubkeyToAddress(*pub).Hex()

	c.ex = hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		c.accountAddr,
		nil,
	)
	c.info = c.ex.Info()
	return c, nil
}

// Info exposes the read side for the on-chain price source adapter.
func (c *HyperliquidClient) Info() *hyperliquid.Info { return c.info }

// AccountAddress returns the wallet address derived from the key, empty
// in read-only mode.
func (c *HyperliquidClient) AccountAddress() string { return c.accountAddr }

func (c *HyperliquidClient) coinFor(asset domain.AssetID) (string, error) {
	if coin, ok := c.symbols[asset]; ok {
		return coin, nil
	}
	return "", errors.Errorf("asset %s is not mapped to a hyperliquid coin", asset.Symbol())
}

// price returns an executable price for one coin leg: the slippage-aware
// book price when a signer is available, the mid otherwise.
func (c *HyperliquidClient) price(ctx context.Context, coin string, isBuy bool) (decimal.Decimal, error) {
	if c.ex != nil {
		px, err := c.ex.SlippagePrice(ctx, coin, isBuy, swapSlippage, nil)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "slippage price")
		}
		return decimal.NewFromFloat(px), nil
	}

	mids, err := c.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "all mids")
	}
	mid, ok := mids[coin]
	if !ok || mid == "" {
		return decimal.Zero, errors.Errorf("no market for coin %s", coin)
	}
	return decimal.NewFromString(mid)
}

// QuoteExactInput prices a swap of amount assetIn into assetOut. One leg
// must be the configured stable asset; cross-coin quotes go through it.
func (c *HyperliquidClient) QuoteExactInput(ctx context.Context, assetIn, assetOut domain.AssetID, amount decimal.Decimal) (domain.Quote, error) {
	if !amount.IsPositive() {
		return domain.Quote{}, errors.New("quote amount must be positive")
	}

	quote := domain.Quote{
		AssetIn:  assetIn,
		AssetOut: assetOut,
		AmountIn: amount,
		QuotedAt: time.Now(),
	}

	switch {
	case assetIn == c.stable:
		coin, err := c.coinFor(assetOut)
		if err != nil {
			return domain.Quote{}, err
		}
		px, err := c.price(ctx, coin, true)
		if err != nil {
			return domain.Quote{}, err
		}
		quote.OutAmount = amount.Div(px)
		quote.PriceImpact, err = c.impact(ctx, coin, px)
		if err != nil {
			return domain.Quote{}, err
		}

	case assetOut == c.stable:
		coin, err := c.coinFor(assetIn)
		if err != nil {
			return domain.Quote{}, err
		}
		px, err := c.price(ctx, coin, false)
		if err != nil {
			return domain.Quote{}, err
		}
		quote.OutAmount = amount.Mul(px)
		quote.PriceImpact, err = c.impact(ctx, coin, px)
		if err != nil {
			return domain.Quote{}, err
		}

	default:
		coinIn, err := c.coinFor(assetIn)
		if err != nil {
			return domain.Quote{}, err
		}
		coinOut, err := c.coinFor(assetOut)
		if err != nil {
			return domain.Quote{}, err
		}
		pxIn, err := c.price(ctx, coinIn, false)
		if err != nil {
			return domain.Quote{}, err
		}
		pxOut, err := c.price(ctx, coinOut, true)
		if err != nil {
			return domain.Quote{}, err
		}
		quote.OutAmount = amount.Mul(pxIn).Div(pxOut)
	}

	return quote, nil
}

// impact compares an executable price against the mid.
func (c *HyperliquidClient) impact(ctx context.Context, coin string, px decimal.Decimal) (decimal.Decimal, error) {
	mids, err := c.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "all mids")
	}
	raw, ok := mids[coin]
	if !ok || raw == "" {
		return decimal.Zero, nil
	}
	mid, err := decimal.NewFromString(raw)
	if err != nil || !mid.IsPositive() {
		return decimal.Zero, nil
	}
	return px.Sub(mid).Abs().Div(mid).Mul(decimal.NewFromInt(100)), nil
}

// UserAssets lists the wallet's spot holdings.
func (c *HyperliquidClient) UserAssets(ctx context.Context) ([]domain.AssetBalance, error) {
	if c.accountAddr == "" {
		return nil, errors.New("no account: client is read-only")
	}

	st, err := c.info.SpotUserState(ctx, c.accountAddr)
	if err != nil {
		return nil, errors.Wrap(err, "get spot user state")
	}

	balances := make([]domain.AssetBalance, 0, len(st.Balances))
	for _, b := range st.Balances {
		qty, err := decimal.NewFromString(b.Total)
		if err != nil {
			continue
		}
		balances = append(balances, domain.AssetBalance{
			Symbol:   b.Coin,
			Quantity: qty,
			Decimals: 8,
		})
	}
	return balances, nil
}

// Swap sends an IOC order for intent. One leg must be the stable asset.
func (c *HyperliquidClient) Swap(ctx context.Context, intent domain.SwapIntent) (string, error) {
	if c.ex == nil {
		return "", errors.New("no signer: client is read-only")
	}

	var (
		coin  string
		isBuy bool
		size  decimal.Decimal
	)
	switch {
	case intent.AssetIn == c.stable:
		// spending stable to acquire the base coin
		c2, err := c.coinFor(intent.AssetOut)
		if err != nil {
			return "", err
		}
		px, err := c.price(ctx, c2, true)
		if err != nil {
			return "", err
		}
		coin, isBuy, size = c2, true, intent.AmountIn.Div(px)

	case intent.AssetOut == c.stable:
		c2, err := c.coinFor(intent.AssetIn)
		if err != nil {
			return "", err
		}
		coin, isBuy, size = c2, false, intent.AmountIn

	default:
		return "", errors.Errorf("unsupported swap %s: one leg must be %s", intent.String(), c.stable.Symbol())
	}

	px, err := c.ex.SlippagePrice(ctx, coin, isBuy, swapSlippage, nil)
	if err != nil {
		return "", errors.Wrap(err, "slippage price")
	}

	cloid := cloidFromID(uuid.NewString())
	sizeF, _ := size.Round(8).Float64()
	req := hyperliquid.CreateOrderRequest{
		Coin:          coin,
		IsBuy:         isBuy,
		Price:         px,
		Size:          sizeF,
		ClientOrderID: &cloid,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc},
		},
	}

	if _, err := c.ex.Order(ctx, req, nil); err != nil {
		return "", errors.Wrap(err, "place order")
	}
	return cloid, nil
}

// cloidFromID converts a free-form id into a valid Hyperliquid cloid
// (0x followed by 32 hex chars).
func cloidFromID(id string) string {
	sum := sha256.Sum256([]byte(id))
	return "0x" + hex.EncodeToString(sum[:16])
}
