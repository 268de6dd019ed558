// Package prices looks up spot prices for crypto assets. Binance is the
// primary source; symbols it cannot price are filled in from CoinGecko,
// and a Binance outage sends every symbol to CoinGecko.
package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/basemcp/internal/metrics"
	"github.com/mbd888/basemcp/internal/upstream"
	"github.com/mbd888/basemcp/internal/validation"
)

const (
	SourceBinance   = "Binance API"
	SourceCoinGecko = "CoinGecko API"
	sourceDefault   = "Cryptocurrency APIs"

	priceNotAvailable = "Price not available"
	notAvailable      = "Not available"
)

// symbolToID maps ticker symbols to CoinGecko coin ids. Unknown symbols
// fall back to their lowercase form.
var symbolToID = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"SOL":   "solana",
	"DOGE":  "dogecoin",
	"MATIC": "matic-network",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"AAVE":  "aave",
	"CRV":   "curve-dao-token",
	"SNX":   "synthetix-network-token",
	"COMP":  "compound-governance-token",
	"MKR":   "maker",
	"SHIB":  "shiba-inu",
}

// CoinGeckoID returns the CoinGecko id for a symbol.
func CoinGeckoID(symbol string) string {
	if id, ok := symbolToID[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

// Request is the asset_price input.
type Request struct {
	AssetSymbols    []string `json:"assetSymbols"`
	Currency        string   `json:"currency"`
	IncludeMetadata bool     `json:"includeMetadata"`
}

// Price is one quoted asset.
type Price struct {
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Source   string `json:"source"`
}

// Metadata is the 24h market summary for one asset.
type Metadata struct {
	Symbol                   string `json:"symbol"`
	MarketCap                string `json:"marketCap"`
	Volume24h                string `json:"volume24h"`
	PriceChange24h           string `json:"priceChange24h"`
	PriceChangePercentage24h string `json:"priceChangePercentage24h"`
	Source                   string `json:"source"`
}

// Response is the asset_price output.
type Response struct {
	Prices    []Price    `json:"prices"`
	Metadata  []Metadata `json:"metadata,omitempty"`
	Timestamp string     `json:"timestamp"`
	Source    string     `json:"source"`
}

// Service answers price lookups.
type Service struct {
	binance   *upstream.Client
	coingecko *upstream.Client
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a price service over the two provider clients.
func NewService(binance, coingecko *upstream.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{binance: binance, coingecko: coingecko, logger: logger, now: time.Now}
}

// Normalize validates req and upper-cases its symbols and currency.
func Normalize(req Request) (Request, error) {
	if len(req.AssetSymbols) == 0 {
		return req, errors.New("At least one asset symbol must be provided")
	}
	symbols := make([]string, len(req.AssetSymbols))
	for i, s := range req.AssetSymbols {
		if !validation.IsValidSymbol(s) {
			return req, fmt.Errorf("Invalid asset symbol: %s", s)
		}
		symbols[i] = strings.ToUpper(s)
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}
	if !validation.IsValidCurrency(req.Currency) {
		return req, fmt.Errorf("Invalid currency: %s", req.Currency)
	}
	req.AssetSymbols = symbols
	req.Currency = strings.ToUpper(req.Currency)
	return req, nil
}

// Lookup runs the Binance then CoinGecko price chain.
func (s *Service) Lookup(ctx context.Context, req Request) (*Response, error) {
	req, err := Normalize(req)
	if err != nil {
		return nil, fmt.Errorf("Failed to get asset prices: %w", err)
	}

	quotes, err := s.fetchPrices(ctx, req.AssetSymbols, req.Currency)
	if err != nil {
		return nil, fmt.Errorf("Failed to get asset prices: %w", err)
	}

	resp := &Response{
		Prices:    quotes,
		Timestamp: s.now().UTC().Format(time.RFC3339),
		Source:    sourceDefault,
	}
	if len(quotes) > 0 && quotes[0].Source != "" {
		resp.Source = quotes[0].Source
	}

	if req.IncludeMetadata {
		md, err := s.fetchMetadata(ctx, req.AssetSymbols, req.Currency)
		if err != nil {
			return nil, fmt.Errorf("Failed to get asset prices: %w", err)
		}
		resp.Metadata = md
	}
	return resp, nil
}

// Quote returns a single price as a float, for internal consumers such as
// the gas oracle.
func (s *Service) Quote(ctx context.Context, symbol, currency string) (float64, string, error) {
	quotes, err := s.fetchPrices(ctx, []string{strings.ToUpper(symbol)}, strings.ToUpper(currency))
	if err != nil {
		return 0, "", err
	}
	p, err := strconv.ParseFloat(quotes[0].Price, 64)
	if err != nil || p <= 0 {
		return 0, quotes[0].Source, fmt.Errorf("no price for %s/%s", symbol, currency)
	}
	return p, quotes[0].Source, nil
}

func (s *Service) fetchPrices(ctx context.Context, symbols []string, currency string) ([]Price, error) {
	found, err := s.binancePrices(ctx, symbols, currency)
	missing := symbols
	if err != nil {
		s.logger.Warn("binance price lookup failed, falling back to coingecko", "error", err)
		found = nil
	} else {
		missing = missingSymbols(symbols, found)
	}

	var gecko map[string]Price
	if len(missing) > 0 {
		gecko, err = s.coinGeckoPrices(ctx, missing, currency)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Price, 0, len(symbols))
	for _, sym := range symbols {
		p, ok := found[sym]
		if !ok {
			p = gecko[sym]
		}
		metrics.PriceSourceTotal.WithLabelValues(sourceLabel(p)).Inc()
		out = append(out, p)
	}
	return out, nil
}

func sourceLabel(p Price) string {
	switch {
	case p.Price == priceNotAvailable:
		return "none"
	case p.Source == SourceBinance:
		return "binance"
	default:
		return "coingecko"
	}
}

type binancePrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (s *Service) binancePrices(ctx context.Context, symbols []string, currency string) (map[string]Price, error) {
	var tickers []binancePrice
	if err := s.binanceTickers(ctx, "/api/v3/ticker/price", symbols, currency, &tickers); err != nil {
		return nil, fmt.Errorf("Failed to fetch prices from Binance: %w", err)
	}
	byPair := make(map[string]string, len(tickers))
	for _, t := range tickers {
		byPair[t.Symbol] = t.Price
	}
	out := make(map[string]Price)
	for _, sym := range symbols {
		if price, ok := byPair[sym+currency]; ok && price != "" {
			out[sym] = Price{Symbol: sym, Price: price, Currency: currency, Source: SourceBinance}
		}
	}
	return out, nil
}

// binanceTickers fetches the requested pairs. Binance rejects the whole
// batch with 400 if any pair is unknown, so that case retries against the
// unfiltered listing and lets the caller pick out what exists.
func (s *Service) binanceTickers(ctx context.Context, path string, symbols []string, currency string, out any) error {
	pairs := make([]string, 0, len(symbols))
	seen := make(map[string]bool)
	for _, sym := range symbols {
		pair := sym + currency
		if !seen[pair] {
			seen[pair] = true
			pairs = append(pairs, pair)
		}
	}
	filter, _ := json.Marshal(pairs)

	err := s.binance.GetJSON(ctx, path, url.Values{"symbols": {string(filter)}}, out)
	var se *upstream.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest {
		return s.binance.GetJSON(ctx, path, nil, out)
	}
	return err
}

func (s *Service) coinGeckoPrices(ctx context.Context, symbols []string, currency string) (map[string]Price, error) {
	cur := strings.ToLower(currency)
	q := url.Values{
		"ids":           {geckoIDs(symbols)},
		"vs_currencies": {cur},
	}
	var data map[string]map[string]float64
	if err := s.coingecko.GetJSON(ctx, "/api/v3/simple/price", q, &data); err != nil {
		return nil, fmt.Errorf("Failed to fetch asset prices from CoinGecko: %w", err)
	}

	out := make(map[string]Price, len(symbols))
	for _, sym := range symbols {
		p := Price{Symbol: sym, Price: priceNotAvailable, Currency: currency, Source: SourceCoinGecko}
		if v := data[CoinGeckoID(sym)][cur]; v > 0 {
			p.Price = strconv.FormatFloat(v, 'f', -1, 64)
		}
		out[sym] = p
	}
	return out, nil
}

type binanceDay struct {
	Symbol             string `json:"symbol"`
	Volume             string `json:"volume"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func (s *Service) fetchMetadata(ctx context.Context, symbols []string, currency string) ([]Metadata, error) {
	found, err := s.binanceMetadata(ctx, symbols, currency)
	missing := symbols
	if err != nil {
		s.logger.Warn("binance metadata lookup failed, falling back to coingecko", "error", err)
		found = nil
	} else {
		missing = missingSymbols(symbols, found)
	}

	var gecko map[string]Metadata
	if len(missing) > 0 {
		gecko, err = s.coinGeckoMetadata(ctx, missing, currency)
		if err != nil {
			return nil, err
		}
	}

	out := make([]Metadata, 0, len(symbols))
	for _, sym := range symbols {
		if m, ok := found[sym]; ok {
			out = append(out, m)
		} else {
			out = append(out, gecko[sym])
		}
	}
	return out, nil
}

func (s *Service) binanceMetadata(ctx context.Context, symbols []string, currency string) (map[string]Metadata, error) {
	var days []binanceDay
	if err := s.binanceTickers(ctx, "/api/v3/ticker/24hr", symbols, currency, &days); err != nil {
		return nil, fmt.Errorf("Failed to fetch metadata from Binance: %w", err)
	}
	byPair := make(map[string]binanceDay, len(days))
	for _, d := range days {
		byPair[d.Symbol] = d
	}
	out := make(map[string]Metadata)
	for _, sym := range symbols {
		d, ok := byPair[sym+currency]
		if !ok {
			continue
		}
		out[sym] = Metadata{
			Symbol:                   sym,
			MarketCap:                "Not available from Binance",
			Volume24h:                orNotAvailable(d.Volume),
			PriceChange24h:           orNotAvailable(d.PriceChange),
			PriceChangePercentage24h: orNotAvailable(d.PriceChangePercent),
			Source:                   SourceBinance,
		}
	}
	return out, nil
}

type geckoMarket struct {
	ID                       string   `json:"id"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChange24h           *float64 `json:"price_change_24h"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

func (s *Service) coinGeckoMetadata(ctx context.Context, symbols []string, currency string) (map[string]Metadata, error) {
	q := url.Values{
		"vs_currency": {strings.ToLower(currency)},
		"ids":         {geckoIDs(symbols)},
		"order":       {"market_cap_desc"},
		"per_page":    {"100"},
		"page":        {"1"},
		"sparkline":   {"false"},
	}
	var markets []geckoMarket
	if err := s.coingecko.GetJSON(ctx, "/api/v3/coins/markets", q, &markets); err != nil {
		return nil, fmt.Errorf("Failed to fetch asset metadata from CoinGecko: %w", err)
	}
	byID := make(map[string]geckoMarket, len(markets))
	for _, m := range markets {
		byID[m.ID] = m
	}

	out := make(map[string]Metadata, len(symbols))
	for _, sym := range symbols {
		m := byID[CoinGeckoID(sym)]
		out[sym] = Metadata{
			Symbol:                   sym,
			MarketCap:                floatOrNotAvailable(m.MarketCap),
			Volume24h:                floatOrNotAvailable(m.TotalVolume),
			PriceChange24h:           floatOrNotAvailable(m.PriceChange24h),
			PriceChangePercentage24h: floatOrNotAvailable(m.PriceChangePercentage24h),
			Source:                   SourceCoinGecko,
		}
	}
	return out, nil
}

func geckoIDs(symbols []string) string {
	ids := make([]string, 0, len(symbols))
	seen := make(map[string]bool)
	for _, sym := range symbols {
		id := CoinGeckoID(sym)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return strings.Join(ids, ",")
}

func missingSymbols[T any](symbols []string, found map[string]T) []string {
	var missing []string
	for _, sym := range symbols {
		if _, ok := found[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	return missing
}

func orNotAvailable(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}

func floatOrNotAvailable(f *float64) string {
	if f == nil {
		return notAvailable
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
