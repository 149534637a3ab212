package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"livermore/internal/model"
)

// Descriptors is the static, read-mostly table of exchange descriptors and
// symbol classifications, loaded once at startup from YAML and held in
// memory for lookups by name or id.
type Descriptors struct {
	Exchanges []model.ExchangeDescriptor `yaml:"exchanges"`
	Symbols   []model.ClassifiedSymbol   `yaml:"symbols"`

	byID   map[string]*model.ExchangeDescriptor
	byName map[string]*model.ExchangeDescriptor
}

// LoadDescriptors reads and indexes the descriptor table from path.
func LoadDescriptors(path string) (*Descriptors, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read descriptors %s: %w", path, err)
	}

	var d Descriptors
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("config: unmarshal descriptors: %w", err)
	}
	d.index()
	return &d, nil
}

func (d *Descriptors) index() {
	d.byID = make(map[string]*model.ExchangeDescriptor, len(d.Exchanges))
	d.byName = make(map[string]*model.ExchangeDescriptor, len(d.Exchanges))
	for i := range d.Exchanges {
		e := &d.Exchanges[i]
		d.byID[e.ID] = e
		d.byName[e.Name] = e
	}
}

// ByID looks up an exchange descriptor by its stable id.
func (d *Descriptors) ByID(id string) (model.ExchangeDescriptor, bool) {
	e, ok := d.byID[id]
	if !ok {
		return model.ExchangeDescriptor{}, false
	}
	return *e, true
}

// ByName looks up an exchange descriptor by its short name (e.g. "coinbase").
func (d *Descriptors) ByName(name string) (model.ExchangeDescriptor, bool) {
	e, ok := d.byName[name]
	if !ok {
		return model.ExchangeDescriptor{}, false
	}
	return *e, true
}

// Active returns every descriptor with IsActive set.
func (d *Descriptors) Active() []model.ExchangeDescriptor {
	out := make([]model.ExchangeDescriptor, 0, len(d.Exchanges))
	for _, e := range d.Exchanges {
		if e.IsActive {
			out = append(out, e)
		}
	}
	return out
}

// ClassifyTier1 returns the tier-1 symbols configured for an exchange —
// those not scoped to a specific user and not excluded.
func (d *Descriptors) ClassifyTier1(exchangeID string) []string {
	out := make([]string, 0, len(d.Symbols))
	for _, s := range d.Symbols {
		if s.ExchangeID == exchangeID && s.Tier == model.TierShared {
			out = append(out, s.Symbol)
		}
	}
	return out
}

// Default returns a minimal in-memory descriptor table used when no YAML
// file is present (e.g. local development), covering Coinbase and Binance
// with their public market-data endpoints.
func Default() *Descriptors {
	d := &Descriptors{
		Exchanges: []model.ExchangeDescriptor{
			{
				ID: "1", Name: "coinbase", DisplayName: "Coinbase Advanced Trade",
				WSURL:   "wss://advanced-trade-ws.coinbase.com",
				RESTURL: "https://api.coinbase.com",
				SupportedTimeframes: []string{"1m", "5m", "15m", "1h", "4h", "1d"},
				APILimits: model.APILimits{MaxMessagesPerSecond: 10, MaxSubscriptions: 50},
				IsActive:  true,
			},
			{
				ID: "2", Name: "binance", DisplayName: "Binance Spot",
				WSURL:   "wss://stream.binance.com:9443",
				RESTURL: "https://api.binance.com",
				SupportedTimeframes: []string{"1m", "5m", "15m", "1h", "4h", "1d"},
				APILimits: model.APILimits{MaxMessagesPerSecond: 20, MaxSubscriptions: 200},
				IsActive:  true,
			},
		},
		Symbols: []model.ClassifiedSymbol{
			{Symbol: "BTC-USD", Tier: model.TierShared, ExchangeID: "1"},
			{Symbol: "ETH-USD", Tier: model.TierShared, ExchangeID: "1"},
			{Symbol: "BTCUSDT", Tier: model.TierShared, ExchangeID: "2"},
			{Symbol: "ETHUSDT", Tier: model.TierShared, ExchangeID: "2"},
		},
	}
	d.index()
	return d
}
