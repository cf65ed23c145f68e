package salesstub

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/angelmondragon/packfinderz-pos/internal/pricing"
	"github.com/angelmondragon/packfinderz-pos/internal/stockplan"
	"github.com/shopspring/decimal"
)

// PackLot is a run of sealed packs of one size.
type PackLot struct {
	SourceID     string `json:"sourceId"`
	UnitsPerPack int    `json:"unitsPerPack"`
	Packs        int    `json:"packs"`
}

// StockItem is what the stub believes is on hand for one product.
type StockItem struct {
	ProductID    string    `json:"productId"`
	Packs        []PackLot `json:"packs,omitempty"`
	BulkSourceID string    `json:"bulkSourceId,omitempty"`
	BulkUnits    int       `json:"bulkUnits"`
}

// Fixtures is the canned data the stub serves.
type Fixtures struct {
	Promotions []pricing.Promotion `json:"promotions"`
	Stock      []StockItem         `json:"stock"`
}

// DefaultFixtures is used when no fixture file is configured.
func DefaultFixtures() Fixtures {
	return Fixtures{
		Promotions: []pricing.Promotion{
			pricing.QuantityTier("tier-10", 10, decimal.NewFromInt(10)),
			pricing.BonusUnits("soda-3x2", 3, 1).ForCategory("beverages"),
			pricing.OrderThreshold("order-100", decimal.NewFromInt(100), decimal.NewFromInt(5)),
		},
		Stock: []StockItem{
			{
				ProductID:    "rice-5kg",
				Packs:        []PackLot{{SourceID: "rice-5kg-pack-6", UnitsPerPack: 6, Packs: 10}},
				BulkSourceID: "rice-5kg-bulk",
				BulkUnits:    20,
			},
			{
				ProductID:    "soda-350ml",
				Packs:        []PackLot{{SourceID: "soda-350ml-pack-24", UnitsPerPack: 24, Packs: 5}},
				BulkSourceID: "soda-350ml-bulk",
				BulkUnits:    30,
			},
		},
	}
}

// LoadFixtures reads fixtures from a JSON file.
func LoadFixtures(path string) (Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	var f Fixtures
	if err := json.Unmarshal(raw, &f); err != nil {
		return Fixtures{}, fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	if f.Promotions == nil {
		f.Promotions = []pricing.Promotion{}
	}
	return f, nil
}

func (f Fixtures) stockFor(productID string) (StockItem, bool) {
	for _, item := range f.Stock {
		if item.ProductID == productID {
			return item, true
		}
	}
	return StockItem{}, false
}

// plan takes whole sealed packs while they fit and covers the remainder from
// bulk. It reports false when the product cannot cover the quantity.
func (item StockItem) plan(quantity int) (*stockplan.Plan, bool) {
	remaining := quantity
	steps := []stockplan.Step{}
	for _, lot := range item.Packs {
		if lot.UnitsPerPack <= 0 || lot.Packs <= 0 || remaining < lot.UnitsPerPack {
			continue
		}
		packs := min(remaining/lot.UnitsPerPack, lot.Packs)
		units := packs * lot.UnitsPerPack
		steps = append(steps, stockplan.Step{
			SourceID:     lot.SourceID,
			Kind:         "pack",
			Units:        units,
			UnitsPerPack: lot.UnitsPerPack,
		})
		remaining -= units
	}
	if remaining > 0 {
		if remaining > item.BulkUnits {
			return nil, false
		}
		source := item.BulkSourceID
		if source == "" {
			source = item.ProductID + "-bulk"
		}
		steps = append(steps, stockplan.Step{SourceID: source, Kind: "bulk", Units: remaining})
	}
	return &stockplan.Plan{ProductID: item.ProductID, Quantity: quantity, Steps: steps}, true
}
