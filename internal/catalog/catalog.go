// Package catalog reads the product catalog used to bootstrap a fresh store.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/th2484/ziplineordersystem/internal/fulfillment"
	"github.com/th2484/ziplineordersystem/internal/model"
	"github.com/th2484/ziplineordersystem/internal/obs"
)

// productID accepts either a JSON string or a JSON integer.
type productID string

func (p *productID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = productID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("product_id must be a string or integer: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		return fmt.Errorf("product_id %s is not an integer", n)
	}
	*p = productID(n.String())
	return nil
}

type entry struct {
	ProductID   *productID `json:"product_id"`
	ProductName string     `json:"product_name"`
	MassG       *int       `json:"mass_g"`
}

// Parse decodes a JSON array of catalog entries. Every entry needs a
// product_id and a mass_g; unknown fields are rejected.
func Parse(r io.Reader) ([]model.CatalogEntry, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var raw []entry
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode catalog: %w: %w", fulfillment.ErrConfiguration, err)
	}
	out := make([]model.CatalogEntry, 0, len(raw))
	for i, e := range raw {
		if e.ProductID == nil || *e.ProductID == "" {
			return nil, fmt.Errorf("catalog entry %d: missing product_id: %w", i, fulfillment.ErrConfiguration)
		}
		if e.MassG == nil {
			return nil, fmt.Errorf("catalog entry %q: missing mass_g: %w", *e.ProductID, fulfillment.ErrConfiguration)
		}
		out = append(out, model.CatalogEntry{
			ProductID:   string(*e.ProductID),
			ProductName: e.ProductName,
			MassG:       *e.MassG,
		})
	}
	return out, nil
}

// Load reads and parses the catalog file at path.
func Load(path string) ([]model.CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w: %w", fulfillment.ErrConfiguration, err)
	}
	defer f.Close()
	return Parse(f)
}

// Initializer is the part of the engine a bootstrap needs.
type Initializer interface {
	InitCatalog(ctx context.Context, entries []model.CatalogEntry) error
}

// Bootstrap loads the catalog at path and creates its products with empty
// inventory. An empty path is a no-op.
func Bootstrap(ctx context.Context, init Initializer, path string) error {
	if path == "" {
		return nil
	}
	entries, err := Load(path)
	if err != nil {
		return err
	}
	if err := init.InitCatalog(ctx, entries); err != nil {
		return err
	}
	obs.Logger.Infow("catalog_loaded", "path", path, "products", len(entries))
	return nil
}
