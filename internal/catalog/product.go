// Package catalog exposes the product catalog resource over the gateway.
package catalog

import (
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sockrest/internal/errors"
	"sockrest/internal/resource"
	"sockrest/internal/store"
)

// Product is a catalog entry. Prices are exact decimals, serialized as
// strings on the wire.
type Product struct {
	ID    uint64          `gorm:"primaryKey" json:"id"`
	SKU   string          `gorm:"size:64;uniqueIndex" json:"sku"`
	Name  string          `gorm:"size:200" json:"name"`
	Price decimal.Decimal `gorm:"type:numeric" json:"price"`
}

// Serializer validates product payloads. SKU and name are required on
// create and full update; price must not be negative.
type Serializer struct{}

type productInput struct {
	SKU   *string          `json:"sku" validate:"omitempty,min=1,max=64"`
	Name  *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Price *decimal.Decimal `json:"price"`
}

// Apply implements resource.Serializer.
func (Serializer) Apply(data []byte, dst *Product, partial bool) error {
	if len(data) == 0 {
		data = []byte("{}")
	}
	var in productInput
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Invalid("data", "Invalid JSON payload.")
	}

	var errs errors.ValidationErrors
	if !partial {
		if in.SKU == nil {
			errs = append(errs, errors.ValidationError{Field: "sku", Message: "This field is required."})
		}
		if in.Name == nil {
			errs = append(errs, errors.ValidationError{Field: "name", Message: "This field is required."})
		}
	}
	if in.Price != nil && in.Price.IsNegative() {
		errs = append(errs, errors.ValidationError{Field: "price", Message: "Ensure this value is greater than or equal to 0."})
	}
	if err := resource.ValidateStruct(&in); err != nil {
		var verrs errors.ValidationErrors
		if !errors.AsValidation(err, &verrs) {
			return err
		}
		errs = append(errs, verrs...)
	}
	if len(errs) > 0 {
		return errs
	}

	if in.SKU != nil {
		dst.SKU = *in.SKU
	}
	if in.Name != nil {
		dst.Name = *in.Name
	}
	if in.Price != nil {
		dst.Price = *in.Price
	}
	return nil
}

// Serialize implements resource.Serializer.
func (Serializer) Serialize(p *Product) any {
	return map[string]any{
		"id":    p.ID,
		"sku":   p.SKU,
		"name":  p.Name,
		"price": p.Price,
	}
}

// PrimaryKey implements resource.Serializer.
func (Serializer) PrimaryKey(p *Product) uint64 {
	return p.ID
}

// NewResource builds the products resource.
func NewResource(db *gorm.DB, opts ...resource.Option[Product]) *resource.Resource[Product] {
	repo := store.NewRepository[Product](db)
	return resource.New[Product]("products", repo, Serializer{}, opts...)
}
