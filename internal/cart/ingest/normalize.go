// Package ingest turns raw storefront orders into cart drafts. It performs no I/O.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"gorm.io/datatypes"
)

const (
	DefaultPlaceholder    = "Customer"
	DefaultCartURLPattern = "https://%s.mysalla.com/cart"
	DefaultCurrency       = "SAR"
)

type Normalizer struct {
	// Placeholder is the customer name used when the order carries none.
	Placeholder string
	// CartURLPattern receives the store subdomain through a single %s verb.
	CartURLPattern string
}

func (n Normalizer) Normalize(tenantID string, order storefrontdomain.Order) (cartdomain.Draft, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return cartdomain.Draft{}, cartdomain.ErrInvalidTenant
	}
	externalID := strings.TrimSpace(order.ID.String())
	if externalID == "" {
		return cartdomain.Draft{}, cartdomain.ErrMissingExternalID
	}

	total, currency := amount(order)

	return cartdomain.Draft{
		TenantID:       tenantID,
		ExternalCartID: externalID,
		CustomerName:   n.customerName(order),
		CustomerPhone:  phone(order),
		CustomerEmail:  email(order),
		CartURL:        n.cartURL(order),
		TotalAmount:    total,
		Currency:       currency,
		Items:          items(order.Items),
		Status:         cartdomain.StatusPending,
	}, nil
}

func (n Normalizer) customerName(order storefrontdomain.Order) string {
	if c := order.Customer; c != nil {
		name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
		if name != "" {
			return name
		}
	}
	if addr := shippingAddress(order); addr != nil {
		if name := strings.TrimSpace(addr.Name); name != "" {
			return name
		}
	}
	if p := strings.TrimSpace(n.Placeholder); p != "" {
		return p
	}
	return DefaultPlaceholder
}

func phone(order storefrontdomain.Order) *string {
	if c := order.Customer; c != nil {
		mobile := strings.TrimSpace(c.Mobile.String())
		if mobile != "" {
			code := strings.TrimSpace(c.MobileCode.String())
			if code != "" && !strings.HasPrefix(mobile, code) && !strings.HasPrefix(mobile, "+") {
				mobile = code + mobile
			}
			return &mobile
		}
	}
	if addr := shippingAddress(order); addr != nil {
		if p := strings.TrimSpace(addr.Phone.String()); p != "" {
			return &p
		}
	}
	return nil
}

func email(order storefrontdomain.Order) *string {
	if c := order.Customer; c != nil {
		if e := strings.TrimSpace(c.Email); e != "" {
			return &e
		}
	}
	return nil
}

func (n Normalizer) cartURL(order storefrontdomain.Order) string {
	if u := strings.TrimSpace(order.URL); u != "" {
		return u
	}
	subdomain := strings.TrimSpace(order.StoreSubdomain)
	if subdomain == "" {
		return ""
	}
	pattern := n.CartURLPattern
	if !strings.Contains(pattern, "%s") {
		pattern = DefaultCartURLPattern
	}
	return fmt.Sprintf(pattern, subdomain)
}

func amount(order storefrontdomain.Order) (int64, string) {
	var (
		total    int64
		currency = strings.TrimSpace(order.Currency)
	)
	if order.Amounts != nil && order.Amounts.Total != nil {
		if v, ok := order.Amounts.Total.Amount.Float(); ok {
			if minor, ok := cartdomain.ToMinor(v); ok {
				total = minor
			}
		}
		if currency == "" {
			currency = strings.TrimSpace(order.Amounts.Total.Currency)
		}
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return total, strings.ToUpper(currency)
}

func items(raw json.RawMessage) datatypes.JSON {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return datatypes.JSON("[]")
	}
	out := make([]byte, len(trimmed))
	copy(out, trimmed)
	return datatypes.JSON(out)
}

func shippingAddress(order storefrontdomain.Order) *storefrontdomain.ShippingAddress {
	if order.Shipping == nil {
		return nil
	}
	return order.Shipping.Address
}
