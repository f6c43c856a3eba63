package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Connection links a tenant to one storefront store and holds its OAuth credentials.
type Connection struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID       string       `gorm:"not null;index" json:"tenant_id"`
	StoreID        string       `gorm:"not null;uniqueIndex" json:"store_id"`
	StoreName      string       `gorm:"not null;default:''" json:"store_name"`
	AccessToken    string       `gorm:"not null" json:"-"`
	RefreshToken   string       `gorm:"not null" json:"-"`
	TokenExpiresAt *time.Time   `json:"token_expires_at,omitempty"`
	IsActive       bool         `gorm:"not null;default:true;index" json:"is_active"`
	LastSyncAt     *time.Time   `json:"last_sync_at,omitempty"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (Connection) TableName() string { return "storefront_connections" }

// Tenant is a merchant account. Ids are ULIDs so they sort by creation time.
type Tenant struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     *string   `gorm:"uniqueIndex" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Tenant) TableName() string { return "tenants" }

// Tokens is the OAuth token response of the storefront.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExpiresAt returns now+expires_in, or nil when the storefront did not report a lifetime.
func (t Tokens) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	return &at
}

type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// FlexString decodes a JSON string or number into its textual form.
// The storefront is inconsistent about ids and phone numbers.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// Float parses the value as a finite decimal number.
func (f FlexString) Float() (float64, bool) {
	s := strings.TrimSpace(string(f))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Order is a raw pending order as returned by the storefront.
type Order struct {
	ID             FlexString      `json:"id"`
	URL            string          `json:"url"`
	Currency       string          `json:"currency"`
	StoreSubdomain string          `json:"store_subdomain"`
	Customer       *OrderCustomer  `json:"customer"`
	Shipping       *OrderShipping  `json:"shipping"`
	Amounts        *OrderAmounts   `json:"amounts"`
	Items          json.RawMessage `json:"items"`
}

type OrderCustomer struct {
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Mobile     FlexString `json:"mobile"`
	MobileCode FlexString `json:"mobile_code"`
	Email      string     `json:"email"`
}

type OrderShipping struct {
	Address *ShippingAddress `json:"address"`
}

type ShippingAddress struct {
	Name  string     `json:"name"`
	Phone FlexString `json:"phone"`
}

type OrderAmounts struct {
	Total *Money `json:"total"`
}

type Money struct {
	Amount   FlexString `json:"amount"`
	Currency string     `json:"currency"`
}

type Pagination struct {
	Count       int `json:"count"`
	Total       int `json:"total"`
	PerPage     int `json:"perPage"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// HasMore reports whether the envelope says more pages follow.
// A missing envelope is treated as "unknown" and returns true.
func (p *Pagination) HasMore() bool {
	if p == nil || p.TotalPages == 0 {
		return true
	}
	return p.CurrentPage < p.TotalPages
}

type OrderPage struct {
	Orders     []Order     `json:"data"`
	Pagination *Pagination `json:"pagination"`
}

type StoreInfo struct {
	ID     FlexString `json:"id"`
	Name   string     `json:"name"`
	Domain string     `json:"domain"`
	Email  string     `json:"email"`
}
