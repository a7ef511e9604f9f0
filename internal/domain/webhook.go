package domain

import "encoding/json"

// InboundOrder mirrors the storefront platform's order webhook payload. Only
// the fields the ingestion pipeline reads are modelled; the full raw body is
// retained separately as an opaque snapshot. Several fields overlap because
// storefront themes disagree about where customer notes and names live.
type InboundOrder struct {
	ID          int64  `json:"id"`
	OrderNumber int64  `json:"order_number"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Currency    string `json:"currency"`
	CreatedAt   string `json:"created_at"`

	Note          string                 `json:"note"`
	CustomerNote  string                 `json:"customer_note"`
	OrderNote     string                 `json:"order_note"`
	NoteAttribute string                 `json:"note_attribute"`
	Attributes    []InboundNoteAttribute `json:"note_attributes"`

	Customer        *InboundCustomer `json:"customer"`
	BillingAddress  *InboundAddress  `json:"billing_address"`
	ShippingAddress *InboundAddress  `json:"shipping_address"`

	LineItems []InboundLineItem `json:"line_items"`
}

// InboundNoteAttribute is a free-form name/value attribute on the order.
type InboundNoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// InboundCustomer is the optional nested customer object.
type InboundCustomer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Note      string `json:"note"`
}

// InboundAddress is a storefront address block.
type InboundAddress struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2"`
	City      string `json:"city"`
	Province  string `json:"province"`
	Zip       string `json:"zip"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

// InboundLineItem is one purchasable row of the webhook payload.
type InboundLineItem struct {
	SKU          string                `json:"sku"`
	Title        string                `json:"title"`
	VariantTitle string                `json:"variant_title"`
	Quantity     int                   `json:"quantity"`
	Price        string                `json:"price"`
	Properties   []InboundItemProperty `json:"properties"`
}

// InboundItemProperty is a raw name/value pair from the product form. Values
// occasionally arrive as numbers, so they are decoded leniently.
type InboundItemProperty struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ValueString renders the property value as a plain string regardless of the
// JSON type the storefront emitted.
func (p InboundItemProperty) ValueString() string {
	if len(p.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Value, &s); err == nil {
		return s
	}
	// Numeric or boolean values: use the raw token.
	return string(p.Value)
}
