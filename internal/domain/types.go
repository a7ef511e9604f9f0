package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items     []T
	NextToken string
}

// DimensionLetter identifies one of the fixed measurement points on a custom mattress.
type DimensionLetter string

// ExpectedDimensions is the fixed set of measurement points every custom
// product design expects, in canonical order.
var ExpectedDimensions = []DimensionLetter{"A", "B", "C", "D", "E", "F", "G"}

// MeasurementUnit is the unit a dimension value was captured in.
type MeasurementUnit string

const (
	// UnitCentimetres is the default capture unit.
	UnitCentimetres MeasurementUnit = "cm"
	// UnitMillimetres is used by a handful of storefront templates.
	UnitMillimetres MeasurementUnit = "mm"
	// UnitInches is used by the marine storefronts.
	UnitInches MeasurementUnit = "in"
)

// DimensionMeasurement is a single customer-provided measurement. Absence of a
// letter is a valid, trackable state rather than an error.
type DimensionMeasurement struct {
	Letter DimensionLetter `json:"letter"`
	Value  string          `json:"value"`
	Unit   MeasurementUnit `json:"unit"`
}

// MeasurementOption classifies how the customer chose to supply measurements.
type MeasurementOption string

const (
	// MeasurementOptionProvided means dimensions arrived with the order.
	MeasurementOptionProvided MeasurementOption = "option1"
	// MeasurementOptionSendLater means the customer will send measurements afterwards.
	MeasurementOptionSendLater MeasurementOption = "option2"
	// MeasurementOptionKit means a measuring kit is being posted to the customer.
	MeasurementOptionKit MeasurementOption = "option3"
)

// MeasurementStatus summarises which expected dimensions were provided.
//
// Invariants: Provided and Missing are disjoint, their union covers
// ExpectedDimensions, and Complete holds iff Missing is empty and Provided is
// not.
type MeasurementStatus struct {
	Provided []DimensionLetter `json:"provided"`
	Missing  []DimensionLetter `json:"missing"`
	Complete bool              `json:"complete"`
	Option   MeasurementOption `json:"option"`
}

// LinkAttachment enumerates the recognised mattress link-attachment styles.
type LinkAttachment string

const (
	// LinkAttachmentZip joins mattress sections with a zip.
	LinkAttachmentZip LinkAttachment = "Zip Link"
	// LinkAttachmentClip joins mattress sections with clips.
	LinkAttachmentClip LinkAttachment = "Clip Link"
	// LinkAttachmentNone leaves sections unjoined.
	LinkAttachmentNone LinkAttachment = "No Link"
)

// DefaultDeliveryOption applies when no explicit delivery property is present.
const DefaultDeliveryOption = "Rolled and Boxed"

// ManufacturingOptions carries production choices derived from the variant
// title and explicit line-item properties.
type ManufacturingOptions struct {
	LinkAttachment *LinkAttachment `json:"link_attachment"`
	DeliveryOption string          `json:"delivery_option"`
}

// Address is a normalized postal address shared by billing and shipping.
type Address struct {
	Name     string `json:"name,omitempty"`
	Company  string `json:"company,omitempty"`
	Line1    string `json:"line1,omitempty"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Country  string `json:"country,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Customer is the canonical customer identity derived once per inbound order
// and shared across every resulting sub-order.
type Customer struct {
	Name            string   `json:"name"`
	Email           string   `json:"email,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	BillingAddress  *Address `json:"billing_address,omitempty"`
	ShippingAddress *Address `json:"shipping_address,omitempty"`
}

// LineItemProperty is a free-form name/value pair attached to a line item by
// the storefront's product form.
type LineItemProperty struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LineItem is a single purchasable row of an inbound order.
type LineItem struct {
	SKU          string             `json:"sku"`
	Title        string             `json:"title"`
	VariantTitle string             `json:"variant_title,omitempty"`
	Quantity     int                `json:"quantity"`
	Price        string             `json:"price,omitempty"`
	Properties   []LineItemProperty `json:"properties,omitempty"`
}

// ProcessingStatus tracks where a sub-order sits in the review workflow.
type ProcessingStatus string

const (
	// ProcessingStatusReceived is the initial state after ingestion.
	ProcessingStatusReceived ProcessingStatus = "received"
	// ProcessingStatusProcessed marks sub-orders completed by the review team.
	ProcessingStatusProcessed ProcessingStatus = "processed"
)

// SupplierKey identifies a configured fulfilment supplier.
type SupplierKey string

// Supplier is a configured fulfilment supplier. The registry is read-only
// during ingestion; keyword lists are matched in declaration order.
type Supplier struct {
	Key         SupplierKey `json:"key"`
	DisplayName string      `json:"display_name"`
	SheetID     string      `json:"sheet_id"`
	SKUKeywords []string    `json:"sku_keywords"`
}

// MattressLabel is the product family printed on manufacturing paperwork,
// derived from the originating store.
type MattressLabel string

const (
	// LabelCaravan covers the caravan and motorhome storefronts.
	LabelCaravan MattressLabel = "Caravan Mattress"
	// LabelBoat covers the marine storefronts.
	LabelBoat MattressLabel = "Boat Mattress"
	// LabelHome covers the bespoke home storefront.
	LabelHome MattressLabel = "Home Mattress"
)

// SubOrder is the persisted record derived from a single line item of an
// inbound order. One inbound order with N line items yields exactly N
// sub-orders, each independently trackable.
type SubOrder struct {
	ID             string `json:"id"`
	OriginOrderID  string `json:"origin_order_id"`
	SubOrderID     string `json:"sub_order_id"`
	SubOrderNumber string `json:"sub_order_number"`
	StoreDomain    string `json:"store_domain"`

	Customer             Customer               `json:"customer"`
	LineItem             LineItem               `json:"line_item"`
	Measurements         []DimensionMeasurement `json:"measurements"`
	MeasurementStatus    MeasurementStatus      `json:"measurement_status"`
	ManufacturingOptions ManufacturingOptions   `json:"manufacturing_options"`

	SupplierKey  *SupplierKey `json:"supplier_key,omitempty"`
	SupplierName *string      `json:"supplier_name,omitempty"`

	Notes         string         `json:"notes,omitempty"`
	MattressLabel *MattressLabel `json:"mattress_label,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`

	SheetsSynced   bool       `json:"sheets_synced"`
	SheetsSyncedAt *time.Time `json:"sheets_synced_at,omitempty"`
	SheetsRange    *string    `json:"sheets_range,omitempty"`

	EmailSent bool `json:"email_sent"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSupplier reports whether ingestion resolved a supplier for this sub-order.
func (o SubOrder) HasSupplier() bool {
	return o.SupplierKey != nil && *o.SupplierKey != ""
}

// ProductMapping is a per-SKU supplier hint maintained by the admin screens
// and consulted during extraction.
type ProductMapping struct {
	SKU          string      `json:"sku"`
	SupplierKey  SupplierKey `json:"supplier_key"`
	ProductTitle string      `json:"product_title,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Store is a registered webhook origin: one storefront domain with its own
// shared secret and order-number prefix.
type Store struct {
	Domain       string `json:"domain"`
	DisplayName  string `json:"display_name"`
	OrderPrefix  string `json:"order_prefix"`
	SharedSecret string `json:"-"`
}
