package services

import (
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/caravanmattress/orders-api/internal/domain"
)

// guestCustomerName is used when no variant of the payload carries a name.
const guestCustomerName = "Guest Customer"

// Normalizer derives the canonical order shape from the storefront payload.
// Storefront themes disagree about where names and notes live, so every known
// location is probed in a fixed priority order.
type Normalizer struct {
	sanitizer *bluemonday.Policy
}

// NewNormalizer constructs a Normalizer. Customer notes pass through a strict
// HTML sanitiser because they end up on manufacturing paperwork verbatim.
func NewNormalizer() *Normalizer {
	return &Normalizer{sanitizer: bluemonday.StrictPolicy()}
}

// Normalize extracts customer identity, notes, and order metadata from the
// inbound payload for the given store.
func (n *Normalizer) Normalize(order domain.InboundOrder, store domain.Store) NormalizedOrder {
	return NormalizedOrder{
		OrderID:       strconv.FormatInt(order.ID, 10),
		OrderNumber:   deriveOrderNumber(order, store),
		Customer:      n.normalizeCustomer(order),
		Note:          n.resolveNote(order),
		MattressLabel: deriveMattressLabel(store.Domain),
		LineItems:     order.LineItems,
	}
}

func deriveOrderNumber(order domain.InboundOrder, store domain.Store) string {
	raw := strings.TrimSpace(order.Name)
	if raw == "" && order.OrderNumber != 0 {
		raw = strconv.FormatInt(order.OrderNumber, 10)
	}
	if raw == "" {
		raw = strconv.FormatInt(order.ID, 10)
	}

	prefix := strings.TrimSpace(store.OrderPrefix)
	if prefix == "" || strings.HasPrefix(raw, prefix) {
		return raw
	}
	return prefix + strings.TrimPrefix(raw, "#")
}

func (n *Normalizer) normalizeCustomer(order domain.InboundOrder) domain.Customer {
	customer := domain.Customer{
		Name:  resolveCustomerName(order),
		Email: strings.TrimSpace(order.Email),
		Phone: strings.TrimSpace(order.Phone),
	}

	if customer.Email == "" && order.Customer != nil {
		customer.Email = strings.TrimSpace(order.Customer.Email)
	}
	if customer.Phone == "" && order.Customer != nil {
		customer.Phone = strings.TrimSpace(order.Customer.Phone)
	}

	if order.BillingAddress != nil {
		customer.BillingAddress = normalizeAddress(*order.BillingAddress)
		if customer.Phone == "" {
			customer.Phone = strings.TrimSpace(order.BillingAddress.Phone)
		}
	}
	if order.ShippingAddress != nil {
		customer.ShippingAddress = normalizeAddress(*order.ShippingAddress)
		if customer.Phone == "" {
			customer.Phone = strings.TrimSpace(order.ShippingAddress.Phone)
		}
	}

	return customer
}

// resolveCustomerName probes name sources in fixed priority order: the
// billing address, then the customer object, then the shipping address.
func resolveCustomerName(order domain.InboundOrder) string {
	if order.BillingAddress != nil {
		if name := addressName(*order.BillingAddress); name != "" {
			return name
		}
	}
	if order.Customer != nil {
		if name := joinName(order.Customer.FirstName, order.Customer.LastName); name != "" {
			return name
		}
	}
	if order.ShippingAddress != nil {
		if name := addressName(*order.ShippingAddress); name != "" {
			return name
		}
	}
	return guestCustomerName
}

func addressName(addr domain.InboundAddress) string {
	if name := strings.TrimSpace(addr.Name); name != "" {
		return name
	}
	return joinName(addr.FirstName, addr.LastName)
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// resolveNote returns the first non-empty note found across every location a
// storefront theme is known to put one.
func (n *Normalizer) resolveNote(order domain.InboundOrder) string {
	candidates := []string{
		order.Note,
		order.CustomerNote,
		order.OrderNote,
		order.NoteAttribute,
	}
	if order.Customer != nil {
		candidates = append(candidates, order.Customer.Note)
	}
	for _, candidate := range candidates {
		if note := n.cleanNote(candidate); note != "" {
			return note
		}
	}
	for _, attr := range order.Attributes {
		if !strings.Contains(strings.ToLower(attr.Name), "note") {
			continue
		}
		if note := n.cleanNote(attr.Value); note != "" {
			return note
		}
	}
	return ""
}

func (n *Normalizer) cleanNote(raw string) string {
	return strings.TrimSpace(n.sanitizer.Sanitize(raw))
}

func normalizeAddress(addr domain.InboundAddress) *domain.Address {
	normalized := domain.Address{
		Name:     addressName(addr),
		Company:  strings.TrimSpace(addr.Company),
		Line1:    strings.TrimSpace(addr.Address1),
		Line2:    strings.TrimSpace(addr.Address2),
		City:     strings.TrimSpace(addr.City),
		Province: strings.TrimSpace(addr.Province),
		Zip:      strings.TrimSpace(addr.Zip),
		Country:  strings.TrimSpace(addr.Country),
		Phone:    strings.TrimSpace(addr.Phone),
	}
	if normalized == (domain.Address{}) {
		return nil
	}
	return &normalized
}

// deriveMattressLabel maps the origin domain onto the product family printed
// on manufacturing paperwork. Unrecognised domains yield no label rather than
// a fabricated default.
func deriveMattressLabel(storeDomain string) *domain.MattressLabel {
	lowered := strings.ToLower(storeDomain)
	var label domain.MattressLabel
	switch {
	case strings.Contains(lowered, "caravan"), strings.Contains(lowered, "motorhome"):
		label = domain.LabelCaravan
	case strings.Contains(lowered, "boat"), strings.Contains(lowered, "marine"):
		label = domain.LabelBoat
	case strings.Contains(lowered, "home"), strings.Contains(lowered, "bespoke"):
		label = domain.LabelHome
	default:
		return nil
	}
	return &label
}
