package services

import (
	"encoding/json"
	"testing"

	"github.com/caravanmattress/orders-api/internal/domain"
)

func prop(name, value string) domain.InboundItemProperty {
	raw, _ := json.Marshal(value)
	return domain.InboundItemProperty{Name: name, Value: raw}
}

func TestExtractMeasurementCompleteness(t *testing.T) {
	extractor := NewExtractor()

	got := extractor.Extract(domain.InboundLineItem{
		Properties: []domain.InboundItemProperty{
			prop("Enter Dimension A (cm)", "100"),
			prop("Enter Dimension B (cm)", ""),
		},
	})

	if len(got.Measurements) != 1 || got.Measurements[0].Letter != "A" {
		t.Fatalf("measurements %+v, want only A", got.Measurements)
	}
	if got.Measurements[0].Unit != domain.UnitCentimetres {
		t.Fatalf("unit %q, want cm", got.Measurements[0].Unit)
	}

	wantMissing := []domain.DimensionLetter{"B", "C", "D", "E", "F", "G"}
	if len(got.Status.Provided) != 1 || got.Status.Provided[0] != "A" {
		t.Fatalf("provided %v", got.Status.Provided)
	}
	if len(got.Status.Missing) != len(wantMissing) {
		t.Fatalf("missing %v, want %v", got.Status.Missing, wantMissing)
	}
	for i, letter := range wantMissing {
		if got.Status.Missing[i] != letter {
			t.Fatalf("missing %v, want %v", got.Status.Missing, wantMissing)
		}
	}
	if got.Status.Complete {
		t.Fatal("status must not be complete")
	}
	if got.Status.Option != domain.MeasurementOptionProvided {
		t.Fatalf("option %q, want option1 when any dimension provided", got.Status.Option)
	}
}

func TestExtractNameVariantsAndUnits(t *testing.T) {
	extractor := NewExtractor()

	got := extractor.Extract(domain.InboundLineItem{
		Properties: []domain.InboundItemProperty{
			prop("Dimension A", "90"),
			prop("dimension b (mm)", "905"),
			prop("Enter Dimension C (inches)", "36"),
			prop("Enter Dimension D (in)", "40"),
			prop("Colour", "Blue"),
		},
	})

	if len(got.Measurements) != 4 {
		t.Fatalf("measurements %+v, want 4", got.Measurements)
	}
	wantUnits := map[domain.DimensionLetter]domain.MeasurementUnit{
		"A": domain.UnitCentimetres,
		"B": domain.UnitMillimetres,
		"C": domain.UnitInches,
		"D": domain.UnitInches,
	}
	for _, m := range got.Measurements {
		if wantUnits[m.Letter] != m.Unit {
			t.Fatalf("letter %s unit %q, want %q", m.Letter, m.Unit, wantUnits[m.Letter])
		}
	}
}

func TestExtractNumericPropertyValue(t *testing.T) {
	extractor := NewExtractor()

	got := extractor.Extract(domain.InboundLineItem{
		Properties: []domain.InboundItemProperty{
			{Name: "Dimension A", Value: json.RawMessage(`100`)},
		},
	})
	if len(got.Measurements) != 1 || got.Measurements[0].Value != "100" {
		t.Fatalf("measurements %+v, want numeric value decoded", got.Measurements)
	}
}

func TestExtractNoPropertiesDefaults(t *testing.T) {
	extractor := NewExtractor()

	got := extractor.Extract(domain.InboundLineItem{})

	if len(got.Status.Provided) != 0 {
		t.Fatalf("provided %v, want empty", got.Status.Provided)
	}
	if len(got.Status.Missing) != len(domain.ExpectedDimensions) {
		t.Fatalf("missing %v, want all letters", got.Status.Missing)
	}
	if got.Status.Complete {
		t.Fatal("must not be complete")
	}
	if got.Status.Option != domain.MeasurementOptionSendLater {
		t.Fatalf("option %q, want option2 default", got.Status.Option)
	}
	if got.ManufacturingOptions.DeliveryOption != domain.DefaultDeliveryOption {
		t.Fatalf("delivery %q, want default", got.ManufacturingOptions.DeliveryOption)
	}
}

func TestExtractOptionClassification(t *testing.T) {
	extractor := NewExtractor()

	cases := []struct {
		value string
		want  domain.MeasurementOption
	}{
		{"I will send them later", domain.MeasurementOptionSendLater},
		{"Please send a measuring kit", domain.MeasurementOptionKit},
		{"kit please", domain.MeasurementOptionKit},
		{"unsure", domain.MeasurementOptionSendLater},
	}
	for _, tc := range cases {
		got := extractor.Extract(domain.InboundLineItem{
			Properties: []domain.InboundItemProperty{
				prop("Measurement Option", tc.value),
			},
		})
		if got.Status.Option != tc.want {
			t.Fatalf("value %q: option %q, want %q", tc.value, got.Status.Option, tc.want)
		}
	}
}

func TestExtractDeliveryOverride(t *testing.T) {
	extractor := NewExtractor()

	got := extractor.Extract(domain.InboundLineItem{
		Properties: []domain.InboundItemProperty{
			prop("Delivery", "Flat Packed"),
		},
	})
	if got.ManufacturingOptions.DeliveryOption != "Flat Packed" {
		t.Fatalf("delivery %q, want explicit override", got.ManufacturingOptions.DeliveryOption)
	}
}

func TestExtractLinkAttachmentFromVariant(t *testing.T) {
	extractor := NewExtractor()

	cases := []struct {
		variant string
		want    *domain.LinkAttachment
	}{
		{"6ft / Firm / Zip Link", linkPtr(domain.LinkAttachmentZip)},
		{"6ft / Firm / clip link", linkPtr(domain.LinkAttachmentClip)},
		{"6ft / Firm / No Link", linkPtr(domain.LinkAttachmentNone)},
		{"6ft / Firm / Memory Foam", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := extractor.Extract(domain.InboundLineItem{VariantTitle: tc.variant})
		attachment := got.ManufacturingOptions.LinkAttachment
		switch {
		case tc.want == nil && attachment != nil:
			t.Fatalf("variant %q: got %q, want none", tc.variant, *attachment)
		case tc.want != nil && (attachment == nil || *attachment != *tc.want):
			t.Fatalf("variant %q: got %v, want %q", tc.variant, attachment, *tc.want)
		}
	}
}

func linkPtr(attachment domain.LinkAttachment) *domain.LinkAttachment {
	return &attachment
}
