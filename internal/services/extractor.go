package services

import (
	"regexp"
	"strings"

	"github.com/caravanmattress/orders-api/internal/domain"
)

// dimensionNamePattern matches the property-name variants product forms use
// for dimension fields: "Dimension A", "Enter Dimension B (cm)", "dimension
// c (inches)" and so on. Group 1 is the letter, group 2 the optional unit.
var dimensionNamePattern = regexp.MustCompile(`(?i)^(?:enter\s+)?dimension\s+([a-g])\s*(?:\(\s*(cm|mm|in|inches)\s*\))?$`)

// Extractor parses free-form line-item properties into typed measurements
// and manufacturing options.
type Extractor struct{}

// NewExtractor constructs an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses one line item's properties and variant title. An empty
// property value means "not provided", never a provided empty string.
func (e *Extractor) Extract(item domain.InboundLineItem) Extraction {
	var measurements []domain.DimensionMeasurement
	provided := make(map[domain.DimensionLetter]bool, len(domain.ExpectedDimensions))
	deliveryOption := ""

	for _, prop := range item.Properties {
		value := strings.TrimSpace(prop.ValueString())
		if value == "" {
			continue
		}

		name := strings.TrimSpace(prop.Name)
		if match := dimensionNamePattern.FindStringSubmatch(name); match != nil {
			letter := domain.DimensionLetter(strings.ToUpper(match[1]))
			if provided[letter] {
				continue
			}
			provided[letter] = true
			measurements = append(measurements, domain.DimensionMeasurement{
				Letter: letter,
				Value:  value,
				Unit:   unitFromSuffix(match[2]),
			})
			continue
		}

		if strings.EqualFold(name, "Delivery") {
			deliveryOption = value
		}
	}

	status := measurementStatus(provided, item.Properties)

	options := domain.ManufacturingOptions{
		LinkAttachment: linkAttachmentFromVariant(item.VariantTitle),
		DeliveryOption: domain.DefaultDeliveryOption,
	}
	if deliveryOption != "" {
		options.DeliveryOption = deliveryOption
	}

	return Extraction{
		Measurements:         measurements,
		Status:               status,
		ManufacturingOptions: options,
	}
}

func unitFromSuffix(suffix string) domain.MeasurementUnit {
	switch strings.ToLower(strings.TrimSpace(suffix)) {
	case "mm":
		return domain.UnitMillimetres
	case "in", "inches":
		return domain.UnitInches
	default:
		return domain.UnitCentimetres
	}
}

func measurementStatus(provided map[domain.DimensionLetter]bool, properties []domain.InboundItemProperty) domain.MeasurementStatus {
	status := domain.MeasurementStatus{
		Provided: []domain.DimensionLetter{},
		Missing:  []domain.DimensionLetter{},
	}
	for _, letter := range domain.ExpectedDimensions {
		if provided[letter] {
			status.Provided = append(status.Provided, letter)
		} else {
			status.Missing = append(status.Missing, letter)
		}
	}
	status.Complete = len(status.Missing) == 0 && len(status.Provided) > 0
	status.Option = classifyOption(len(status.Provided) > 0, properties)
	return status
}

// classifyOption decides how the customer chose to supply measurements. Any
// provided dimension means they came with the order; otherwise an explicit
// measurement-option property is consulted. Kit keywords are checked first
// because kit requests are commonly phrased with "send" ("please send a
// measuring kit"), which would otherwise misread as send-later.
func classifyOption(anyProvided bool, properties []domain.InboundItemProperty) domain.MeasurementOption {
	if anyProvided {
		return domain.MeasurementOptionProvided
	}

	for _, prop := range properties {
		name := strings.ToLower(prop.Name)
		if !strings.Contains(name, "measurement") || !strings.Contains(name, "option") {
			continue
		}
		value := strings.ToLower(prop.ValueString())
		if strings.Contains(value, "kit") || strings.Contains(value, "measuring") {
			return domain.MeasurementOptionKit
		}
		if strings.Contains(value, "later") || strings.Contains(value, "send") {
			return domain.MeasurementOptionSendLater
		}
	}
	return domain.MeasurementOptionSendLater
}

var knownLinkAttachments = []domain.LinkAttachment{
	domain.LinkAttachmentZip,
	domain.LinkAttachmentClip,
	domain.LinkAttachmentNone,
}

// linkAttachmentFromVariant reads the last " / "-delimited segment of the
// variant title and accepts it only when it matches a recognised label by
// the label's first word.
func linkAttachmentFromVariant(variantTitle string) *domain.LinkAttachment {
	segments := strings.Split(variantTitle, " / ")
	last := strings.ToLower(strings.TrimSpace(segments[len(segments)-1]))
	if last == "" {
		return nil
	}

	for _, candidate := range knownLinkAttachments {
		firstWord := strings.ToLower(strings.Fields(string(candidate))[0])
		if strings.Contains(last, firstWord) {
			attachment := candidate
			return &attachment
		}
	}
	return nil
}
