package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// VatType classifies a document's VAT treatment.
type VatType string

const (
	VatTypeVatable   VatType = "Vatable"
	VatTypeZeroRated VatType = "Zero-Rated"
	VatTypeExempt    VatType = "Exempt"
)

// ParseVatType accepts the stored spelling variants.
func ParseVatType(raw string) VatType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "vatable":
		return VatTypeVatable
	case "zero-rated", "zerorated", "zero rated":
		return VatTypeZeroRated
	case "exempt", "vat-exempt", "vat exempt":
		return VatTypeExempt
	default:
		return VatType(raw)
	}
}

// DefaultVATRate is the statutory VAT rate.
var DefaultVATRate = decimal.RequireFromString("0.12")

// Default withholding rates applied when a counterparty is flagged.
var (
	DefaultEWTRate  = decimal.RequireFromString("0.01")
	DefaultWVATRate = decimal.RequireFromString("0.05")
)

// TaxProfile carries the tax flags of a document or its counterparty.
type TaxProfile struct {
	VatType  VatType         `json:"vat_type"`
	HasEWT   bool            `json:"has_ewt"`
	HasWVAT  bool            `json:"has_wvat"`
	EWTRate  decimal.Decimal `json:"ewt_rate"`
	WVATRate decimal.Decimal `json:"wvat_rate"`
}

// TaxBreakdown is the netting result used to build journal legs.
type TaxBreakdown struct {
	Gross      decimal.Decimal
	NetOfVAT   decimal.Decimal
	VAT        decimal.Decimal
	EWT        decimal.Decimal
	WVAT       decimal.Decimal
	Receivable decimal.Decimal
}

// Round2 rounds half away from zero to centavos.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// NetOfVAT returns gross / (1 + rate) for vatable amounts, else gross.
func NetOfVAT(gross decimal.Decimal, vatType VatType, rate decimal.Decimal) decimal.Decimal {
	if vatType != VatTypeVatable {
		return gross
	}
	return gross.Div(decimal.NewFromInt(1).Add(rate))
}

// ComputeTaxes nets VAT and withholding out of a gross amount. Net and withholding are
// rounded to centavos; VAT is gross minus net so that net + VAT reproduces gross.
func ComputeTaxes(gross decimal.Decimal, profile TaxProfile, vatRate decimal.Decimal) TaxBreakdown {
	gross = Round2(gross)
	net := Round2(NetOfVAT(gross, profile.VatType, vatRate))
	vat := gross.Sub(net)

	out := TaxBreakdown{Gross: gross, NetOfVAT: net, VAT: vat, EWT: decimal.Zero, WVAT: decimal.Zero}
	if profile.HasEWT {
		rate := profile.EWTRate
		if rate.IsZero() {
			rate = DefaultEWTRate
		}
		out.EWT = Round2(net.Mul(rate))
	}
	if profile.HasWVAT && profile.VatType == VatTypeVatable {
		rate := profile.WVATRate
		if rate.IsZero() {
			rate = DefaultWVATRate
		}
		out.WVAT = Round2(net.Mul(rate))
	}
	out.Receivable = gross.Sub(out.EWT).Sub(out.WVAT)
	return out
}
