package report

import (
	"regexp"
	"strconv"
	"strings"
)

// FreeholdSales - Freehold sales figures of one week
type FreeholdSales struct {
	ActiveListings   *int64 `json:"active_listings"`
	ConditionalSales *int64 `json:"conditional_sales"`
	SoldProperties   *int64 `json:"sold_properties"`
	MedianListPrice  *int64 `json:"median_list_price"`
	MedianSoldPrice  *int64 `json:"median_sold_price"`
	MedianDOM        *int64 `json:"median_dom"`
}

// CondoSales - Condo sales figures of one week
type CondoSales struct {
	ActiveListings   *int64 `json:"active_listings"`
	ConditionalSales *int64 `json:"conditional_sales"`
	SoldProperties   *int64 `json:"sold_properties"`
	MedianListPrice  *int64 `json:"median_list_price"`
	SoldPrice        *int64 `json:"sold_price"`
	MedianDOM        *int64 `json:"median_dom"`
}

// Rentals - Rental figures of one week, freehold or condo
type Rentals struct {
	ActiveListings    *int64 `json:"active_listings"`
	RentedProperties  *int64 `json:"rented_properties"`
	MedianListPrice   *int64 `json:"median_list_price"`
	MedianRentedPrice *int64 `json:"median_rented_price"`
	MedianDOM         *int64 `json:"median_dom"`
}

// Report - Every section found in one post. A nil section was absent.
type Report struct {
	Freehold        *FreeholdSales `json:"freehold,omitempty"`
	Condos          *CondoSales    `json:"condos,omitempty"`
	FreeholdRentals *Rentals       `json:"freehold_rentals,omitempty"`
	CondoRentals    *Rentals       `json:"condo_rentals,omitempty"`
}

// Empty reports whether no section was found.
func (r Report) Empty() bool {
	return r.Freehold == nil && r.Condos == nil && r.FreeholdRentals == nil && r.CondoRentals == nil
}

var (
	freeholdSection       = regexp.MustCompile(`(?s)\*\*\*Freehold\*\*\*(.*?)\*\*\*Condos\*\*\*`)
	condoSection          = regexp.MustCompile(`(?s)\*\*\*Condos\*\*\*(.*?)\*\*\*Freehold Rentals\*\*\*`)
	freeholdRentalSection = regexp.MustCompile(`(?s)\*\*\*Freehold Rentals\*\*\*(.*?)\*\*\*Condo Rentals\*\*\*`)
	condoRentalSection    = regexp.MustCompile(`(?s)\*\*\*Condo Rentals\*\*\*(.*)$`)

	activeListings    = regexp.MustCompile(`(?i)Number of active listings:\s*([\d,]+)`)
	conditionalSales  = regexp.MustCompile(`(?i)Number of conditional sales:\s*([\d,]+)`)
	soldProperties    = regexp.MustCompile(`(?i)Number of sold properties:\s*([\d,]+)`)
	rentedProperties  = regexp.MustCompile(`(?i)Number of rented properties:\s*([\d,]+)`)
	medianListPrice   = regexp.MustCompile(`(?i)Median list price:\s*\$?([\d,]+)`)
	medianListedPrice = regexp.MustCompile(`(?i)Median (?:list(?:ed)?) price:\s*\$?([\d,]+)`)
	medianSoldPrice   = regexp.MustCompile(`(?i)Median sold price:\s*\$?([\d,]+)`)
	soldPrice         = regexp.MustCompile(`(?i)Sold price:\s*\$?([\d,]+)`)
	medianRentedPrice = regexp.MustCompile(`(?i)Median rented price:\s*\$?([\d,]+)`)
	medianDOM         = regexp.MustCompile(`(?i)Median DOM:\s*([\d,]+)`)
)

// Parse extracts the four market sections from a post body. Sections are
// delimited by their bold-italic headings in a fixed order.
func Parse(text string) Report {
	var r Report

	if s, ok := section(freeholdSection, text); ok {
		r.Freehold = &FreeholdSales{
			ActiveListings:   number(activeListings, s),
			ConditionalSales: number(conditionalSales, s),
			SoldProperties:   number(soldProperties, s),
			MedianListPrice:  number(medianListPrice, s),
			MedianSoldPrice:  number(medianSoldPrice, s),
			MedianDOM:        number(medianDOM, s),
		}
	}

	if s, ok := section(condoSection, text); ok {
		r.Condos = &CondoSales{
			ActiveListings:   number(activeListings, s),
			ConditionalSales: number(conditionalSales, s),
			SoldProperties:   number(soldProperties, s),
			MedianListPrice:  number(medianListPrice, s),
			SoldPrice:        number(soldPrice, s),
			MedianDOM:        number(medianDOM, s),
		}
	}

	if s, ok := section(freeholdRentalSection, text); ok {
		r.FreeholdRentals = &Rentals{
			ActiveListings:    number(activeListings, s),
			RentedProperties:  number(rentedProperties, s),
			MedianListPrice:   number(medianListedPrice, s),
			MedianRentedPrice: number(medianRentedPrice, s),
			MedianDOM:         number(medianDOM, s),
		}
	}

	if s, ok := section(condoRentalSection, text); ok {
		r.CondoRentals = &Rentals{
			ActiveListings:    number(activeListings, s),
			RentedProperties:  number(rentedProperties, s),
			MedianListPrice:   number(medianListPrice, s),
			MedianRentedPrice: number(medianRentedPrice, s),
			MedianDOM:         number(medianDOM, s),
		}
	}

	return r
}

func section(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// number returns the first capture of re in text with thousands separators
// removed, or nil when absent.
func number(re *regexp.Regexp, text string) *int64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
