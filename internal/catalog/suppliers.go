package catalog

import "sort"

// SupplierBrands maps tracked 1C supplier codes to the brand reported for their
// goods. Goods of suppliers missing from the table are never fetched, so the
// table must be extended whenever a distribution supplier is onboarded.
type SupplierBrands struct {
	brands map[string]string
}

// NewSupplierBrands copies entries into an immutable table.
func NewSupplierBrands(entries map[string]string) SupplierBrands {
	brands := make(map[string]string, len(entries))
	for code, brand := range entries {
		brands[code] = brand
	}
	return SupplierBrands{brands: brands}
}

// DefaultSupplierBrands returns the production distribution suppliers.
func DefaultSupplierBrands() SupplierBrands {
	return NewSupplierBrands(map[string]string{
		"DR002218": "ROZMETOV",
		"M1000015": "DANONE",
		"DR001246": "MIRATORG",
		"DR001365": "MIRATORG",
		"DR001991": "JAHIDA",
		"DR002128": "JAHIDA",
		"DR002284": "VALIO",
		"DR002220": "ULTRAFISH",
		"DR001488": "POLAR",
		"DR001643": "POLAR",
		"DR002292": "CHERKIZOVO",
	})
}

// Brand resolves the brand of a supplier code.
func (s SupplierBrands) Brand(supplierCode string) (string, bool) {
	brand, ok := s.brands[supplierCode]
	return brand, ok
}

// Codes lists the tracked supplier codes in sorted order.
func (s SupplierBrands) Codes() []string {
	codes := make([]string, 0, len(s.brands))
	for code := range s.brands {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Len reports the number of tracked suppliers.
func (s SupplierBrands) Len() int {
	return len(s.brands)
}
