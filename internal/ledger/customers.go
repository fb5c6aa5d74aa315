package ledger

import "golang.org/x/text/unicode/norm"

// CustomerPolicy attributes sales to distribution-channel customers.
type CustomerPolicy struct {
	// PrivateClientCode is the walk-in retail customer of Z-reports.
	PrivateClientCode string
	// FlagshipBranch sells to wholesale counterparties on behalf of B2B.
	FlagshipBranch string
	FlagshipTag    string
}

// DefaultCustomerPolicy returns the production attribution rules.
func DefaultCustomerPolicy() CustomerPolicy {
	return CustomerPolicy{
		PrivateClientCode: "00000003",
		FlagshipBranch:    "ДМ АШАН",
		FlagshipTag:       "B2B",
	}
}

// NormalizeCustomer returns the customer a sale is attributed to: the selling
// branch for private individuals, the flagship tag for counterparties of the
// flagship branch, and the raw customer name otherwise.
func (p CustomerPolicy) NormalizeCustomer(branch, clientCode, client string) string {
	if clientCode == p.PrivateClientCode {
		return branch
	}
	if norm.NFC.String(branch) == norm.NFC.String(p.FlagshipBranch) {
		return p.FlagshipTag
	}
	return client
}
