package model

import "fmt"

// FundCategory labels every ledger movement and drives bridge policy.
type FundCategory string

const (
	CategoryPayroll   FundCategory = "payroll"
	CategoryTrustFund FundCategory = "trust_fund"
	CategoryPtoSick   FundCategory = "pto_sick"
)

// ParseFundCategory validates a category name.
func ParseFundCategory(s string) (FundCategory, error) {
	switch c := FundCategory(s); c {
	case CategoryPayroll, CategoryTrustFund, CategoryPtoSick:
		return c, nil
	}
	return "", &ErrValidation{Msg: fmt.Sprintf("unknown fund category %q", s)}
}
