package ledger

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PostingAccount names a logical account used by the journal builders.
type PostingAccount string

const (
	AcctARTrade            PostingAccount = "ar_trade"
	AcctARNonTrade         PostingAccount = "ar_non_trade"
	AcctCreditableEWT      PostingAccount = "creditable_ewt"
	AcctCreditableWVAT     PostingAccount = "creditable_wvat"
	AcctSales              PostingAccount = "sales"
	AcctServiceRevenue     PostingAccount = "service_revenue"
	AcctFreightIncome      PostingAccount = "freight_income"
	AcctVATOutput          PostingAccount = "vat_output"
	AcctVATInput           PostingAccount = "vat_input"
	AcctInventory          PostingAccount = "inventory"
	AcctCostOfGoodsSold    PostingAccount = "cost_of_goods_sold"
	AcctAPTrade            PostingAccount = "ap_trade"
	AcctEWTPayable         PostingAccount = "ewt_payable"
	AcctRetainedEarnings   PostingAccount = "retained_earnings"
	AcctOpeningBalanceEqty PostingAccount = "opening_balance_equity"
)

// AccountMap resolves logical posting accounts to chart of accounts numbers.
type AccountMap map[PostingAccount]string

// DefaultAccountMap mirrors the standard chart shipped with the legacy data.
func DefaultAccountMap() AccountMap {
	return AccountMap{
		AcctARTrade:            "1010201",
		AcctARNonTrade:         "1010204",
		AcctCreditableEWT:      "1010604",
		AcctCreditableWVAT:     "1010605",
		AcctInventory:          "1010401",
		AcctVATInput:           "1010602",
		AcctAPTrade:            "2010101",
		AcctVATOutput:          "2010301",
		AcctEWTPayable:         "2010302",
		AcctRetainedEarnings:   "3010301",
		AcctOpeningBalanceEqty: "3010401",
		AcctSales:              "4010101",
		AcctServiceRevenue:     "4010201",
		AcctFreightIncome:      "4010301",
		AcctCostOfGoodsSold:    "5010101",
	}
}

// Number returns the account number for a logical account.
func (m AccountMap) Number(acct PostingAccount) string {
	return m[acct]
}

type accountMapFile struct {
	Accounts map[string]string `yaml:"accounts"`
}

// LoadAccountMap merges overrides from a YAML file onto the defaults.
//
//	accounts:
//	  ar_trade: "1010201"
//	  vat_output: "2010301"
func LoadAccountMap(path string) (AccountMap, error) {
	m := DefaultAccountMap()
	if path == "" {
		return m, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: read account map: %w", err)
	}
	var file accountMapFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("ledger: parse account map: %w", err)
	}
	for key, number := range file.Accounts {
		acct := PostingAccount(key)
		if _, known := m[acct]; !known {
			return nil, fmt.Errorf("ledger: unknown posting account %q", key)
		}
		if number == "" {
			return nil, fmt.Errorf("ledger: empty account number for %q", key)
		}
		m[acct] = number
	}
	return m, nil
}
