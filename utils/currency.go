package utils

import (
	"fmt"
	"strconv"
	"strings"
)

var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"IDR": "Rp ",
}

// FormatMinorUnits renders an amount held in minor units (paise, cents) for
// display, e.g. 300000 INR -> "₹3,000.00". Amounts are never stored this way.
func FormatMinorUnits(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	major := strconv.FormatInt(amount/100, 10)
	minor := amount % 100

	var groups []string
	for len(major) > 3 {
		groups = append([]string{major[len(major)-3:]}, groups...)
		major = major[:len(major)-3]
	}
	groups = append([]string{major}, groups...)

	symbol, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		symbol = strings.ToUpper(currency) + " "
	}
	return fmt.Sprintf("%s%s%s.%02d", sign, symbol, strings.Join(groups, ","), minor)
}
