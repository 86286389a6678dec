package connectors

import "fmt"

// apiErrorCodes maps the exchange's bizError codes to human-readable names.
var apiErrorCodes = map[int]string{
	11002: "TE_UNKNOWN_ERROR",           // Unknown error
	11003: "TE_INVALID_ARGUMENT",        // Invalid argument (e.g. missing or wrong param)
	11005: "TE_MAINTENANCE_MODE",        // System maintenance mode
	11012: "TE_INVALID_QTY",             // Invalid quantity in order
	11013: "TE_INVALID_PRICE",           // Invalid price in order
	11017: "TE_QTY_TOO_SMALL",           // Quantity below minimum
	11018: "TE_QTY_TOO_LARGE",           // Quantity above maximum
	11037: "TE_USER_NOT_EXIST",          // Account does not exist or is disabled
	11051: "TE_INSUFFICIENT_BALANCE",    // Not enough balance
	11070: "TE_MARKET_CLOSED",           // Market closed
	11081: "TE_CLIENT_ID_EXIST",         // Duplicate client order ID
	11082: "TE_CLIENT_ID_INVALID",       // Invalid client order ID
	11087: "TE_SYMBOL_NOT_EXIST",        // Unknown symbol
}

// apiErrorMessage renders an API error code with its name when known.
func apiErrorMessage(code int, msg string) string {
	if name, ok := apiErrorCodes[code]; ok {
		return fmt.Sprintf("%s (%d): %s", name, code, msg)
	}
	return fmt.Sprintf("API error %d: %s", code, msg)
}
