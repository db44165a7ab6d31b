package wallet

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spritzapp/spritz/internal/errors"
)

// Normalize validates a wallet address and returns its canonical lower-cased
// form. Every lookup and write key in the service uses the normalized form.
func Normalize(address string) (string, error) {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "", &errors.ValidationError{Field: "address", Message: "address is required"}
	}
	if !common.IsHexAddress(trimmed) {
		return "", &errors.ValidationError{Field: "address", Message: "not a valid wallet address"}
	}
	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}
