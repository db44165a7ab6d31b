package wallet

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/spritzapp/spritz/internal/errors"
)

// VerifySignature checks that signature is a valid personal_sign signature
// over message by the given wallet address. The signature is the usual
// 65-byte hex blob with a 27/28 recovery id.
func VerifySignature(address, message, signature string) (bool, error) {
	normalized, err := Normalize(address)
	if err != nil {
		return false, err
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, &errors.SignatureError{Address: normalized, Err: fmt.Errorf("decode signature: %w", err)}
	}
	if len(sig) != crypto.SignatureLength {
		return false, &errors.SignatureError{Address: normalized, Err: fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))}
	}

	// personal_sign produces V as 27 or 28; SigToPub wants 0 or 1.
	recovery := make([]byte, crypto.SignatureLength)
	copy(recovery, sig)
	if recovery[crypto.RecoveryIDOffset] >= 27 {
		recovery[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pubKey, err := crypto.SigToPub(hash, recovery)
	if err != nil {
		return false, &errors.SignatureError{Address: normalized, Err: fmt.Errorf("recover public key: %w", err)}
	}

	recovered := strings.ToLower(crypto.PubkeyToAddress(*pubKey).Hex())
	return recovered == normalized, nil
}
