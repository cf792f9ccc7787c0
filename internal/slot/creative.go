package slot

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/alanyoungcy/slotengine/internal/domain"
)

var passthroughSchemes = []string{"https://", "http://", "ar://", "data:"}

// NormalizeCreativeURI validates an ad creative reference and returns the
// form submitted on-chain. The empty string clears the creative.
func NormalizeCreativeURI(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", nil
	}
	lower := strings.ToLower(s)

	for _, scheme := range passthroughSchemes {
		if strings.HasPrefix(lower, scheme) {
			if len(s) == len(scheme) {
				return "", invalidURI(raw)
			}
			return s, nil
		}
	}

	if strings.HasPrefix(lower, "ipfs://") {
		rest := s[len("ipfs://"):]
		if strings.HasPrefix(strings.ToLower(rest), "ipfs/") {
			rest = rest[len("ipfs/"):]
		}
		if rest == "" {
			return "", invalidURI(raw)
		}
		return "ipfs://" + rest, nil
	}

	if strings.HasPrefix(lower, "0x") {
		body := lower[2:]
		if body == "" || !isHex(body) {
			return "", invalidURI(raw)
		}
		return "0x" + body, nil
	}

	if strings.HasPrefix(s, "Qm") || strings.HasPrefix(lower, "bafy") {
		return "ipfs://" + s, nil
	}

	if len(lower)%2 == 0 && isHex(lower) {
		return "0x" + lower, nil
	}
	return "", invalidURI(raw)
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func invalidURI(raw string) error {
	return fmt.Errorf("%w: %w: %q", domain.ErrValidation, domain.ErrInvalidURI, raw)
}
