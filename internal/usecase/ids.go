package usecase

import (
	"strings"

	"github.com/google/uuid"
)

func randomID() string {
	return uuid.NewString()
}

// newSessionToken is 32 lowercase hex characters.
func newSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newTransactionRef(orderID string) string {
	return "ORDER-" + orderID + "-" + newSessionToken()[:6]
}
