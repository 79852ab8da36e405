package delivery

import (
	"encoding/json"
	"errors"

	"github.com/claimcore/core/internal/webhook"
)

// errDeliveryFailed is a sentinel passed to breaker.Registry.Call so a
// non-2xx response counts as a breaker failure without the breaker
// needing to know about retrypolicy.OutcomeClass.
var errDeliveryFailed = errors.New("delivery attempt did not succeed")

func decodeDeliverPayload(raw json.RawMessage, out *webhook.DeliverPayload) error {
	return json.Unmarshal(raw, out)
}
