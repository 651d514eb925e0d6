package acquisition

import (
	"fmt"

	"github.com/b0ase/path402/pkg/domain"
)

// DeliveryError reports content that was paid for but not delivered. The
// debit has already happened; Redeliver is the recovery path.
type DeliveryError struct {
	Address string `json:"address"`
	TokenID string `json:"tokenId"`
	Charged int64  `json:"charged"`
	Proof   string `json:"proof,omitempty"`
	Err     error  `json:"-"`
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("acquisition: %s [%s]: token %s charged %d sats: %v",
		domain.KindContentDeliveryFailed, e.Address, e.TokenID, e.Charged, e.Err)
}

// Unwrap exposes both the domain classification and the transport cause.
func (e *DeliveryError) Unwrap() []error {
	de := &domain.Error{
		Kind:    domain.KindContentDeliveryFailed,
		Op:      "acquisition.Deliver",
		Address: e.Address,
		Err:     e.Err,
	}
	if e.Err != nil {
		de.Message = e.Err.Error()
		return []error{de, e.Err}
	}
	return []error{de}
}
