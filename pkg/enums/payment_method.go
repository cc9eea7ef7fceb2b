package enums

import "fmt"

// PaymentMethod is the checkout payment option chosen by the customer.
type PaymentMethod string

const (
	PaymentMethodCOD             PaymentMethod = "cod"
	PaymentMethodWalletQR        PaymentMethod = "wallet_qr"
	PaymentMethodRedirectGateway PaymentMethod = "redirect_gateway"
	PaymentMethodOnChain         PaymentMethod = "onchain"
)

var validPaymentMethodValues = []PaymentMethod{
	PaymentMethodCOD,
	PaymentMethodWalletQR,
	PaymentMethodRedirectGateway,
	PaymentMethodOnChain,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethodValues {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethodValues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}

// RequiresSession reports whether the method collects money through a provider session.
func (p PaymentMethod) RequiresSession() bool {
	return p.IsValid() && p != PaymentMethodCOD
}
