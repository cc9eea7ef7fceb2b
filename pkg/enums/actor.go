package enums

import "fmt"

// Actor identifies who drove a state change.
type Actor string

const (
	ActorSystem   Actor = "system"
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
)

var validActorValues = []Actor{
	ActorSystem,
	ActorCustomer,
	ActorAdmin,
}

// String implements fmt.Stringer.
func (a Actor) String() string {
	return string(a)
}

// IsValid reports whether the value is a known Actor.
func (a Actor) IsValid() bool {
	for _, candidate := range validActorValues {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActor converts raw input into a Actor.
func ParseActor(value string) (Actor, error) {
	for _, candidate := range validActorValues {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor %q", value)
}
