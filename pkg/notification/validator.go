package notification

import (
	"fmt"

	"github.com/asaskevich/govalidator"

	"github.com/hmcts/cpp-context-notification/pkg/filter"
)

// CommandValidator validates notification command payloads at the bus
// boundary. It implements middleware.Validator.
type CommandValidator struct{}

// NewCommandValidator creates a validator for notification commands.
func NewCommandValidator() *CommandValidator {
	return &CommandValidator{}
}

// Validate checks identifiers and filter shape. Filters reaching the bus
// must already be resolved; an unresolved current-user shorthand here means
// a caller bypassed the service facade.
func (v *CommandValidator) Validate(cmd any) error {
	switch c := cmd.(type) {
	case SubscribeCommand:
		if _, err := govalidator.ValidateStruct(c); err != nil {
			return err
		}
		if err := c.Filter.Validate(); err != nil {
			return err
		}
		if containsCurrentUser(c.Filter) {
			return filter.ErrUnresolvedCurrentUser
		}
		return nil

	case UnsubscribeCommand:
		_, err := govalidator.ValidateStruct(c)
		return err

	default:
		return fmt.Errorf("unsupported command payload %T", cmd)
	}
}

func containsCurrentUser(f filter.Filter) bool {
	if f.Type == filter.TypeCurrentUser {
		return true
	}
	for _, child := range f.Children {
		if containsCurrentUser(child) {
			return true
		}
	}
	return false
}
