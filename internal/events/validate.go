package events

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidRecord reports a record that cannot be persisted.
var ErrInvalidRecord = errors.New("invalid event record")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the fields storage depends on. IsFree with a price text is
// rejected because the listing treats the two as mutually exclusive.
func (r Record) Validate() error {
	if err := validatorInstance().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: blank title", ErrInvalidRecord)
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: missing start", ErrInvalidRecord)
	}
	if r.IsFree && r.PriceText != "" {
		return fmt.Errorf("%w: free event with price text %q", ErrInvalidRecord, r.PriceText)
	}
	return nil
}

// Partition splits records into valid and invalid sets, preserving order.
func Partition(records []Record) (valid []Record, invalid []error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			invalid = append(invalid, fmt.Errorf("%s: %w", r.ExternalID, err))
			continue
		}
		valid = append(valid, r)
	}
	return valid, invalid
}
