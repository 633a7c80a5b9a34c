// Package validation builds the request validator shared by the HTTP
// handlers and services, with the ledger specific rules registered.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/blinklabs-io/gouroboros/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

const (
	minAddressLength = 58
	maxAddressLength = 150

	mainnetPrefix = "addr1"
	testnetPrefix = "addr_test1"
)

var (
	txHashPattern  = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	addressPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

// AddressRules configures the cardano_address tag.
type AddressRules struct {
	Network string
	// Strict additionally decodes the bech32 payload.
	Strict bool
}

func (r AddressRules) prefix() string {
	if r.Network == "mainnet" {
		return mainnetPrefix
	}
	return testnetPrefix
}

// CheckAddress reports why addr is not a payment address on the configured
// network, or nil when it is.
func (r AddressRules) CheckAddress(addr string) error {
	if addr == "" {
		return errors.New("address is required")
	}
	if len(addr) < minAddressLength || len(addr) > maxAddressLength {
		return fmt.Errorf("address length must be between %d and %d", minAddressLength, maxAddressLength)
	}
	if !addressPattern.MatchString(addr) {
		return errors.New("address contains invalid characters")
	}
	if prefix := r.prefix(); !strings.HasPrefix(addr, prefix) {
		return fmt.Errorf("address must start with %s on %s", prefix, r.networkName())
	}
	if r.Strict {
		if _, err := ledger.NewAddress(addr); err != nil {
			return fmt.Errorf("address does not decode: %w", err)
		}
	}
	return nil
}

func (r AddressRules) networkName() string {
	if r.Network == "" {
		return "testnet"
	}
	return r.Network
}

// IsTxHash reports whether s is 64 hex characters.
func IsTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// New returns a validator with the tx_hash, cardano_address and notblank tags.
func New(rules AddressRules) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("tx_hash", func(fl validator.FieldLevel) bool {
		return IsTxHash(fl.Field().String())
	})
	v.RegisterValidation("cardano_address", func(fl validator.FieldLevel) bool {
		return rules.CheckAddress(fl.Field().String()) == nil
	})
	v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// Describe turns validator errors into one line per failed field.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeField(fe))
	}
	return strings.Join(msgs, "; ")
}

// FirstField returns the json name of the first failing field.
func FirstField(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldName(verrs[0])
	}
	return ""
}

func fieldName(fe validator.FieldError) string {
	return fe.Field()
}

func describeField(fe validator.FieldError) string {
	field := fieldName(fe)
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "tx_hash":
		return fmt.Sprintf("%s must be 64 hexadecimal characters", field)
	case "cardano_address":
		return fmt.Sprintf("%s must be a valid Cardano address", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
