package handler

import (
	"github.com/go-faster/errors"
	"github.com/ogen-go/ogen/ogenregex"
	"github.com/ogen-go/ogen/validate"

	"github.com/xenking/storefront/internal/domain/product"
)

var (
	phonePattern = ogenregex.MustCompile(`^\d{10,11}$`)

	nameRule = validate.String{
		MinLength:    1,
		MinLengthSet: true,
		MaxLength:    100,
		MaxLengthSet: true,
	}
	emailRule = validate.String{
		MinLength:    3,
		MinLengthSet: true,
		MaxLength:    254,
		MaxLengthSet: true,
		Email:        true,
	}
	passwordRule = validate.String{
		MinLength:    6,
		MinLengthSet: true,
		MaxLength:    50,
		MaxLengthSet: true,
	}
	phoneRule = validate.String{
		Regex: phonePattern,
	}
	addressRule = validate.String{
		MaxLength:    500,
		MaxLengthSet: true,
	}
	linesRule = validate.Array{
		MinLength:    1,
		MinLengthSet: true,
		MaxLength:    100,
		MaxLengthSet: true,
	}
	quantityRule = validate.Int{
		MinSet: true,
		Min:    1,
		MaxSet: true,
		Max:    product.MaxQuantity,
	}
	// lineQuantityRule leaves the lower bound to the order engine, which
	// reports it per product.
	lineQuantityRule = validate.Int{
		MaxSet: true,
		Max:    product.MaxQuantity,
	}
)

// fieldErrors collects per-field validation failures in ogen's error shape.
type fieldErrors []validate.FieldError

func (f *fieldErrors) str(name string, rule validate.String, v string) {
	if err := rule.Validate(v); err != nil {
		*f = append(*f, validate.FieldError{Name: name, Error: err})
	}
}

func (f *fieldErrors) optStr(name string, rule validate.String, v *string) {
	if v != nil {
		f.str(name, rule, *v)
	}
}

func (f *fieldErrors) integer(name string, rule validate.Int, v int) {
	if err := rule.Validate(int64(v)); err != nil {
		*f = append(*f, validate.FieldError{Name: name, Error: err})
	}
}

func (f *fieldErrors) length(name string, rule validate.Array, n int) {
	if err := rule.ValidateLength(n); err != nil {
		*f = append(*f, validate.FieldError{Name: name, Error: err})
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return errors.Wrap(&validate.Error{Fields: f}, "validate")
}

func fieldRequired(name string) validate.FieldError {
	return validate.FieldError{Name: name, Error: validate.ErrFieldRequired}
}
