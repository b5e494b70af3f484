package utils

import "github.com/go-playground/validator/v10"

// Validate checks service inputs tagged with `validate:"..."`.
var Validate = validator.New(validator.WithRequiredStructEnabled())
