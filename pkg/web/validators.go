package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// ParamValidator is a function type that validates a parameter.
type ParamValidator func(valueToTest int64) bool

func newComparisonValidator(valueInClosure int64, compareFn func(argValue, closedValue int64) bool) ParamValidator {
	return func(argValue int64) bool {
		return compareFn(argValue, valueInClosure)
	}
}

// Gte returns a ParamValidator that checks if the argument is greater than or equal to the value captured in the closure.
func Gte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue >= closedValue
	})
}

// Lte returns a ParamValidator that checks if the argument is less than or equal to the value captured in the closure.
func Lte(valToCompareAgainst int64) ParamValidator {
	return newComparisonValidator(valToCompareAgainst, func(argValue, closedValue int64) bool {
		return argValue <= closedValue
	})
}

// Between combines Gte(low) and Lte(high).
func Between(low, high int64) ParamValidator {
	gte, lte := Gte(low), Lte(high)
	return func(v int64) bool {
		return gte(v) && lte(v)
	}
}

// ParseOptionalInt reads an optional integer query parameter.
// A missing parameter yields (nil, true); an invalid one is answered with 400 and (nil, false).
func ParseOptionalInt(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, pValidator ParamValidator) (*int, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, true
	}
	intValue, err := strconv.ParseInt(value, 10, 32)
	if err != nil || !pValidator(intValue) {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return nil, false
	}
	v := int(intValue)
	return &v, true
}
