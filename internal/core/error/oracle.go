package errx

import (
	"errors"
	"net/http"
)

// WrapOracle marks an error as a model transport fault. The workflow keys off
// this kind to route to its give-up path instead of reading a failed call as a
// "no" or a failing grade.
func WrapOracle(err error) error {
	if err == nil {
		return nil
	}
	return New(err, http.StatusServiceUnavailable, OracleErrorMessage)
}

// IsOracleFault reports whether err carries the oracle transport fault kind.
func IsOracleFault(err error) bool {
	var ae *AppError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status == http.StatusServiceUnavailable && ae.Message == OracleErrorMessage
}
