package contract

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrDiscoveryUnavailable = errors.New("discovery unavailable")
	ErrGeocodeFailed        = errors.New("location could not be resolved")
	ErrTimezoneUnavailable  = errors.New("timezone unavailable")
	ErrPublish              = errors.New("event publish failed")
)
