package equipment

import "errors"

var (
	ErrNotFound        = errors.New("equipment: item not found")
	ErrDuplicateSerial = errors.New("equipment: serial number already registered")
	ErrNotAvailable    = errors.New("equipment: item is not available for assignment")
	ErrNotAssigned     = errors.New("equipment: item is not assigned")
)
