package model

import "errors"

var (
	// ErrInvalidBounds is returned when lower > upper or a bound is NaN.
	ErrInvalidBounds = errors.New("invalid bounds")

	// ErrInvalidCoefficient is returned when a coefficient is NaN or infinite.
	ErrInvalidCoefficient = errors.New("invalid coefficient")

	// ErrDanglingReference is returned when an identifier is used where a live
	// element is required.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrReferencedElement is returned when a deletion is blocked by a live
	// reference.
	ErrReferencedElement = errors.New("element is referenced")

	// ErrInvalidReference is returned by the identifier registry when an
	// identifier was never issued or is already retired.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrDuplicateKey is returned when a sparse map would contain a duplicate key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnknownCheckpoint is returned when a diff is requested against a
	// checkpoint that does not belong to the model.
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")

	// ErrFamilyShapeViolation is returned when an atomic constraint fails its
	// family shape rule.
	ErrFamilyShapeViolation = errors.New("family shape violation")
)
