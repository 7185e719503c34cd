package addon

import "errors"

// Sentinel errors for entity model operations.
//
// These errors can be checked with errors.Is() for specific error handling:
//
//	if errors.Is(err, addon.ErrUnknownAdapter) {
//	    // reply with failure, keep running
//	}
var (
	// ErrUnknownAdapter indicates a gateway message addressed an adapter
	// this plugin never registered.
	ErrUnknownAdapter = errors.New("addon: unknown adapter")

	// ErrUnknownDevice indicates a message addressed a device the adapter
	// does not own.
	ErrUnknownDevice = errors.New("addon: unknown device")

	// ErrUnknownProperty indicates a set-property command named a property
	// the device does not expose.
	ErrUnknownProperty = errors.New("addon: unknown property")

	// ErrUnknownAction indicates an action request named an action the
	// device does not define.
	ErrUnknownAction = errors.New("addon: unknown action")

	// ErrDuplicateInvocation indicates an action request reused the id of
	// an invocation this device has already seen.
	ErrDuplicateInvocation = errors.New("addon: duplicate action invocation")

	// ErrReadOnlyProperty indicates a write was attempted on a read-only
	// property.
	ErrReadOnlyProperty = errors.New("addon: property is read-only")
)
