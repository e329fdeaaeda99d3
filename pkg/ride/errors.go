package ride

import "errors"

// Error kinds shared by every component. Concrete errors wrap one or more of
// these and callers test them with errors.Is.
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrAuthentication = errors.New("authentication failed")
	ErrNetwork        = errors.New("network error")
	ErrRateLimited    = errors.New("rate limited")
	ErrUnparsable     = errors.New("unparsable response")
)
