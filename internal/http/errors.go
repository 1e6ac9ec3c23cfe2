package httpapi

import "errors"

var (
	errUsernameRequired = errors.New("username is required")
	errUsernameTooLong  = errors.New("username must be 50 characters or fewer")
	errUsernameInvalid  = errors.New("username contains unprintable characters")
)
