package domain

import "errors"

var (
	ErrTransport = errors.New("registry_transport_failed")
	ErrAuth      = errors.New("registry_token_missing")
	ErrNotFound  = errors.New("registry_file_not_published")
	ErrFormat    = errors.New("registry_archive_invalid")
)
