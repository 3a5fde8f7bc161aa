package catalog

import "relove-be/internal/errs"

var (
	ErrTenantNotConfigured = errs.New("TENANT_NOT_CONFIGURED", "seller payment account not configured")
)
