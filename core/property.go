package core

import "context"

// Property keys owned by background workers and the security policy.
const (
	PropertySecurityBaseline = "security_baseline"
	PropertyJanitorOffset    = "janitor_offset"
)

type PropertyStore interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any) error
}
