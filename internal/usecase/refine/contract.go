package refine

import "context"

// Generator produces completion text for a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}
