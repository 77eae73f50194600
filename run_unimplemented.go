//go:build prime_unimplemented

package prime

import (
	"context"
	"fmt"
)

// The reason reported by stressors built without arbitrary precision support.
const UnimplementedReason = "built without arbitrary precision integer support"

// Run reports that the stressor is not implemented in this build.
func (s *Stressor) Run(_ context.Context) (*Result, error) {
	s.logger.Info(fmt.Sprintf("%s: not implemented, %s", s.name, UnimplementedReason))
	return nil, fmt.Errorf("%s: %w: %s", s.name, ErrNotImplemented, UnimplementedReason)
}
