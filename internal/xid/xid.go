package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed, collision-resistant identifier such as
// "pump-5f2b7c1e-...". The prefix makes ids self-describing in logs
// and audit trails.
func New(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
