package memory

import (
	"testing"

	"github.com/smcp-go/smcp/session"
)

func TestMemoryStore(t *testing.T) {
	session.TestSuite(t, func() session.Store {
		return New()
	})
}
