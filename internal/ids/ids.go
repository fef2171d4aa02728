package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a lexically sortable id. Ids generated by one process within
// the same millisecond keep increasing.
func NewULID() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func NewUUID() string {
	return uuid.NewString()
}

func ValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
