package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// ulid.Monotonic keeps IDs generated within the same millisecond
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string for the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID string stamped with t. IDs stamped in the same
// millisecond are strictly increasing.
func NewAt(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Only possible if time goes backwards past the monotonic window
		// or entropy fails.
		panic(err)
	}
	return id.String()
}

// ClientOrderID builds the client-assigned order identifier sent to the
// brokerage: [tag-]SYMBOL-<unix seconds>-<8 hex>. Two calls never return
// the same id.
func ClientOrderID(tag, symbol string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if tag == "" {
		return fmt.Sprintf("%s-%d-%s", sym, now.Unix(), suffix)
	}
	return fmt.Sprintf("%s-%s-%d-%s", tag, sym, now.Unix(), suffix)
}
