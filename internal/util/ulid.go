package util

import (
	"crypto/rand"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string.
func New() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.Reader, 0)

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// OwnerID builds a host owner identity: hostname plus a ULID suffix so
// multiple instances on one machine stay distinguishable.
func OwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "streamgate"
	}

	return host + "-" + strings.ToLower(New())
}
