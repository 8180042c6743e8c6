package queue

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const idSuffixLength = 9

// nowMs is swapped out in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// idGenerator produces ids of the form <unix millis><9 random chars>. The
// millisecond part never goes backwards within a generator.
type idGenerator struct {
	mu     sync.Mutex
	lastMs int64
}

func (g *idGenerator) next() string {
	g.mu.Lock()
	ms := nowMs()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	g.lastMs = ms
	g.mu.Unlock()

	return strconv.FormatInt(ms, 10) + randomSuffix()
}

func randomSuffix() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return raw[:idSuffixLength]
}
