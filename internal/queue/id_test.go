package queue

import (
	"strconv"
	"testing"
)

func TestIDGeneratorDistinctUnderRapidCalls(t *testing.T) {
	var gen idGenerator
	seen := make(map[string]struct{}, 10000)
	for range 10000 {
		id := gen.next()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestIDGeneratorPinsClockRegression(t *testing.T) {
	original := nowMs
	t.Cleanup(func() { nowMs = original })

	clock := int64(1_700_000_000_500)
	nowMs = func() int64 { return clock }

	var gen idGenerator
	first := gen.next()
	clock -= 400
	second := gen.next()

	if millis(t, second) != millis(t, first) {
		t.Fatalf("time component went backwards: %s -> %s", first, second)
	}
	if first == second {
		t.Fatal("ids in the same millisecond must differ")
	}

	clock += 1000
	if third := gen.next(); millis(t, third) != clock {
		t.Fatalf("expected generator to follow the clock forward, got %s", third)
	}
}

func TestIDShape(t *testing.T) {
	var gen idGenerator
	id := gen.next()
	suffix := id[len(id)-idSuffixLength:]
	for _, r := range suffix {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			t.Fatalf("suffix %q contains %q", suffix, r)
		}
	}
	millis(t, id)
}

func millis(t *testing.T, id string) int64 {
	t.Helper()
	ms, err := strconv.ParseInt(id[:len(id)-idSuffixLength], 10, 64)
	if err != nil {
		t.Fatalf("id %q has no millisecond prefix: %v", id, err)
	}
	return ms
}
