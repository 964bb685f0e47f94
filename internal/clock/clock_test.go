package clock

import (
	"sync"
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, time.October, 19, 21, 0, 0, 0, time.UTC)
	c := Fake(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("now = %v, want %v", got, start)
	}
	if got := c.Advance(5 * time.Minute); !got.Equal(start.Add(5 * time.Minute)) {
		t.Fatalf("advance = %v, want %v", got, start.Add(5*time.Minute))
	}
	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("after set now = %v, want %v", got, start)
	}
}

func TestFakeConcurrentAdvance(t *testing.T) {
	start := time.Date(2026, time.October, 19, 21, 0, 0, 0, time.UTC)
	c := Fake(start)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()
	if got, want := c.Now(), start.Add(50*time.Second); !got.Equal(want) {
		t.Fatalf("now = %v, want %v", got, want)
	}
}

func TestRealIsUTC(t *testing.T) {
	if loc := Real().Now().Location(); loc != time.UTC {
		t.Fatalf("location = %v, want UTC", loc)
	}
}
