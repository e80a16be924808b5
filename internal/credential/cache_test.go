package credential

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCache_ReadBeforeSwap(t *testing.T) {
	c := NewCache()

	s := c.Read()
	assert.False(t, s.IsSet())
	assert.Equal(t, "<unset>", s.String())
}

func TestCache_SwapReplacesValue(t *testing.T) {
	c := NewCache()
	now := time.Now()

	require.True(t, c.Swap(Secret{Value: "s3cr3t", ObtainedAt: now}))
	assert.Equal(t, "s3cr3t", c.Read().Value)

	require.True(t, c.Swap(Secret{Value: "rotated", ObtainedAt: now.Add(time.Minute)}))
	assert.Equal(t, "rotated", c.Read().Value)
	assert.Equal(t, now.Add(time.Minute), c.Read().ObtainedAt)
}

func TestCache_SwapIgnoresUnsetSecret(t *testing.T) {
	c := NewCache()
	c.Swap(Secret{Value: "keep-me"})

	assert.False(t, c.Swap(Secret{}))
	assert.Equal(t, "keep-me", c.Read().Value)
}

func TestSecret_StringDoesNotLeakValue(t *testing.T) {
	s := Secret{Value: "super-secret-value", ObtainedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	assert.NotContains(t, s.String(), "super-secret-value")
	assert.Contains(t, s.String(), "2026-01-02T03:04:05Z")
}

// Readers racing a writer must only ever observe values the writer installed.
func TestCache_ConcurrentReadersSeeWholeValues(t *testing.T) {
	c := NewCache()
	c.Swap(Secret{Value: "v0"})

	installed := map[string]bool{"v0": true}
	values := []string{"v1", "v2", "v3", "v4", "v5", "v6", "v7", "v8"}
	for _, v := range values {
		installed[v] = true
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 16)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := c.Read().Value
				if !installed[got] {
					select {
					case errs <- got:
					default:
					}
					return
				}
			}
		}()
	}

	for _, v := range values {
		c.Swap(Secret{Value: v})
		time.Sleep(time.Millisecond)
	}
	close(stop)
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("reader observed a value that was never installed: %q", got)
	}
	assert.Equal(t, "v8", c.Read().Value)
}

// After any sequence of swaps, Read returns the last set value and never
// regresses to unset.
func TestCache_LastSetSwapWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOf(rapid.StringMatching(`[a-z0-9]{0,8}`)).Draw(t, "values")

		c := NewCache()
		want := ""
		for _, v := range values {
			c.Swap(Secret{Value: v})
			if v != "" {
				want = v
			}
			if got := c.Read().Value; got != want {
				t.Fatalf("after swap %q: read %q, want %q", v, got, want)
			}
		}
	})
}
