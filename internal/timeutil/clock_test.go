package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock(t *testing.T) {
	t.Parallel()

	var c Clock = RealClock{}
	start := c.Now()
	assert.GreaterOrEqual(t, c.Since(start), time.Duration(0))

	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
	ticker.Reset(2 * time.Millisecond)
}

func TestMockClockNowAndSince(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	assert.Equal(t, base, c.Now())

	c.Advance(5 * time.Second)
	assert.Equal(t, base.Add(5*time.Second), c.Now())
	assert.Equal(t, 5*time.Second, c.Since(base))

	c.Set(base)
	assert.Equal(t, base, c.Now())
}

func TestMockTickerFiresOnAdvance(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(10 * time.Millisecond)
	require.Equal(t, 1, c.TickerCount())

	c.Advance(5 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(5 * time.Millisecond)
	select {
	case got := <-ticker.C():
		assert.Equal(t, time.Unix(0, 0).Add(10*time.Millisecond), got)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestMockTickerStopAndReset(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Second)
	mt := ticker.(*MockTicker)

	ticker.Stop()
	assert.True(t, mt.Stopped())
	c.Advance(2 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}

	ticker.Reset(time.Second)
	assert.False(t, mt.Stopped())
	c.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("reset ticker did not fire")
	}
}

func TestMockTickerDropsWhenFull(t *testing.T) {
	t.Parallel()

	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(time.Millisecond)
	for i := 0; i < 5; i++ {
		c.Advance(time.Millisecond)
	}
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("expected buffered channel of one tick")
	default:
	}
}
