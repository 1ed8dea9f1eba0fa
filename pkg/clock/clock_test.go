package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowIsRecent(t *testing.T) {
	c := New()
	defer c.Stop()

	now := time.Now().Unix()
	assert.InDelta(t, now, c.Now(), 2)
}

func TestTickForcesRefresh(t *testing.T) {
	c := New()
	defer c.Stop()

	before := c.Now()
	time.Sleep(2 * time.Second)
	c.Tick()
	assert.GreaterOrEqual(t, c.Now(), before+2)
}
