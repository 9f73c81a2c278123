package tailsitter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestSideslipGain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.2, sideslipGain(SysidtTrimFlight, 10, 0))
	assert.Equal(t, 0.0, sideslipGain(SysidtLock, 10, 0))
	assert.InDelta(t, gravity/10, sideslipGain(SysidtTurnFlight, 6, 8), 1e-12)
	assert.InDelta(t, gravity/3, sideslipGain(SysidtTurnFlight, 0, 0), 1e-12)
	assert.InDelta(t, gravity/25, sideslipGain(SysidtTurnFlight, 100, 0), 1e-12)
}

func TestControlSideslip(t *testing.T) {
	t.Parallel()

	c := NewController(Config{})
	c.sysid.state = SysidtTrimFlight
	in := Inputs{Velocity: r3.Vec{X: 15}}

	t.Run("dead-band", func(t *testing.T) {
		c.trans.rollCmd = 0.5 * deg
		c.trans.yawCmd = 0.3
		assert.Equal(t, 0.0, c.controlSideslip(in, 0.004))
		assert.Equal(t, 0.3, c.trans.yawCmd)
	})

	t.Run("trim gain", func(t *testing.T) {
		c.trans.rollCmd = 11 * deg
		c.trans.yawCmd = 0
		rate := c.controlSideslip(in, 0.1)
		assert.InDelta(t, 2*deg, rate, 1e-12)
		assert.InDelta(t, 0.2*deg, c.trans.yawCmd, 1e-12)

		c.trans.rollCmd = -11 * deg
		assert.InDelta(t, -2*deg, c.controlSideslip(in, 0.1), 1e-12)
		assert.InDelta(t, 0, c.trans.yawCmd, 1e-12)
	})

	t.Run("rate clamp and wrap", func(t *testing.T) {
		c.sysid.state = SysidtTurnFlight
		c.trans.rollCmd = 60 * deg
		c.trans.yawCmd = math.Pi - 0.01
		rate := c.controlSideslip(Inputs{Velocity: r3.Vec{X: 1}}, 0.1)
		assert.InDelta(t, 90*deg, rate, 1e-12)
		assert.InDelta(t, -math.Pi-0.01+9*deg, c.trans.yawCmd, 1e-9)
		assert.Greater(t, c.trans.yawCmd, -math.Pi)
		c.sysid.state = SysidtTrimFlight
	})

	t.Run("disabled", func(t *testing.T) {
		c.params.VtSideslipCtrlEn = false
		c.trans.rollCmd = 30 * deg
		c.trans.yawCmd = 1
		assert.Equal(t, 0.0, c.controlSideslip(in, 0.1))
		assert.Equal(t, 1.0, c.trans.yawCmd)
		assert.InDelta(t, -1, c.status.SideslipAng, 1e-12)
	})
}
