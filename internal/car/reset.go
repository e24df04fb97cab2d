package car

import (
	"context"
)

// Reset centers the steering, removes motor power and asks the board script
// to restart the car at its initial position. It returns once the script
// call has completed. Failures are logged only.
func (c *Car) Reset(ctx context.Context) {
	if c.session == nil {
		c.logger.Warn("Reset ignored", "error", ErrNotConnected)
		return
	}

	c.SetSteer(0)
	if err := c.SetPower(0, 0); err != nil {
		c.logger.Warn("Unable to stop motors before reset", "error", err)
	}

	if err := c.session.CallScriptFunction(ctx, c.cfg.ResetScript, c.cfg.ResetFunction); err != nil {
		c.logger.Error("Remote function call failed",
			"script", c.cfg.ResetScript, "function", c.cfg.ResetFunction, "error", err)
		return
	}
	c.logger.Info("Car restarted")
}
