package core

import "time"

// Clock measures elapsed wall time between Start and Stop. A stopped clock
// keeps its last elapsed value.
type Clock struct {
	startTime time.Time
	running   bool
	elapsed   time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = time.Since(c.startTime)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.running = true
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.Update()
	c.running = false
}

func (c *Clock) Running() bool {
	return c.running
}

func (c *Clock) Elapsed() time.Duration {
	return c.elapsed
}

// Restart returns the elapsed time and starts measuring again from now.
func (c *Clock) Restart() time.Duration {
	c.Update()
	e := c.elapsed
	c.Start()
	return e
}
