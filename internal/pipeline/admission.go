package pipeline

import "fmt"

// acquire takes the admission slot for id. When the slot is held by a
// request that has been idle longer than the idle timeout and is not running
// a stage, the slot passes to id.
func (c *Coordinator) acquire(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.slot.TryAcquire(1) {
		c.holder = id
		c.busy = false
		c.lastActivity = c.clock.Now()
		return nil
	}

	if c.idleTimeout > 0 && !c.busy && c.clock.Since(c.lastActivity) >= c.idleTimeout {
		logf("reclaiming admission from idle request %s", c.holder)
		c.holder = id
		c.lastActivity = c.clock.Now()
		return nil
	}

	return fmt.Errorf("%w: request %s is in flight", ErrAdmissionDenied, c.holder)
}

// release frees the slot if id holds it.
func (c *Coordinator) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.holder != id {
		return
	}
	c.holder = ""
	c.busy = false
	c.slot.Release(1)
	logf("admission released by %s", id)
}

// enter marks a stage of id as running. It fails unless id holds admission
// and no other stage of id is running.
func (c *Coordinator) enter(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.holder != id {
		return fmt.Errorf("%w: request %s is not in flight", ErrInvalidState, id)
	}
	if c.busy {
		return fmt.Errorf("%w: a stage of request %s is already running", ErrInvalidState, id)
	}
	c.busy = true
	c.lastActivity = c.clock.Now()
	return nil
}

// pause marks the running stage of id finished while keeping admission.
func (c *Coordinator) pause(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.holder == id {
		c.busy = false
		c.lastActivity = c.clock.Now()
	}
}

// guarded runs fn on behalf of id, which must already hold admission.
// Admission is released when fn fails or panics, and also on success when
// keep is false.
func (c *Coordinator) guarded(id string, keep bool, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			c.release(id)
			panic(p)
		}
		if err != nil || !keep {
			c.release(id)
			return
		}
		c.pause(id)
	}()
	return fn()
}

// InFlight returns the request currently holding admission.
func (c *Coordinator) InFlight() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.holder, c.holder != ""
}
