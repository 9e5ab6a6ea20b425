package engine

// unbatched issues one read, writes what it returned, and repeats.
func (c *copier) unbatched() error {
	var off int64
	for {
		if err := c.submit(0, off); err != nil {
			return err
		}
		if err := c.r.Flush(); err != nil {
			return err
		}
		n, err := c.await(0)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := c.write(c.slots[0][:n]); err != nil {
			return err
		}
		if n < c.bufSize {
			return nil
		}
		off += int64(n)
	}
}

// syncBatch issues depth reads, collects every completion in submission
// order, writes the chunks in order, and only then moves on.
func (c *copier) syncBatch() error {
	sizes := make([]int, c.depth)
	var off int64
	for {
		if err := c.submitBatch(off); err != nil {
			return err
		}

		// Every slot is awaited even after a failure so no read is left
		// referencing a buffer when the batch is abandoned.
		var readErr error
		for i := range c.depth {
			n, err := c.await(i)
			if err != nil && readErr == nil {
				readErr = err
			}
			sizes[i] = n
		}
		if readErr != nil {
			return readErr
		}

		for i, n := range sizes {
			if n > 0 {
				if err := c.write(c.slots[i][:n]); err != nil {
					return err
				}
			}
			if n < c.bufSize {
				return nil
			}
		}
		off += int64(c.depth * c.bufSize)
	}
}

// pipelined drains a batch into an accumulation buffer, issues the next
// batch, and writes the accumulated bytes while those reads run.
func (c *copier) pipelined() error {
	accum := make([]byte, c.depth*c.bufSize)
	batch := int64(c.depth * c.bufSize)

	if err := c.submitBatch(0); err != nil {
		return err
	}
	next := batch

	for {
		filled := 0
		eof := false
		var readErr error
		for i := range c.depth {
			n, err := c.await(i)
			switch {
			case err != nil:
				if readErr == nil {
					readErr = err
				}
			case eof:
				// Reads past the end return nothing; keep draining.
			default:
				filled += copy(accum[filled:], c.slots[i][:n])
				if n < c.bufSize {
					eof = true
				}
			}
		}
		if readErr != nil {
			return readErr
		}

		if !eof {
			if err := c.submitBatch(next); err != nil {
				return err
			}
			next += batch
		}

		if filled > 0 {
			if err := c.write(accum[:filled]); err != nil {
				return err
			}
		}
		if eof {
			return nil
		}
	}
}

// slidingWindow keeps depth reads in flight. The oldest read is retired,
// written, and its slot immediately resubmitted at the next unrequested
// offset.
func (c *copier) slidingWindow() error {
	if err := c.submitBatch(0); err != nil {
		return err
	}
	next := int64(c.depth * c.bufSize)

	for slot := 0; ; slot = (slot + 1) % c.depth {
		n, err := c.await(slot)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := c.write(c.slots[slot][:n]); err != nil {
			return err
		}
		if n < c.bufSize {
			return nil
		}

		if err := c.submit(slot, next); err != nil {
			return err
		}
		if err := c.r.Flush(); err != nil {
			return err
		}
		next += int64(c.bufSize)
	}
}
