package tasks

import "github.com/wippyai/amx-runtime/amx"

type combinator struct {
	pool   *Pool
	result *Task
	inputs []*Task
	ids    []HandlerID
	done   bool
}

func newCombinator(p *Pool, inputs []*Task) (*combinator, error) {
	result, err := p.New()
	if err != nil {
		return nil, err
	}
	c := &combinator{
		pool:   p,
		result: result,
		inputs: inputs,
		ids:    make([]HandlerID, len(inputs)),
	}
	for _, in := range inputs {
		p.Acquire(in)
	}
	return c, nil
}

// finish unregisters the remaining handlers, drops the input references
// and resolves the result from t.
func (c *combinator) finish(t *Task, value amx.Cell) {
	if c.done {
		return
	}
	c.done = true
	for i, in := range c.inputs {
		if c.ids[i] != 0 {
			in.Unregister(c.ids[i])
		}
	}
	if t.Faulted() {
		c.result.Fail(t.Code())
	} else {
		c.result.Complete(value)
	}
	for _, in := range c.inputs {
		c.pool.Release(in)
	}
}

// Any returns a task that completes with the id of the first input to
// resolve. A faulted winner faults the result with the same code. Any of
// no inputs completes immediately with zero.
func Any(p *Pool, inputs ...*Task) (*Task, error) {
	c, err := newCombinator(p, inputs)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		c.result.Complete(0)
		return c.result, nil
	}
	for i, in := range inputs {
		if !in.Pending() {
			c.finish(in, in.ID())
			break
		}
		c.ids[i] = in.OnDone(func(t *Task) { c.finish(t, t.ID()) })
	}
	return c.result, nil
}

// All returns a task that completes with the id of the last input to
// resolve once every input completed. The first faulted input faults the
// result with the same code. All of no inputs completes immediately with
// zero.
func All(p *Pool, inputs ...*Task) (*Task, error) {
	c, err := newCombinator(p, inputs)
	if err != nil {
		return nil, err
	}
	check := func(t *Task) {
		if t.Faulted() {
			c.finish(t, 0)
			return
		}
		for _, in := range c.inputs {
			if in.Pending() {
				return
			}
		}
		c.finish(t, t.ID())
	}
	if len(inputs) == 0 {
		c.result.Complete(0)
		return c.result, nil
	}
	for i, in := range inputs {
		if c.done {
			break
		}
		if !in.Pending() {
			if in.Faulted() || i == len(inputs)-1 {
				check(in)
			}
			continue
		}
		c.ids[i] = in.OnDone(check)
	}
	return c.result, nil
}
