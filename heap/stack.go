package heap

// Stack returns the live argument stack. Cells on the stack are borrowed:
// the stack holds no reference of its own.
func (e *Engine) Stack() []*Cell { return e.stack }

// SP returns the stack height.
func (e *Engine) SP() int { return len(e.stack) }

// ST returns the stack slot at absolute index i.
func (e *Engine) ST(i int) *Cell {
	if i < 0 || i >= len(e.stack) {
		return nil
	}
	return e.stack[i]
}

// SetST replaces the stack slot at absolute index i.
func (e *Engine) SetST(i int, c *Cell) { e.stack[i] = c }

// Push appends a borrowed cell to the stack.
func (e *Engine) Push(c *Cell) { e.stack = append(e.stack, c) }

// Extend grows capacity for n more pushes.
func (e *Engine) Extend(n int) {
	if cap(e.stack)-len(e.stack) < n {
		grown := make([]*Cell, len(e.stack), len(e.stack)+n)
		copy(grown, e.stack)
		e.stack = grown
	}
}

// Pop removes and returns the top of the stack.
func (e *Engine) Pop() *Cell {
	if len(e.stack) == 0 {
		return nil
	}
	c := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return c
}

// Truncate drops stack slots above height sp.
func (e *Engine) Truncate(sp int) {
	if sp < len(e.stack) {
		clear(e.stack[sp:])
		e.stack = e.stack[:sp]
	}
}

// PushMark records the current stack height as the start of a call's
// argument list.
func (e *Engine) PushMark() { e.marks = append(e.marks, len(e.stack)) }

// PopMark removes and returns the innermost mark.
func (e *Engine) PopMark() int {
	if len(e.marks) == 0 {
		return 0
	}
	m := e.marks[len(e.marks)-1]
	e.marks = e.marks[:len(e.marks)-1]
	return m
}

// -----------------------------------------------------------------------------
// Temporaries
// -----------------------------------------------------------------------------

// Mortal schedules one reference to c to be released when the current
// temporaries scope closes, and returns c.
func (e *Engine) Mortal(c *Cell) *Cell {
	if c != nil {
		e.tmps = append(e.tmps, c)
	}
	return c
}

// NewMortal allocates an undefined mortal scalar.
func (e *Engine) NewMortal() *Cell { return e.Mortal(e.NewScalar()) }

// Enter opens a temporaries scope.
func (e *Engine) Enter() { e.tmpsFloor = append(e.tmpsFloor, len(e.tmps)) }

// Leave releases the temporaries created since the matching Enter.
func (e *Engine) Leave() {
	if len(e.tmpsFloor) == 0 {
		return
	}
	floor := e.tmpsFloor[len(e.tmpsFloor)-1]
	e.tmpsFloor = e.tmpsFloor[:len(e.tmpsFloor)-1]
	e.freeTmpsTo(floor)
}

// FreeTmps releases temporaries down to the current scope's floor.
func (e *Engine) FreeTmps() {
	floor := 0
	if len(e.tmpsFloor) > 0 {
		floor = e.tmpsFloor[len(e.tmpsFloor)-1]
	}
	e.freeTmpsTo(floor)
}

// ScopeDepth returns the number of open temporaries scopes.
func (e *Engine) ScopeDepth() int { return len(e.tmpsFloor) }

// Tmps returns the number of pending temporaries.
func (e *Engine) Tmps() int { return len(e.tmps) }

func (e *Engine) freeTmpsTo(floor int) {
	for len(e.tmps) > floor {
		c := e.tmps[len(e.tmps)-1]
		e.tmps = e.tmps[:len(e.tmps)-1]
		e.Dec(c)
	}
}
