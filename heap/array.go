package heap

// ArrayLen returns the number of elements.
func (e *Engine) ArrayLen(av *Cell) int { return len(av.elems) }

// ArrayFetch returns the element at i without changing its count. With
// lval set, a missing element is created; otherwise nil is returned for it.
func (e *Engine) ArrayFetch(av *Cell, i int, lval bool) *Cell {
	if i < 0 {
		i += len(av.elems)
		if i < 0 {
			return nil
		}
	}
	if i >= len(av.elems) {
		if !lval {
			return nil
		}
		e.arrayExtend(av, i+1)
	}
	el := av.elems[i]
	if el == nil && lval {
		el = e.NewScalar()
		av.elems[i] = el
	}
	return el
}

// ArrayStore places c at i, taking over one reference to c and releasing
// the previous element.
func (e *Engine) ArrayStore(av *Cell, i int, c *Cell) {
	if i < 0 {
		i += len(av.elems)
		if i < 0 {
			e.Dec(c)
			return
		}
	}
	if i >= len(av.elems) {
		e.arrayExtend(av, i+1)
	}
	old := av.elems[i]
	av.elems[i] = c
	e.Dec(old)
}

// ArrayPush appends c, taking over one reference to it.
func (e *Engine) ArrayPush(av *Cell, c *Cell) {
	av.elems = append(av.elems, c)
}

// ArrayShift removes and returns the first element; the caller owns the
// returned reference.
func (e *Engine) ArrayShift(av *Cell) *Cell {
	if len(av.elems) == 0 {
		return nil
	}
	el := av.elems[0]
	av.elems[0] = nil
	av.elems = av.elems[1:]
	return el
}

// ArrayPop removes and returns the last element; the caller owns the
// returned reference.
func (e *Engine) ArrayPop(av *Cell) *Cell {
	n := len(av.elems)
	if n == 0 {
		return nil
	}
	el := av.elems[n-1]
	av.elems[n-1] = nil
	av.elems = av.elems[:n-1]
	return el
}

// ArrayClear releases every element.
func (e *Engine) ArrayClear(av *Cell) {
	elems := av.elems
	av.elems = nil
	for _, el := range elems {
		e.Dec(el)
	}
}

func (e *Engine) arrayExtend(av *Cell, n int) {
	for len(av.elems) < n {
		av.elems = append(av.elems, nil)
	}
}
