package live

// Value is an opaque element stored in an Array: a scalar, string, map,
// or nested array. Deep equality of values is never required by this
// package.
type Value interface{}

// ChangeCallback is notified once per successful Array mutation.
type ChangeCallback func(Change)

// Array is the mutable ordered sequence of opaque values exposed to
// data-binding. It is reference-shareable: multiple subscribers (see
// Log) may register callbacks against the same Array.
type Array struct {
	values    []Value
	token     int
	callbacks map[int]ChangeCallback
}

// NewArray constructs an Array seeded with the given values. No change is
// emitted for the initial contents; callers that need subscribers to see
// the seed data should build the ChangeLog only after their own initial
// snapshot has been taken, exactly as IndexProvider/TokenProvider do.
func NewArray(values []Value) *Array {
	seeded := make([]Value, len(values))
	copy(seeded, values)
	return &Array{
		values: seeded,
		token:  100,
	}
}

// Size returns the number of elements currently in the array.
func (a *Array) Size() int { return len(a.values) }

// At returns the value at position, or nil if position is out of bounds.
func (a *Array) At(position int) Value {
	if position < 0 || position >= len(a.values) {
		return nil
	}
	return a.values[position]
}

// Values returns the live backing slice. Callers must not retain or mutate
// it; it is only valid until the next mutating call on the Array.
func (a *Array) Values() []Value { return a.values }

// AddChangeCallback registers cb to be invoked once for every subsequent
// successful mutation and returns a token that can be used to remove it.
func (a *Array) AddChangeCallback(cb ChangeCallback) int {
	if a.callbacks == nil {
		a.callbacks = make(map[int]ChangeCallback)
	}
	token := a.token
	a.token++
	a.callbacks[token] = cb
	return token
}

// RemoveChangeCallback unregisters a callback previously returned by
// AddChangeCallback. Removing an already-removed or unknown token is a
// no-op.
func (a *Array) RemoveChangeCallback(token int) {
	delete(a.callbacks, token)
}

func (a *Array) broadcast(c Change) {
	for _, cb := range a.callbacks {
		cb(c)
	}
}

// Clear empties the array and emits a single Replace change.
func (a *Array) Clear() {
	a.values = nil
	a.broadcast(replaceChange())
}

// Insert places value at position, which must be in [0, Size()]. Returns
// false and emits nothing if position is out of range.
func (a *Array) Insert(position int, value Value) bool {
	return a.InsertRange(position, []Value{value})
}

// InsertRange places the values in it starting at position, which must be
// in [0, Size()]. A single Insert change covering the whole range is
// emitted. Returns false and emits nothing if position is out of range or
// it is empty.
func (a *Array) InsertRange(position int, it []Value) bool {
	if len(it) == 0 || position < 0 || position > len(a.values) {
		return false
	}
	grown := make([]Value, 0, len(a.values)+len(it))
	grown = append(grown, a.values[:position]...)
	grown = append(grown, it...)
	grown = append(grown, a.values[position:]...)
	a.values = grown
	a.broadcast(insertChange(position, len(it)))
	return true
}

// Remove deletes the n elements starting at position, which together must
// fall within [0, Size()). Even when this empties the array, a Remove
// change is emitted rather than a Replace: Replace is reserved for Clear.
func (a *Array) Remove(position int, n int) bool {
	if n <= 0 || position < 0 || position+n > len(a.values) {
		return false
	}
	remaining := make([]Value, 0, len(a.values)-n)
	remaining = append(remaining, a.values[:position]...)
	remaining = append(remaining, a.values[position+n:]...)
	a.values = remaining
	a.broadcast(removeChange(position, n))
	return true
}

// Update overwrites the value at position, which must be in [0, Size()).
func (a *Array) Update(position int, value Value) bool {
	return a.UpdateRange(position, []Value{value})
}

// UpdateRange overwrites len(it) values starting at position, which
// together must fall within [0, Size()). A single Update change covering
// the whole range is emitted.
func (a *Array) UpdateRange(position int, it []Value) bool {
	count := len(it)
	if count == 0 || position < 0 || position+count > len(a.values) {
		return false
	}
	copy(a.values[position:position+count], it)
	a.broadcast(updateChange(position, count))
	return true
}

// PushBack appends value to the end of the array.
func (a *Array) PushBack(value Value) bool {
	return a.InsertRange(len(a.values), []Value{value})
}

// PushBackRange appends the values in it to the end of the array.
func (a *Array) PushBackRange(it []Value) bool {
	return a.InsertRange(len(a.values), it)
}
