// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

// Kind identifies the variant of a deferred action.
type Kind uint8

const (
	// KindCallback is a deferred cleanup callback with no owned target.
	KindCallback Kind = iota + 1
	// KindDestroy is a deferred destruction of a specific retired value.
	KindDestroy
)

// Deferred is a single queued cleanup action awaiting safe execution.
//
// Actions are structured rather than opaque closures so bag contents stay
// inspectable: a Destroy action records the retired value it will free, a
// Callback action records only the effect. Both variants flow through the
// same bag and drain path and carry the same safety guarantee.
type Deferred struct {
	kind   Kind
	target any
	run    func()
}

// NewCallback builds a Callback-kind deferred action.
func NewCallback(fn func()) Deferred {
	return Deferred{kind: KindCallback, run: fn}
}

// NewDestroy builds a Destroy-kind deferred action. target is the retired
// value whose destruction destroy performs.
func NewDestroy(target any, destroy func()) Deferred {
	return Deferred{kind: KindDestroy, target: target, run: destroy}
}

// Kind returns the action's variant.
func (d Deferred) Kind() Kind {
	return d.kind
}

// Target returns the retired value a Destroy action will free, or nil for
// a Callback action.
func (d Deferred) Target() any {
	return d.target
}

// invoke executes the action. Called exactly once, by the drain that
// claimed the action's bag.
func (d Deferred) invoke() {
	if d.run != nil {
		d.run()
	}
}
