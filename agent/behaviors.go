package agent

// OneShot runs its action exactly once
type OneShot struct {
	BehaviorBase
	fn   func(*OneShot)
	done bool
}

// NewOneShot creates a behavior that calls fn once and completes
func NewOneShot(fn func(*OneShot)) *OneShot {
	return &OneShot{fn: fn}
}

func (b *OneShot) Action() {
	b.done = true
	b.fn(b)
}

func (b *OneShot) Done() bool { return b.done }

func (b *OneShot) Reset() {
	b.BehaviorBase.Reset()
	b.done = false
}

// Cyclic runs its action on every scheduling turn in which it is not
// blocked. It never completes on its own.
type Cyclic struct {
	BehaviorBase
	fn func(*Cyclic)
}

// NewCyclic creates a behavior that calls fn on every turn
func NewCyclic(fn func(*Cyclic)) *Cyclic {
	return &Cyclic{fn: fn}
}

func (b *Cyclic) Action() { b.fn(b) }

func (b *Cyclic) Done() bool { return false }

// MessageBehavior handles messages matching its filter. Each action takes at
// most one message from the queue; when none matches the behavior blocks
// until the next delivery. Behaviors with a filter are scheduled ahead of
// filterless ones.
type MessageBehavior struct {
	BehaviorBase
	filter Filter
	fn     func(*MessageBehavior, *Message)
}

// NewMessageBehavior creates a message handler. A nil filter accepts every
// message.
func NewMessageBehavior(filter Filter, fn func(*MessageBehavior, *Message)) *MessageBehavior {
	return &MessageBehavior{filter: filter, fn: fn}
}

func (b *MessageBehavior) Action() {
	a := b.Agent()
	if a == nil {
		return
	}
	if msg := a.dequeue(b.filter); msg != nil {
		b.fn(b, msg)
		return
	}
	b.Block()
}

func (b *MessageBehavior) Done() bool { return false }

// Filter returns the behavior's filter, nil when it accepts everything
func (b *MessageBehavior) Filter() Filter { return b.filter }

func (b *MessageBehavior) filtered() bool { return b.filter != nil }
