// Package agent provides cooperatively scheduled agents that communicate by
// asynchronous message passing.
//
// An Agent owns a message queue and a set of behaviors and is driven by one
// dedicated goroutine for its whole life. Behaviors never run concurrently
// within an agent: the scheduler picks one runnable behavior per turn, runs
// its action to completion and then decides whether it is done, blocked or
// still runnable. When nothing is runnable the agent suspends and reports
// idle to its Container, which lets a discrete-event platform advance its
// virtual clock.
//
// # Lifecycle
//
// Every agent moves through INIT → RUNNING → (IDLE → RUNNING)* →
// FINISHING → FINISHED. Container.Init runs every init hook and waits until
// all agents have parked; Container.Start releases them together.
//
//	p := platform.NewDiscreteEvent()
//	c := agent.NewContainer(p)
//
//	pong := agent.NewAgent(agent.WithInit(func(a *agent.Agent) {
//	    a.Add(agent.NewMessageBehavior(agent.ByPerformative(agent.Request),
//	        func(b *agent.MessageBehavior, msg *agent.Message) {
//	            _ = a.Reply(msg, agent.Inform, "pong")
//	        }))
//	}))
//	c.Add("pong", pong)
//
// # Behaviors
//
// OneShot, Cyclic, Waker, Ticker, Poisson, Backoff, Cron, FSM and
// MessageBehavior cover the usual temporal patterns. Custom behaviors embed
// BehaviorBase and implement Action and Done.
//
//	type counter struct {
//	    agent.BehaviorBase
//	    n int
//	}
//
//	func (c *counter) Action()    { c.n++; c.BlockFor(time.Second) }
//	func (c *counter) Done() bool { return c.n == 10 }
//
// # Messaging
//
// Messages are routed by the container to a single agent or, for topic
// identifiers, to every subscriber. Order is preserved per sender and
// recipient. Receive and Request suspend the calling agent and may only be
// used on its worker goroutine.
package agent
