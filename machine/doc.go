// Package machine runs hierarchical state machines compiled by package
// graph.
//
// A Machine owns the active configuration (one cursor per region), the
// extended state, the history tracker, the join accumulators and the event
// queue. Events are processed run-to-completion: whoever submits an event
// while no cycle is running becomes the executor and drains the queue,
// including the completion events and re-injected deferred events each
// step produces. Concurrent submitters enqueue and return.
//
//	g, err := graph.Compile(def)
//	if err != nil {
//		return err
//	}
//	m := machine.New(g, machine.WithLogger(logger))
//	if err := m.Start(ctx); err != nil {
//		return err
//	}
//	m.SendEvent(ctx, statemachine.NewEvent("E1"))
package machine
