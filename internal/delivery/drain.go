package delivery

import (
	"context"

	"fieldsync/internal/store"
)

// Drain runs one pass over every outbound queue of st, forms first.
func Drain(ctx context.Context, st *store.Store, send Sender, opts Options) Result {
	var total Result
	if !st.Available() {
		return total
	}
	for _, q := range st.Queues() {
		if ctx.Err() != nil {
			break
		}
		total.Add(ProcessQueue(ctx, q, send, opts))
	}
	return total
}
