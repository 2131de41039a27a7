package pushsub

import (
	"context"
	"sync"
)

// Watch subscribes h to sub under id for as long as ctx lives. The returned
// function removes the subscription early; calling it more than once, or after
// ctx is done, has no further effect.
func Watch(ctx context.Context, c Client, sub Subscription, id HandlerID, h Handler) (cancel func()) {
	c.AddServerSubscription(sub, id, h)

	var once sync.Once
	remove := func() {
		once.Do(func() {
			c.RemoveServerSubscription(sub, id)
		})
	}

	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}
}
