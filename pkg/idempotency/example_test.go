package idempotency

import (
	"context"
	"fmt"
	"time"
)

func ExampleGuard_Acquire() {
	ctx := context.Background()
	guard, _ := NewGuard(newFakeStore(), 2*time.Minute)

	handle := func(id string) string {
		ok, _ := guard.Acquire(ctx, "webhook:shopify", id)
		if !ok {
			return "in flight"
		}
		return "processing " + id
	}

	fmt.Println(handle("order-1001"))
	fmt.Println(handle("order-1001"))
	// Output:
	// processing order-1001
	// in flight
}
