package redisx

import "time"

const (
	// Cache order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Mutual exclusion between the timer sweep and the admin-triggered one.
	KeySweepLock = "orders:sweep:lock"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLSweepLock   = 30 * time.Second
)
