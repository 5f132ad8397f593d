// Package swrcache is an in-process stale-while-revalidate cache for keyed reads,
// with optimistic writes and change-feed driven invalidation.
//
// Components:
//   - Store: entries keyed by string with subscriber counts and a GC grace period.
//   - Coordinator: one attempt chain per key with dedup, retries and generation
//     tagging, so a slow superseded response never overwrites a newer one.
//   - Invalidation: exact or substring pattern; marks stale, refetches subscribed keys.
//   - RunOptimistic: multi-key speculative writes with full rollback, serialized per key.
//   - Preload: best-effort warm-up.
//   - Cold tier: evicted entries framed into a Provider (Ristretto, BigCache, or
//     Redis shared between processes together with genstore.RedisGenStore).
//
// Keys:
//
//	keys.Join("groups", "g1", "board")                          /groups/g1/board
//	keys.Build("attendance", map[string]string{"schedule": "s1"}) attendance::schedule=s1
//
// Usage:
//
//	c, _ := swrcache.New(swrcache.Options{})
//	h, _ := swrcache.Watch(c, "/groups/g1/board", fetchBoard, swrcache.WatchOptions[Board]{})
//	defer h.Close()
//	st := h.Value() // cached data now, fresh data once the fetch settles
//
//	err := c.RunOptimistic(ctx,
//	    []swrcache.Target{swrcache.Optimistic("/groups/g1/board", addPost(p))},
//	    func(ctx context.Context) error { return api.CreatePost(ctx, p) },
//	    swrcache.MutateOptions{RevalidateAfter: true})
package swrcache
