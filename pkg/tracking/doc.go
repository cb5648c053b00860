// Package tracking implements tracking-number lookups against the provider.
//
// An Executor resolves a single tracking number through a bounded memory
// cache, an optional Redis tier, an in-flight registry that coalesces
// concurrent lookups of the same number, and finally the provider client.
// QueryBatch drives the executor over many numbers in fixed-size chunks,
// keeps results in input order and reports progress after every chunk.
//
// # Basic Usage
//
//	provider, _ := client.New(client.DefaultConfig("https://proxy.example/api/tracking"))
//	exec, _ := tracking.New(tracking.DefaultConfig(), provider)
//
//	result, err := exec.Query(ctx, " JobNum: PGS123456 ", tracking.QueryOptions{})
//
//	results, err := exec.QueryBatch(ctx, numbers, tracking.BatchOptions{
//		Concurrency: 5,
//		OnProgress: func(completed, total int) {
//			fmt.Printf("%d/%d\n", completed, total)
//		},
//	})
//
// Cached results are shared between callers and must be treated as read-only.
package tracking
