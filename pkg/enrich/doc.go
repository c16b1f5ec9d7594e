// Package enrich augments search results with registry metadata.
//
// A [Pipeline] consults the cache for each result and sends the misses to a
// fixed pool of workers that call a [Source]. Enriched records are written
// back to the cache on a best-effort basis. When a task fails, its original
// search record is returned in its place, so a batch always has one output
// per input:
//
//	source := enrich.NewRegistrySource(registry,
//	    enrich.WithDownloads(registry, nil),
//	)
//	p := enrich.NewPipeline(source, store, enrich.Options{})
//	batch := p.Run(ctx, results.Items)
//	if batch.Partial() {
//	    logger.Warn("some packages were not enriched", "failed", batch.Failed)
//	}
//
// Concurrent requests for the same package, within one batch or across
// batches sharing a pipeline, are collapsed into one source call.
package enrich
