// Package watcher keeps the document index current while the server runs.
//
// A Watcher reports create, modify and delete events for supported document
// files under the documents root. It uses fsnotify and falls back to polling
// when fsnotify cannot be initialised. Events are debounced so that an editor
// saving a file several times, or a copy landing in pieces, produces a single
// batch.
//
// A Reindexer consumes those batches and runs incremental index passes:
//
//	w, err := watcher.New(watcher.Options{Filter: registry.Supported})
//	if err != nil {
//	    return err
//	}
//	go w.Start(ctx, root)
//	return watcher.NewReindexer(docs).Run(ctx, w.Events())
package watcher
