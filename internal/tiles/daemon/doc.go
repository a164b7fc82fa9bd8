// Package daemon provides change notification for the tile store.
//
// Consumers never receive a diff. Every notification is the single event
// Invalidate, meaning "something in the collection changed, re-fetch it".
//
// # Architecture
//
// The package consists of three components:
//
//   - Notifier: in-process fan-out hub with debounce. Writers call Publish,
//     subscribers receive Invalidate once per quiet period.
//   - FileWatcher: fsnotify-based watcher over the database directory. It
//     reports writes to the database file and its WAL, which is how writes
//     made by other tileboard processes become visible here.
//   - Daemon: glues a FileWatcher to a Notifier for the lifetime of a
//     repository connection.
//
// # Usage
//
//	n := daemon.NewNotifier(100 * time.Millisecond)
//	defer n.Close()
//
//	unsubscribe := n.Subscribe(func(ev daemon.Event) {
//	    // ev is always daemon.Invalidate: refetch everything
//	})
//	defer unsubscribe()
//
//	d, err := daemon.New("data/tiles.db", n, nil)
//	if err != nil {
//	    return err
//	}
//	if err := d.Start(); err != nil {
//	    return err
//	}
//	defer d.Stop()
//
// # Delivery
//
// Listeners run on the notifier's timer goroutine, one after another. A
// listener that blocks delays the others, so long work (a full re-fetch)
// should be handed off or kept short. Events published during a debounce
// window are coalesced into one delivery.
package daemon
