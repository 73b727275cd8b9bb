// Package flexrc provides reference-counted containers whose handles come in
// two flavors over one shared allocation.
//
// A Local handle is confined to one goroutine and counts with plain loads
// and stores. A Shared handle may be passed between goroutines and counts
// with sync/atomic. Handles of both flavors point at the same record
// (metadata block plus payload), and a handle can be converted to the other
// flavor without copying the payload whenever the counting scheme allows it.
//
// # Quick Start
//
//	rc := flexrc.NewLocalHybrid(42)
//	defer rc.Drop()
//
//	shared := rc.ToOther()       // cheap: same record, no copy
//	go func() {
//		defer shared.Drop()
//		fmt.Println(shared.Get()) // 42
//	}()
//
// # Schemes
//
// Three counting schemes are provided, each with a Local and a Shared
// flavor operating on the same metadata block type:
//
//	Scheme        Handles                              Local->Shared  Shared->Local
//	independent   LocalRc, SharedRc                    when unique    when unique
//	hybrid        LocalHybridRc, SharedHybridRc        always         while no Local handle exists
//	tracked       LocalTrackedRc, SharedTrackedRc      always         by the owning goroutine, or
//	                                                                  while no Local handle exists
//
// The independent scheme keeps a single counter word, so a record is either
// all-Local or all-Shared. The hybrid scheme keeps two counters side by side
// plus a presence bit, so both flavors coexist. The tracked scheme adds the
// identity of the goroutine owning the Local side, which allows the owner to
// convert Shared handles back to Local any number of times.
//
// # Handles
//
// Handles are pointers. Copying a *FlexRc aliases the handle, not the
// record's count: use Clone to obtain a new handle and Drop to give one up.
// Drop is idempotent per handle; any other method on a dropped handle panics
// with ErrDropped.
//
// When the last handle of either flavor drops, the payload's Release method
// runs if *T implements Releaser, and the payload is cleared.
//
// # Mutation
//
// Get returns the payload by value. Mutation goes through GetMut, which
// succeeds only while the handle is the sole reference to its record.
// Slice payloads returned by Get share storage with the record and must be
// treated as read-only.
//
// # Configuration
//
// Counter width of the independent scheme is chosen at build time:
//
//	go build                     # 64-bit counters (default)
//	go build -tags flexrc_narrow # 32-bit counters, half the metadata
//
// Thread tracking is chosen by type (the Tracked aliases).
//
// # Fatal conditions
//
// Reference count overflow and goroutine identity exhaustion are logged at
// Fatal level through the logger installed with SetLogger and terminate the
// process. Continuing would free a record with live handles.
package flexrc
