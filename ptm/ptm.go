// Package ptm collects the engine-agnostic names shared across oflf,
// ofwf, and romulus: a minimal Closer contract every engine satisfies, and
// the root-pointer table index range they all expose 100 slots of.
//
// Deliberately NOT provided here: a unifying Engine/Tx interface wrapping
// UpdateTx/ReadTx/GetRoot/PutRoot. Each engine's transaction driver is a
// free generic function (oflf.UpdateTx[R], ofwf.UpdateTx[R],
// romulus.UpdateTx[R], romulus.UpdateTxLR[R]) parameterized over its own
// result type and its own concrete *Tx type; and each engine's persistent
// word type has different load/store semantics (tagged-word CAS for
// oflf/ofwf, byte-range logging for romulus) that a shared interface would
// have to either lose or leak through. Forcing these behind one interface
// would cost every call site a type assertion for no real gain -- the
// three engines are selected once, at startup, not polymorphically
// swapped at a call site -- so this package stays small on purpose.
package ptm

import "errors"

// RootSlots is the number of root-pointer slots every engine exposes via
// its own GetRoot/PutRoot; duplicated as a named constant in oflf, ofwf,
// and romulus (each needs it locally for bounds checks), restated here
// only as documentation of the shared contract.
const RootSlots = 100

// Closer is satisfied by every engine's Close method. oflf.Engine and
// ofwf.Engine never own the heap/durable they're given, so their Close is
// a no-op; romulus.LogEngine and romulus.LREngine own a mapped region and
// actually release it.
type Closer interface {
	Close() error
}

// CloseAll closes every non-nil Closer, continuing past individual
// failures and returning every error it collected joined together (or nil
// if none failed). Intended for cmd/ptmdemo-style callers that open
// several engines and want to tear all of them down on exit regardless of
// which one, if any, fails first.
func CloseAll(cs ...Closer) error {
	var errs []error
	for _, c := range cs {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
