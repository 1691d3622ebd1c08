/*
Package macpool issues hardware addresses from the 24-bit space under a fixed
3-byte vendor prefix.

Allocation is a monotonically increasing counter converted to the textual
address form (aa:bb:cc:xx:yy:zz). Wrap is disallowed: after 2^24 draws the
space is permanently exhausted and allocation fails with
types.ErrAddressSpaceExhausted. Uniqueness among live nodes is structural:
the counter never revisits a value, and addresses retired by node deletion
are never reused, trading address-space density for simplicity and a clean
audit trail.

The counter itself is persisted by the storage layer and advanced inside the
placement transaction; this package carries the pure prefix parsing and
formatting.
*/
package macpool
