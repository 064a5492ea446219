// Package polymorphic provides Polymorphic, a single-owner box holding one
// value of some variant U of a declared type T, with storage drawn from a
// caller-supplied allocator.
//
// A variant is either T itself or a type whose pointer implements the
// interface T:
//
//	type Shape interface{ Area() float64 }
//	type Circle struct{ Radius float64 }
//	func (c *Circle) Area() float64 { return math.Pi * c.Radius * c.Radius }
//
//	c, err := polymorphic.Of[Shape](alloc, Circle{Radius: 2})
//	defer c.Destroy()
//	c.Get().Area()
//
// The box behaves like a value, not a reference. Clone and CopyAssign make
// a deep copy into new storage. Move and MoveAssign hand the storage over
// and leave the source valueless. Assigning one Polymorphic to another with
// = only copies the handle and must not be used to duplicate ownership.
//
// The concrete variant is only known where the box is built. From then on
// the box reaches it through a two-entry table (destroy, clone) bound at
// that point, and exposes it only as T.
//
// Copying a variant uses its Clone method when *U implements Cloner[U], and
// a deep copy otherwise. Destroying it calls Destroy first when *U
// implements Destroyer.
//
// Operations on a valueless box are contract violations. They are caught by
// assertions unless built with the release tag. A Polymorphic must not be
// used from several goroutines without external locking.
package polymorphic
