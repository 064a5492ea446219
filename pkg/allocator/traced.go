package allocator

import (
	"fmt"
	"unsafe"

	"github.com/sirupsen/logrus"
)

// Traced decorates an allocator with debug logging of every allocation and
// release. The zero value logs to the standard logrus logger.
type Traced[A Allocator[A]] struct {
	inner A
	log   logrus.FieldLogger
}

// NewTraced wraps inner. A nil log uses the standard logrus logger.
func NewTraced[A Allocator[A]](inner A, log logrus.FieldLogger) Traced[A] {
	if log == nil {
		log = logrus.StandardLogger()
	}

	return Traced[A]{
		inner: inner,
		log:   log,
	}
}

func (t Traced[A]) Allocate(l Layout) (unsafe.Pointer, error) {
	entry := t.logger().WithFields(logrus.Fields{
		"type": l.Type.String(),
		"size": l.Size,
	})

	p, err := t.inner.Allocate(l)
	if err != nil {
		entry.WithError(err).Debug("allocation failed")
		return nil, err
	}

	entry.WithField("addr", fmt.Sprintf("%p", p)).Debug("allocated")
	return p, nil
}

func (t Traced[A]) Deallocate(p unsafe.Pointer, l Layout) {
	t.inner.Deallocate(p, l)
	t.logger().WithFields(logrus.Fields{
		"type": l.Type.String(),
		"size": l.Size,
		"addr": fmt.Sprintf("%p", p),
	}).Debug("released")
}

func (t Traced[A]) logger() logrus.FieldLogger {
	if t.log == nil {
		return logrus.StandardLogger()
	}
	return t.log
}

func (t Traced[A]) Equal(other Traced[A]) bool {
	return t.inner.Equal(other.inner)
}

func (t Traced[A]) Traits() Traits {
	return t.inner.Traits()
}

func (t Traced[A]) SelectOnCopy() Traced[A] {
	return Traced[A]{
		inner: SelectOnCopy(t.inner),
		log:   t.log,
	}
}

func (t Traced[A]) Inner() A {
	return t.inner
}

// Enforce that Traced implements Allocator
var _ Allocator[Traced[Native]] = Traced[Native]{}
