package tensor

import (
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-tensor/internal/device"
)

// Ownership records who frees a tensor's store.
type Ownership int

const (
	// Borrowed stores belong to whoever supplied them.
	Borrowed Ownership = iota
	// Owned stores are released by the tensor.
	Owned
)

func (o Ownership) String() string {
	if o == Owned {
		return "owned"
	}
	return "borrowed"
}

// storeHandle is the store a tensor reads and writes through. At most one of
// linear and image is set; own applies to whichever is, and to stores the
// tensor creates later.
type storeHandle struct {
	linear device.LinearStore
	image  device.ImageStore
	own    Ownership
}

func (h *storeHandle) store() device.Store {
	switch {
	case h.linear != nil:
		return h.linear
	case h.image != nil:
		return h.image
	default:
		return nil
	}
}

func (h *storeHandle) empty() bool {
	return h.linear == nil && h.image == nil
}

// bind attaches s, choosing the variant from its kind.
func (t *Tensor) bind(s device.Store, own Ownership) {
	t.handle = storeHandle{own: own}
	if s == nil {
		return
	}
	switch s.Kind() {
	case device.KindImage:
		img, ok := s.(device.ImageStore)
		t.check(ok, ErrStore, "store of kind %s does not implement ImageStore", s.Kind())
		t.handle.image = img
	default:
		lin, ok := s.(device.LinearStore)
		t.check(ok, ErrStore, "store of kind %s does not implement LinearStore", s.Kind())
		t.handle.linear = lin
	}
}

// dropStore detaches the current store, releasing it only when owned.
// Every path that replaces or discards a store goes through here.
func (t *Tensor) dropStore() {
	s := t.handle.store()
	if s != nil && t.handle.own == Owned {
		if err := s.Release(); err != nil {
			log.Warn().Err(err).Str("label", t.label).Msg("Failed to release tensor store")
		}
	}
	t.handle.linear = nil
	t.handle.image = nil
}
