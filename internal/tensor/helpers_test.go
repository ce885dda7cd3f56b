package tensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-tensor/internal/device"
)

// requireFatal runs fn and asserts it aborts with an InvariantError wrapping want.
func requireFatal(t *testing.T, want error, fn func()) *InvariantError {
	t.Helper()
	var got *InvariantError
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a fatal %v", want)
			err, ok := r.(error)
			require.True(t, ok, "panic value %v is not an error", r)
			require.True(t, errors.As(err, &got), "panic value %T is not an InvariantError", r)
		}()
		fn()
	}()
	require.ErrorIs(t, got, want)
	return got
}

// mockStore is a linear store whose map lifecycle is recorded.
type mockStore struct {
	mock.Mock
	data   []byte
	onHost bool
}

var _ device.LinearStore = (*mockStore)(nil)

func newMockStore(size int, onHost bool) *mockStore {
	return &mockStore{data: make([]byte, size), onHost: onHost}
}

func (m *mockStore) Kind() device.Kind     { return device.KindLinear }
func (m *mockStore) Capacity() int         { return len(m.data) }
func (m *mockStore) OnHost() bool          { return m.onHost }
func (m *mockStore) Offset() int           { return 0 }
func (m *mockStore) Bytes() []byte         { return m.data }
func (m *mockStore) MutableBytes() []byte  { return m.data }
func (m *mockStore) Resize(size int) error { return device.ErrSliceResize }
func (m *mockStore) Clear()                { clear(m.data) }

func (m *mockStore) Map() (device.Pitch, error) {
	args := m.Called()
	p, _ := args.Get(0).(device.Pitch)
	return p, args.Error(1)
}

func (m *mockStore) Unmap() error {
	return m.Called().Error(0)
}

func (m *mockStore) Release() error {
	return m.Called().Error(0)
}
