package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestNewCircularBuffer tests the size parameter check when creating a
// circular buffer.
func TestNewCircularBuffer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		size          int
		expectedError error
	}{
		{
			name:          "zero size",
			size:          0,
			expectedError: errInvalidSize,
		},
		{
			name:          "negative size",
			size:          -1,
			expectedError: errInvalidSize,
		},
		{
			name:          "ok size",
			size:          1,
			expectedError: nil,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewCircularBuffer[int](test.size)
			require.ErrorIs(t, err, test.expectedError)
		})
	}
}

// TestCircularBuffer tests the adding and listing of items in a circular
// buffer.
func TestCircularBuffer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		size          int
		itemCount     int
		expectedItems []int
	}{
		{
			name:          "no elements",
			size:          5,
			itemCount:     0,
			expectedItems: nil,
		},
		{
			name:          "single element",
			size:          5,
			itemCount:     1,
			expectedItems: []int{0},
		},
		{
			name:          "no wrap, not full",
			size:          5,
			itemCount:     4,
			expectedItems: []int{0, 1, 2, 3},
		},
		{
			name:          "no wrap, exactly full",
			size:          5,
			itemCount:     5,
			expectedItems: []int{0, 1, 2, 3, 4},
		},
		{
			// The underlying array should contain {5, 1, 2, 3, 4}.
			name:          "wrap, one over",
			size:          5,
			itemCount:     6,
			expectedItems: []int{1, 2, 3, 4, 5},
		},
		{
			// The underlying array should contain {5, 6, 2, 3, 4}.
			name:          "wrap, two over",
			size:          5,
			itemCount:     7,
			expectedItems: []int{2, 3, 4, 5, 6},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			buffer, err := NewCircularBuffer[int](test.size)
			require.NoError(t, err)

			for i := 0; i < test.itemCount; i++ {
				idx := buffer.Push(i)
				require.EqualValues(t, i, idx)
			}

			require.Equal(t, test.expectedItems, buffer.List())
			require.EqualValues(t, test.itemCount, buffer.Total())

			latest := buffer.Latest()
			if test.itemCount == 0 {
				require.True(t, latest.IsNone())
				return
			}
			require.Equal(
				t, test.itemCount-1, latest.UnwrapOr(-1),
			)
		})
	}
}

// TestCircularBufferGet asserts the retention window of Get, including the
// lower bound clamping before the buffer has wrapped.
func TestCircularBufferGet(t *testing.T) {
	t.Parallel()

	buffer, err := NewCircularBuffer[string](3)
	require.NoError(t, err)

	_, err = buffer.Get(0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	buffer.Push("a")
	buffer.Push("b")

	item, err := buffer.Get(0)
	require.NoError(t, err)
	require.Equal(t, "a", item)

	_, err = buffer.Get(2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	buffer.Push("c")
	buffer.Push("d")

	// Index 0 has been overwritten by "d".
	_, err = buffer.Get(0)
	require.ErrorIs(t, err, ErrNotRetained)
	require.False(t, buffer.Contains(0))

	for idx, want := range map[uint64]string{1: "b", 2: "c", 3: "d"} {
		item, err := buffer.Get(idx)
		require.NoError(t, err)
		require.Equal(t, want, item)
		require.True(t, buffer.Contains(idx))
	}

	_, err = buffer.Get(4)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

// TestCircularBufferCapacityPlusOne pushes one more item than the buffer can
// hold and checks that only the first becomes unreachable.
func TestCircularBufferCapacityPlusOne(t *testing.T) {
	t.Parallel()

	const size = 16

	buffer, err := NewCircularBuffer[int](size)
	require.NoError(t, err)

	for i := 0; i <= size; i++ {
		buffer.Push(i * 10)
	}

	_, err = buffer.Get(0)
	require.ErrorIs(t, err, ErrNotRetained)

	for i := uint64(1); i <= size; i++ {
		item, err := buffer.Get(i)
		require.NoError(t, err)
		require.EqualValues(t, i*10, item)
	}
}

// TestCircularBufferFindBy checks that FindBy reconstructs external indices
// on both sides of the write head.
func TestCircularBufferFindBy(t *testing.T) {
	t.Parallel()

	buffer, err := NewCircularBuffer[int](4)
	require.NoError(t, err)

	require.True(t, buffer.FindBy(func(int) bool { return true }).IsNone())

	// Physical layout after these pushes is {4, 5, 2, 3} with the write
	// head at slot 2.
	for i := 0; i < 6; i++ {
		buffer.Push(i)
	}

	for want := 2; want < 6; want++ {
		idx := buffer.FindBy(func(item int) bool {
			return item == want
		})
		require.Equal(t, uint64(want), idx.UnwrapOr(0))
	}

	// Overwritten items are never found.
	idx := buffer.FindBy(func(item int) bool { return item == 1 })
	require.True(t, idx.IsNone())

	// With duplicates the newest match wins.
	buffer.Push(3)
	idx = buffer.FindBy(func(item int) bool { return item == 3 })
	require.Equal(t, uint64(6), idx.UnwrapOr(0))
}

// TestCircularBufferFindByNotWrapped makes sure empty slots are never matched
// before the buffer has been filled once.
func TestCircularBufferFindByNotWrapped(t *testing.T) {
	t.Parallel()

	buffer, err := NewCircularBuffer[int](8)
	require.NoError(t, err)

	buffer.Push(7)
	buffer.Push(9)

	// The zero value lives in the unused slots and must not match.
	idx := buffer.FindBy(func(item int) bool { return item == 0 })
	require.True(t, idx.IsNone())

	idx = buffer.FindBy(func(item int) bool { return item == 9 })
	require.Equal(t, uint64(1), idx.UnwrapOr(0))
}

// TestRestoreCircularBuffer checks that a buffer rebuilt from its slots and
// total behaves exactly like the original.
func TestRestoreCircularBuffer(t *testing.T) {
	t.Parallel()

	_, err := RestoreCircularBuffer[int](3, nil)
	require.ErrorIs(t, err, errInvalidSize)

	buffer, err := NewCircularBuffer[int](5)
	require.NoError(t, err)
	for i := 0; i < 12; i++ {
		buffer.Push(i)
	}

	restored, err := RestoreCircularBuffer(buffer.Total(), buffer.Slots())
	require.NoError(t, err)
	require.Equal(t, buffer, restored)

	require.Equal(t, buffer.Push(100), restored.Push(100))
	require.Equal(t, buffer.List(), restored.List())
}

// TestCircularBufferProperties checks the retention window and FindBy index
// reconstruction against a plain slice model.
func TestCircularBufferProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(1, 32).Draw(rt, "size")
		count := rapid.IntRange(0, 200).Draw(rt, "count")

		buffer, err := NewCircularBuffer[int](size)
		require.NoError(rt, err)

		// Every item equals its external index, so the model is the
		// identity function over [0, count).
		for i := 0; i < count; i++ {
			require.EqualValues(rt, i, buffer.Push(i))
		}

		lookup := rapid.IntRange(0, count+size).Draw(rt, "lookup")
		item, err := buffer.Get(uint64(lookup))

		switch {
		case lookup >= count:
			require.ErrorIs(rt, err, ErrIndexOutOfRange)

		case lookup < count-size:
			require.ErrorIs(rt, err, ErrNotRetained)

		default:
			require.NoError(rt, err)
			require.Equal(rt, lookup, item)

			found := buffer.FindBy(func(item int) bool {
				return item == lookup
			})
			require.Equal(rt, uint64(lookup), found.UnwrapOr(0))
		}
	})
}
