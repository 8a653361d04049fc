package stream

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoffReadInOrder(t *testing.T) {
	for run := 0; run < 20; run++ {
		h := NewHandoff()

		var want bytes.Buffer
		chunks := make([][]byte, 0, 200)
		for i := 0; i < 200; i++ {
			var p []byte
			if i%5 != 0 {
				p = bytes.Repeat([]byte{byte(i)}, i%17)
			}
			chunks = append(chunks, p)
			want.Write(p)
		}

		go func() {
			for _, p := range chunks {
				assert.NoError(t, h.HandOff(p))
			}
			h.Close()
		}()

		var (
			got  bytes.Buffer
			eofs int
			buf  = make([]byte, 7)
		)
		for {
			n, err := h.Read(buf)
			got.Write(buf[:n])
			if errors.Is(err, io.EOF) {
				eofs++
				break
			}
			require.NoError(t, err)
		}

		assert.Equal(t, want.Bytes(), got.Bytes())
		assert.Equal(t, 1, eofs)
		assert.Equal(t, 0, h.Buffered())
	}
}

func TestHandoffReadAll(t *testing.T) {
	h := NewHandoff()
	require.NoError(t, h.HandOff([]byte("hello ")))
	require.NoError(t, h.HandOff([]byte("world")))
	assert.Equal(t, 11, h.Buffered())
	require.NoError(t, h.Close())

	b, err := io.ReadAll(h)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(b))
}

func TestHandoffBlocksUntilData(t *testing.T) {
	h := NewHandoff()
	done := make(chan string)

	go func() {
		buf := make([]byte, 16)
		n, _ := h.Read(buf)
		done <- string(buf[:n])
	}()

	select {
	case <-done:
		t.Fatal("read returned before data was handed off")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, h.HandOff([]byte("late")))
	assert.Equal(t, "late", <-done)
}

func TestHandoffCloseUnblocksReader(t *testing.T) {
	h := NewHandoff()
	done := make(chan error)

	go func() {
		_, err := h.Read(make([]byte, 4))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	h.Close()

	assert.ErrorIs(t, <-done, io.EOF)
	assert.True(t, h.Closed())
}

func TestHandoffCloseWithError(t *testing.T) {
	boom := errors.New("reset")
	h := NewHandoff()
	require.NoError(t, h.HandOff([]byte("ab")))
	h.CloseWithError(boom)
	h.Close()

	buf := make([]byte, 8)
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(buf[:n]))

	_, err = h.Read(buf)
	assert.ErrorIs(t, err, boom)
}

func TestHandoffAfterClose(t *testing.T) {
	h := NewHandoff()
	h.Close()
	assert.ErrorIs(t, h.HandOff([]byte("x")), ErrStreamClosed)
}

func TestHandoffConcurrentRead(t *testing.T) {
	h := NewHandoff()
	done := make(chan struct{})

	go func() {
		h.Read(make([]byte, 1)) //nolint:errcheck
		close(done)
	}()

	require.Eventually(t, h.reading.Load, time.Second, time.Millisecond)

	_, err := h.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrConcurrentRead)

	h.Close()
	<-done
}

type listenerRecorder struct {
	mu        sync.Mutex
	data      []string
	completed int
	err       error
}

func (r *listenerRecorder) listener() Listener {
	return Listener{
		OnData: func(p []byte) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.data = append(r.data, string(p))
		},
		OnComplete: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed++
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.err = err
		},
	}
}

func TestHandoffListener(t *testing.T) {
	t.Run("replays queued buffers then streams", func(t *testing.T) {
		h := NewHandoff()
		require.NoError(t, h.HandOff([]byte("one")))
		require.NoError(t, h.HandOff([]byte("two")))

		rec := &listenerRecorder{}
		require.NoError(t, h.SetListener(rec.listener()))
		assert.Equal(t, 0, h.Buffered())

		require.NoError(t, h.HandOff([]byte("three")))
		h.Close()

		assert.Equal(t, []string{"one", "two", "three"}, rec.data)
		assert.Equal(t, 1, rec.completed)
	})

	t.Run("partially read buffer is replayed from the cursor", func(t *testing.T) {
		h := NewHandoff()
		require.NoError(t, h.HandOff([]byte("abcdef")))

		buf := make([]byte, 2)
		_, err := h.Read(buf)
		require.NoError(t, err)

		rec := &listenerRecorder{}
		require.NoError(t, h.SetListener(rec.listener()))
		assert.Equal(t, []string{"cdef"}, rec.data)
	})

	t.Run("already closed completes after replay", func(t *testing.T) {
		h := NewHandoff()
		require.NoError(t, h.HandOff([]byte("x")))
		h.Close()

		rec := &listenerRecorder{}
		require.NoError(t, h.SetListener(rec.listener()))
		assert.Equal(t, []string{"x"}, rec.data)
		assert.Equal(t, 1, rec.completed)
	})

	t.Run("error goes to OnError", func(t *testing.T) {
		boom := errors.New("boom")
		h := NewHandoff()
		rec := &listenerRecorder{}
		require.NoError(t, h.SetListener(rec.listener()))
		h.CloseWithError(boom)

		assert.ErrorIs(t, rec.err, boom)
		assert.Equal(t, 0, rec.completed)
	})

	t.Run("reads fail after attach", func(t *testing.T) {
		h := NewHandoff()
		require.NoError(t, h.SetListener(Listener{}))

		_, err := h.Read(make([]byte, 1))
		assert.ErrorIs(t, err, ErrListenerAttached)
		assert.ErrorIs(t, h.SetListener(Listener{}), ErrListenerAttached)
	})

	t.Run("blocked reader is released", func(t *testing.T) {
		h := NewHandoff()
		done := make(chan error)

		go func() {
			_, err := h.Read(make([]byte, 1))
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		require.NoError(t, h.SetListener(Listener{}))
		assert.ErrorIs(t, <-done, ErrListenerAttached)
	})
}

func BenchmarkHandoff(b *testing.B) {
	payload := bytes.Repeat([]byte("x"), 4096)
	buf := make([]byte, 4096)
	h := NewHandoff()

	for b.Loop() {
		h.HandOff(payload) //nolint:errcheck
		h.Read(buf)        //nolint:errcheck
	}
}
