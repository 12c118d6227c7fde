package session

import (
	"bytes"
	"io"
	"log"
	"math/rand"
	"testing"

	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
	"github.com/stretchr/testify/require"
)

type recordingController struct {
	unlocks int
}

func (c *recordingController) RequestUnlock() {
	c.unlocks++
}

func newTestLoop(t *testing.T, seed string) (*Loop, *recordingController, *[]surface.ID) {
	t.Helper()

	controller := &recordingController{}
	var redrawn []surface.ID
	loop := NewLoop(controller, Config{
		Seed:   seed,
		Logger: log.New(io.Discard, "", 0),
		Redraw: func(id surface.ID) {
			redrawn = append(redrawn, id)
		},
	})

	return loop, controller, &redrawn
}

func TestLoopStartsRunning(t *testing.T) {
	loop, _, _ := newTestLoop(t, "")
	require.Equal(t, Running, loop.Phase())
	require.Empty(t, loop.Surfaces())
}

func TestLoopCounterIsIncrementsMinusDecrements(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 20; round++ {
		loop, _, _ := newTestLoop(t, "")
		loop.Dispatch(SurfaceOpened{ID: 1})

		k, m := rng.Intn(50), rng.Intn(50)
		msgs := make([]Message, 0, k+m)
		for i := 0; i < k; i++ {
			msgs = append(msgs, IncrementRequested{ID: 1})
		}
		for i := 0; i < m; i++ {
			msgs = append(msgs, DecrementRequested{ID: 1})
		}
		rng.Shuffle(len(msgs), func(i, j int) { msgs[i], msgs[j] = msgs[j], msgs[i] })

		for _, msg := range msgs {
			loop.Dispatch(msg)
		}

		s, ok := loop.Render(1)
		require.True(t, ok)
		require.Equal(t, k-m, s.Counter, "k=%d m=%d", k, m)
	}
}

func TestLoopSurfacesDoNotShareState(t *testing.T) {
	loop, _, _ := newTestLoop(t, "")
	loop.Dispatch(SurfaceOpened{ID: 1})
	loop.Dispatch(SurfaceOpened{ID: 2})
	loop.Dispatch(DecrementRequested{ID: 2})

	before, _ := loop.Render(2)

	loop.Dispatch(IncrementRequested{ID: 1})
	loop.Dispatch(IncrementRequested{ID: 1})
	loop.Dispatch(TextChanged{ID: 1, Text: "a"})

	after, _ := loop.Render(2)
	require.Equal(t, before, after)

	a, _ := loop.Render(1)
	require.Equal(t, surface.State{Counter: 2, Text: "a"}, a)
}

func TestLoopTextChangedLastWriteWins(t *testing.T) {
	loop, _, _ := newTestLoop(t, "")
	loop.Dispatch(SurfaceOpened{ID: 1})
	loop.Dispatch(SurfaceOpened{ID: 2})

	loop.Dispatch(TextChanged{ID: 1, Text: "first"})
	loop.Dispatch(TextChanged{ID: 2, Text: "other"})
	loop.Dispatch(TextChanged{ID: 1, Text: "second"})

	s, _ := loop.Render(1)
	require.Equal(t, "second", s.Text)
	s, _ = loop.Render(2)
	require.Equal(t, "other", s.Text)
}

func TestLoopOpenIsIdempotent(t *testing.T) {
	loop, _, redrawn := newTestLoop(t, "seed")
	loop.Dispatch(SurfaceOpened{ID: 1})
	once, _ := loop.Render(1)

	loop.Dispatch(SurfaceOpened{ID: 1})
	twice, _ := loop.Render(1)

	require.Equal(t, once, twice)
	require.Equal(t, []surface.ID{1}, loop.Surfaces())
	require.Equal(t, []surface.ID{1}, *redrawn)
}

func TestLoopMutationBeforeOpenCreatesState(t *testing.T) {
	for _, tc := range []struct {
		name string
		msg  Message
		want surface.State
	}{
		{"increment", IncrementRequested{ID: 9}, surface.State{Counter: 1, Text: "seed"}},
		{"decrement", DecrementRequested{ID: 9}, surface.State{Counter: -1, Text: "seed"}},
		{"text", TextChanged{ID: 9, Text: "early"}, surface.State{Text: "early"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			loop, _, _ := newTestLoop(t, "seed")

			loop.Dispatch(tc.msg)
			s, ok := loop.Render(9)
			require.True(t, ok)
			require.Equal(t, tc.want, s)

			// The late open notification keeps the early input.
			loop.Dispatch(SurfaceOpened{ID: 9})
			s, _ = loop.Render(9)
			require.Equal(t, tc.want, s)
		})
	}
}

func TestLoopUnlockCallsControllerOnce(t *testing.T) {
	for _, surfaces := range []int{0, 1, 4} {
		loop, controller, _ := newTestLoop(t, "")
		for i := 0; i < surfaces; i++ {
			loop.Dispatch(SurfaceOpened{ID: surface.ID(i + 1)})
			loop.Dispatch(IncrementRequested{ID: surface.ID(i + 1)})
		}

		loop.Dispatch(UnlockRequested{})
		loop.Dispatch(UnlockRequested{})
		loop.Dispatch(UnlockRequested{})

		require.Equal(t, 1, controller.unlocks, "surfaces=%d", surfaces)
		require.Equal(t, Unlocking, loop.Phase())
	}
}

func TestLoopUnlockDoesNotTouchState(t *testing.T) {
	loop, _, redrawn := newTestLoop(t, "")
	loop.Dispatch(SurfaceOpened{ID: 1})
	loop.Dispatch(IncrementRequested{ID: 1})
	*redrawn = nil

	loop.Dispatch(UnlockRequested{})

	s, ok := loop.Render(1)
	require.True(t, ok)
	require.Equal(t, 1, s.Counter)
	require.Empty(t, *redrawn)
}

func TestLoopDropsMutationsAfterUnlock(t *testing.T) {
	loop, _, _ := newTestLoop(t, "")
	loop.Dispatch(SurfaceOpened{ID: 1})
	loop.Dispatch(UnlockRequested{})

	loop.Dispatch(IncrementRequested{ID: 1})
	loop.Dispatch(TextChanged{ID: 1, Text: "late"})
	loop.Dispatch(SurfaceOpened{ID: 2})

	s, _ := loop.Render(1)
	require.Equal(t, surface.State{}, s)
	_, ok := loop.Render(2)
	require.False(t, ok)
}

func TestLoopDropsNilMessage(t *testing.T) {
	loop, controller, redrawn := newTestLoop(t, "")
	loop.Dispatch(SurfaceOpened{ID: 1})
	*redrawn = nil

	require.NotPanics(t, func() {
		loop.Dispatch(nil)
	})

	require.Equal(t, Running, loop.Phase())
	require.Zero(t, controller.unlocks)
	require.Empty(t, *redrawn)
	s, ok := loop.Render(1)
	require.True(t, ok)
	require.Equal(t, surface.State{}, s)
}

func TestLoopTerminate(t *testing.T) {
	loop, controller, _ := newTestLoop(t, "")
	loop.Dispatch(UnlockRequested{})
	loop.Terminate()
	loop.Terminate()

	require.Equal(t, Terminated, loop.Phase())

	loop.Dispatch(UnlockRequested{})
	require.Equal(t, 1, controller.unlocks)
}

func TestLoopSurfaceClosed(t *testing.T) {
	loop, _, redrawn := newTestLoop(t, "")
	loop.Dispatch(SurfaceOpened{ID: 1})
	loop.Dispatch(TextChanged{ID: 1, Text: "gone soon"})
	loop.Dispatch(SurfaceClosed{ID: 1})

	_, ok := loop.Render(1)
	require.False(t, ok)
	require.Equal(t, []surface.ID{1, 1, 1}, *redrawn)

	// Closing an unknown surface is not a change.
	loop.Dispatch(SurfaceClosed{ID: 5})
	require.Len(t, *redrawn, 3)
}

func TestLoopRawHostEventIsIgnored(t *testing.T) {
	var buf bytes.Buffer
	controller := &recordingController{}
	loop := NewLoop(controller, Config{Logger: log.New(&buf, "", 0)})
	loop.Dispatch(SurfaceOpened{ID: 1})

	loop.Dispatch(RawHostEvent{Event: "pointer motion"})
	loop.Dispatch(RawHostEvent{Event: "pointer motion"})

	s, _ := loop.Render(1)
	require.Equal(t, surface.State{}, s)
	require.Zero(t, controller.unlocks)
	require.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Ignoring host event")))
}

func TestZeroLoopIsUninitialized(t *testing.T) {
	var loop Loop
	require.Equal(t, Uninitialized, loop.Phase())

	_, ok := loop.Render(1)
	require.False(t, ok)
	require.Nil(t, loop.Surfaces())
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "running", Running.String())
	require.Equal(t, "Phase(9)", Phase(9).String())
}
