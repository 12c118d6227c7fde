package wlhost

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCopyXRGB(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 4, G: 5, B: 6, A: 255})
	img.SetRGBA(0, 1, color.RGBA{R: 7, G: 8, B: 9, A: 0})
	img.SetRGBA(1, 1, color.RGBA{R: 10, G: 11, B: 12, A: 255})

	dst := make([]byte, 16)
	copyXRGB(dst, img)

	require.Equal(t, []byte{
		3, 2, 1, 0xff, 6, 5, 4, 0xff,
		9, 8, 7, 0xff, 12, 11, 10, 0xff,
	}, dst)
}

func TestCopyXRGBSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(2, 3, color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xff})

	sub := img.SubImage(image.Rect(2, 3, 3, 4)).(*image.RGBA)
	dst := make([]byte, 4)
	copyXRGB(dst, sub)

	require.Equal(t, []byte{0xcc, 0xbb, 0xaa, 0xff}, dst)
}

type countingBuffer struct {
	destroyed int
	err       error
}

func (b *countingBuffer) Destroy() error {
	b.destroyed++
	return b.err
}

func TestLiveBuffersRelease(t *testing.T) {
	live := make(liveBuffers)
	a, b := &countingBuffer{}, &countingBuffer{}
	live.add(a)
	live.add(b)

	require.NoError(t, live.release(a))
	require.Equal(t, 1, a.destroyed)
	require.Len(t, live, 1)

	require.NoError(t, live.destroyAll())
	require.Equal(t, 1, a.destroyed)
	require.Equal(t, 1, b.destroyed)
	require.Empty(t, live)
}

func TestLiveBuffersDestroyAllJoinsErrors(t *testing.T) {
	live := make(liveBuffers)
	failing := &countingBuffer{err: errors.New("munmap failed")}
	ok := &countingBuffer{}
	live.add(failing)
	live.add(ok)

	err := live.destroyAll()
	require.ErrorContains(t, err, "munmap failed")
	require.Equal(t, 1, ok.destroyed)
	require.Empty(t, live)

	require.NoError(t, live.destroyAll())
	require.Equal(t, 1, failing.destroyed)
}
