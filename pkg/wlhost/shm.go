package wlhost

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/MatthiasKunnen/go-wayland/wayland/client"
	"golang.org/x/sys/unix"
)

// shmBuffer is a wl_buffer backed by a memfd mapped into this process.
// It is released by the compositor once it is done reading and must not be written afterward.
type shmBuffer struct {
	buffer *client.Buffer
	data   []byte
}

// destroyer is a resource that must be freed explicitly.
type destroyer interface {
	Destroy() error
}

// liveBuffers holds the buffers the compositor has not released yet.
type liveBuffers map[destroyer]struct{}

func (l liveBuffers) add(b destroyer) {
	l[b] = struct{}{}
}

// release forgets b and destroys it.
func (l liveBuffers) release(b destroyer) error {
	delete(l, b)
	return b.Destroy()
}

// destroyAll destroys the buffers that were never released, such as after the compositor ended the
// lock.
func (l liveBuffers) destroyAll() error {
	var err error
	for b := range l {
		err = errors.Join(err, l.release(b))
	}

	return err
}

// newShmBuffer allocates a width x height XRGB8888 buffer and adds it to live until the compositor
// releases it.
func newShmBuffer(shm *client.Shm, width, height int, live liveBuffers, logger *log.Logger) (*shmBuffer, error) {
	stride := width * 4
	size := stride * height
	if size <= 0 {
		return nil, fmt.Errorf("invalid buffer size %dx%d", width, height)
	}

	fd, err := unix.MemfdCreate("sessionlock-buffer", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("memfd_create failed: %w", err)
	}
	// The compositor receives its own copy of fd when the pool is created.
	defer unix.Close(fd)

	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("failed to size shm file: %w", err)
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to map shm file: %w", err)
	}

	pool, err := shm.CreatePool(fd, int32(size))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create shm pool: %w", err), unix.Munmap(data))
	}

	buffer, err := pool.CreateBuffer(0, int32(width), int32(height), int32(stride), uint32(client.ShmFormatXrgb8888))
	// The buffer keeps the pool's memory alive on the compositor side.
	if destroyErr := pool.Destroy(); destroyErr != nil {
		logger.Printf("Failed to destroy shm pool: %v", destroyErr)
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create buffer: %w", err), unix.Munmap(data))
	}

	b := &shmBuffer{
		buffer: buffer,
		data:   data,
	}
	buffer.SetReleaseHandler(func(client.BufferReleaseEvent) {
		if err := live.release(b); err != nil {
			logger.Printf("Failed to free released buffer: %v", err)
		}
	})
	live.add(b)

	return b, nil
}

// Destroy destroys the wl_buffer and unmaps the memory.
func (b *shmBuffer) Destroy() error {
	if b.data == nil {
		return nil
	}

	err := errors.Join(b.buffer.Destroy(), unix.Munmap(b.data))
	b.data = nil

	return err
}

// copyXRGB converts img into the little-endian XRGB8888 layout of wl_shm: B, G, R, X per pixel.
func copyXRGB(dst []byte, img *image.RGBA) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+4]
			dst[i] = p[2]
			dst[i+1] = p[1]
			dst[i+2] = p[0]
			dst[i+3] = 0xff
			i += 4
		}
	}
}
