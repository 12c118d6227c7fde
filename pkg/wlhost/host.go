package wlhost

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/MatthiasKunnen/go-wayland/wayland/client"
	sessionLock "github.com/MatthiasKunnen/go-wayland/wayland/staging/ext-session-lock-v1"
	"github.com/MatthiasKunnen/sessionlock/pkg/session"
	"github.com/MatthiasKunnen/sessionlock/pkg/surface"
	"github.com/MatthiasKunnen/sessionlock/pkg/view"
	"golang.org/x/sys/unix"
)

var (
	ErrNoSessionLockManager = errors.New("no session lock manager, ext-session-lock-v1 might not be supported")
	// ErrLockRefused is returned when the compositor ends the lock without it being unlocked, for
	// example because another client holds the lock.
	ErrLockRefused = errors.New("the compositor refused or revoked the session lock")
)

// Session is what the host feeds events into and draws from. It is implemented by session.Loop.
type Session interface {
	Dispatch(msg session.Message)
	Render(id surface.ID) (surface.State, bool)
}

// Options configures New.
type Options struct {
	// Scale of the drawn widgets, 0 picks one per output.
	Scale int
	Theme view.Theme

	// Locked, if set, is called once the compositor confirms that the session is locked.
	Locked func()

	// Logger defaults to log.Default().
	Logger *log.Logger
}

type output struct {
	globalName uint32
	name       string
	wlOutput   *client.Output
	lock       *lockSurface
}

type lockSurface struct {
	id          surface.ID
	output      *output
	wlSurface   *client.Surface
	lockSurface *sessionLock.ExtSessionLockSurface
	configured  bool
	width       int
	height      int
	layout      view.Layout
}

// Host locks the session with ext-session-lock-v1 and shows one lock surface per output.
//
// All methods, including the functions received on the dispatch channel, must be called from the
// same goroutine.
type Host struct {
	close chan struct{}
	// The dispatch channel exists to synchronize the wayland communication which is not safe to be
	// done over multiple goroutines.
	dispatchChan chan func() error
	display      *client.Display
	registry     *client.Registry
	compositor   *client.Compositor
	shm          *client.Shm
	seat         *client.Seat
	pointer      *client.Pointer
	keyboard     *client.Keyboard
	manager      *sessionLock.ExtSessionLockManager
	lock         *sessionLock.ExtSessionLock

	logger  *log.Logger
	options Options
	session Session

	outputs  map[uint32]*output
	surfaces map[surface.ID]*lockSurface
	buffers  liveBuffers

	pointerFocus  surface.ID
	pointerX      float64
	pointerY      float64
	keyboardFocus surface.ID
	modifiers     uint32

	locked        bool
	unlockPending bool
	unlocked      bool
	done          bool
	err           error
}

// New connects to the Wayland compositor and binds the globals a lock screen needs.
// It returns:
//   - The host
//   - The dispatch channel, execute the functions received on this channel on the same goroutine
//     as other interactions with the Host.
//   - Error that occurred when connecting.
func New(options Options) (*Host, <-chan func() error, error) {
	h := &Host{
		close:        make(chan struct{}),
		dispatchChan: make(chan func() error),
		logger:       options.Logger,
		options:      options,
		outputs:      make(map[uint32]*output),
		surfaces:     make(map[surface.ID]*lockSurface),
		buffers:      make(liveBuffers),
	}
	if h.logger == nil {
		h.logger = log.Default()
	}

	var err error
	h.display, err = client.Connect("")
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to Wayland server: %w", err)
	}

	h.registry, err = h.display.GetRegistry()
	if err != nil {
		return nil, nil, errors.Join(
			fmt.Errorf("error getting Wayland registry: %w", err),
			h.context().Close(),
		)
	}

	var globalHandlerError error
	h.registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		if err := h.bindGlobal(e); err != nil {
			globalHandlerError = errors.Join(globalHandlerError, err)
		}
	})
	h.registry.SetGlobalRemoveHandler(h.handleGlobalRemove)

	for i, name := range []string{"one", "two"} {
		err = h.display.Roundtrip()
		if err == nil && globalHandlerError != nil {
			err = fmt.Errorf("error in registry GlobalHandler after roundtrip %s: %w", name, globalHandlerError)
		}
		if err != nil {
			return nil, nil, errors.Join(fmt.Errorf("failed roundtrip %d: %w", i+1, err), h.Close())
		}
	}

	switch {
	case h.manager == nil:
		return nil, nil, errors.Join(ErrNoSessionLockManager, h.Close())
	case h.compositor == nil:
		return nil, nil, errors.Join(errors.New("no wl_compositor was announced"), h.Close())
	case h.shm == nil:
		return nil, nil, errors.Join(errors.New("no wl_shm was announced"), h.Close())
	}

	go func() {
		for {
			select {
			case h.dispatchChan <- h.context().GetDispatch():
			case <-h.close:
				return
			}
		}
	}()

	return h, h.dispatchChan, nil
}

func (h *Host) context() *client.Context {
	return h.display.Context()
}

func (h *Host) bindGlobal(e client.RegistryGlobalEvent) error {
	switch e.Interface {
	case sessionLock.ExtSessionLockManagerInterfaceName:
		h.manager = sessionLock.NewExtSessionLockManager(h.context())
		return h.bind(e, 1, h.manager)
	case client.CompositorInterfaceName:
		h.compositor = client.NewCompositor(h.context())
		return h.bind(e, 4, h.compositor)
	case client.ShmInterfaceName:
		h.shm = client.NewShm(h.context())
		return h.bind(e, 1, h.shm)
	case client.SeatInterfaceName:
		if h.seat != nil {
			// A single seat drives every lock surface.
			return nil
		}
		seat := client.NewSeat(h.context())
		if err := h.bind(e, 5, seat); err != nil {
			return err
		}
		seat.SetCapabilitiesHandler(h.handleSeatCapabilities)
		h.seat = seat
	case client.OutputInterfaceName:
		o := &output{
			globalName: e.Name,
			wlOutput:   client.NewOutput(h.context()),
		}
		if err := h.bind(e, 4, o.wlOutput); err != nil {
			return err
		}
		o.wlOutput.SetNameHandler(func(ev client.OutputNameEvent) {
			o.name = ev.Name
		})
		h.outputs[e.Name] = o

		if h.lock != nil && !h.unlocked {
			if err := h.createLockSurface(o); err != nil {
				return err
			}
		}
	}

	return nil
}

func (h *Host) bind(e client.RegistryGlobalEvent, maxVersion uint32, proxy client.Proxy) error {
	err := h.registry.Bind(e.Name, e.Interface, min(e.Version, maxVersion), proxy)
	if err != nil {
		return fmt.Errorf("unable to bind %s interface: %w", e.Interface, err)
	}

	return nil
}

// Lock asks the compositor to lock the session and creates a lock surface for every output.
// Events of the lock are fed into s.
func (h *Host) Lock(s Session) error {
	if h.lock != nil {
		return errors.New("the session is already locked by this host")
	}

	h.session = s

	var err error
	h.lock, err = h.manager.Lock()
	if err != nil {
		return fmt.Errorf("failed to request session lock: %w", err)
	}

	h.lock.SetLockedHandler(func(sessionLock.ExtSessionLockLockedEvent) {
		h.locked = true
		h.logger.Printf("Session locked on %d outputs", len(h.outputs))
		if h.options.Locked != nil {
			h.options.Locked()
		}

		if h.unlockPending {
			h.unlock()
		}
	})
	h.lock.SetFinishedHandler(func(sessionLock.ExtSessionLockFinishedEvent) {
		if h.unlocked {
			return
		}

		h.logger.Printf("Compositor finished the session lock")
		if err := h.lock.Destroy(); err != nil {
			h.logger.Printf("Failed to destroy session lock: %v", err)
		}
		h.destroyLockSurfaces()
		h.err = ErrLockRefused
		h.done = true
	})

	var createErr error
	for _, o := range h.outputs {
		createErr = errors.Join(createErr, h.createLockSurface(o))
	}

	return createErr
}

func (h *Host) createLockSurface(o *output) error {
	wlSurface, err := h.compositor.CreateSurface()
	if err != nil {
		return fmt.Errorf("failed to create surface: %w", err)
	}

	lockSurf, err := h.lock.GetLockSurface(wlSurface, o.wlOutput)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to create lock surface: %w", err), wlSurface.Destroy())
	}

	ls := &lockSurface{
		id:          surface.ID(wlSurface.ID()),
		output:      o,
		wlSurface:   wlSurface,
		lockSurface: lockSurf,
	}
	o.lock = ls
	h.surfaces[ls.id] = ls

	lockSurf.SetConfigureHandler(func(e sessionLock.ExtSessionLockSurfaceConfigureEvent) {
		h.handleConfigure(ls, e)
	})

	return nil
}

func (h *Host) handleConfigure(ls *lockSurface, e sessionLock.ExtSessionLockSurfaceConfigureEvent) {
	if err := ls.lockSurface.AckConfigure(e.Serial); err != nil {
		h.logger.Printf("Failed to ack configure of surface %d: %v", ls.id, err)
		return
	}

	ls.width = int(e.Width)
	ls.height = int(e.Height)
	ls.layout = view.NewLayout(ls.width, ls.height, h.options.Scale)

	if !ls.configured {
		ls.configured = true
		h.logger.Printf("Surface %d on output %q is %dx%d", ls.id, ls.output.name, ls.width, ls.height)
		h.route(session.SurfaceOpenedEvent{ID: ls.id})
	}

	// The surface must get a buffer after every configure, whether or not the state changed.
	h.Redraw(ls.id)
}

func (h *Host) handleGlobalRemove(e client.RegistryGlobalRemoveEvent) {
	o, ok := h.outputs[e.Name]
	if !ok {
		return
	}
	delete(h.outputs, e.Name)

	if o.lock != nil {
		id := o.lock.id
		if err := h.destroyLockSurface(o.lock); err != nil {
			h.logger.Printf("Failed to destroy lock surface %d: %v", id, err)
		}
		h.route(session.SurfaceClosedEvent{ID: id})
	}

	if err := o.wlOutput.Release(); err != nil {
		h.logger.Printf("Failed to release output %q: %v", o.name, err)
	}
}

func (h *Host) destroyLockSurface(ls *lockSurface) error {
	delete(h.surfaces, ls.id)
	ls.output.lock = nil

	if h.pointerFocus == ls.id {
		h.pointerFocus = 0
	}
	if h.keyboardFocus == ls.id {
		h.keyboardFocus = 0
	}

	return errors.Join(ls.lockSurface.Destroy(), ls.wlSurface.Destroy())
}

func (h *Host) destroyLockSurfaces() {
	for _, ls := range h.surfaces {
		if err := h.destroyLockSurface(ls); err != nil {
			h.logger.Printf("Failed to destroy lock surface %d: %v", ls.id, err)
		}
	}
}

// route hands a host event to the session.
func (h *Host) route(event session.HostEvent) {
	if h.session == nil {
		return
	}

	h.session.Dispatch(session.Route(event))
}

// Redraw paints the surface from the current session state.
func (h *Host) Redraw(id surface.ID) {
	ls, ok := h.surfaces[id]
	if !ok || !ls.configured || ls.width == 0 || ls.height == 0 {
		return
	}

	var snap view.Snapshot
	if h.session != nil {
		snap.State, snap.Ready = h.session.Render(id)
	}

	img := image.NewRGBA(image.Rect(0, 0, ls.width, ls.height))
	view.Draw(img, ls.layout, snap, h.options.Theme, h.keyboardFocus == id)

	buf, err := newShmBuffer(h.shm, ls.width, ls.height, h.buffers, h.logger)
	if err != nil {
		h.logger.Printf("Failed to allocate buffer for surface %d: %v", id, err)
		return
	}
	copyXRGB(buf.data, img)

	err = errors.Join(
		ls.wlSurface.Attach(buf.buffer, 0, 0),
		ls.wlSurface.DamageBuffer(0, 0, int32(ls.width), int32(ls.height)),
		ls.wlSurface.Commit(),
	)
	if err != nil {
		h.logger.Printf("Failed to present surface %d: %v", id, err)
	}
}

// RequestUnlock unlocks the session. If the compositor has not confirmed the lock yet, the unlock
// happens as soon as it does.
func (h *Host) RequestUnlock() {
	switch {
	case h.unlocked || h.done:
		return
	case h.lock == nil:
		h.done = true
	case !h.locked:
		h.logger.Printf("Unlock requested before the session was locked, deferring")
		h.unlockPending = true
	default:
		h.unlock()
	}
}

func (h *Host) unlock() {
	h.unlockPending = false
	h.unlocked = true

	if err := h.lock.UnlockAndDestroy(); err != nil {
		h.err = fmt.Errorf("failed to unlock session: %w", err)
		h.done = true
		return
	}
	h.destroyLockSurfaces()

	// Only exit once the compositor has processed the unlock.
	callback, err := h.display.Sync()
	if err != nil {
		h.err = fmt.Errorf("unable to get sync callback: %w", err)
		h.done = true
		return
	}
	callback.SetDoneHandler(func(client.CallbackDoneEvent) {
		if err := callback.Destroy(); err != nil {
			h.logger.Printf("Unable to destroy callback: %v", err)
		}
		h.logger.Printf("Session unlocked")
		h.done = true
	})
}

// Done reports whether the lock ended, either through an unlock processed by the compositor or
// because the compositor finished the lock. Err tells which.
func (h *Host) Done() bool {
	return h.done
}

// Err returns the reason the lock ended without an unlock, if any.
func (h *Host) Err() error {
	return h.err
}

func (h *Host) handleSeatCapabilities(e client.SeatCapabilitiesEvent) {
	hasPointer := e.Capabilities&uint32(client.SeatCapabilityPointer) != 0
	hasKeyboard := e.Capabilities&uint32(client.SeatCapabilityKeyboard) != 0

	switch {
	case hasPointer && h.pointer == nil:
		pointer, err := h.seat.GetPointer()
		if err != nil {
			h.logger.Printf("Failed to get pointer: %v", err)
			break
		}
		h.pointer = pointer
		h.setPointerHandlers()
	case !hasPointer && h.pointer != nil:
		if err := h.pointer.Release(); err != nil {
			h.logger.Printf("Failed to release pointer: %v", err)
		}
		h.pointer = nil
	}

	switch {
	case hasKeyboard && h.keyboard == nil:
		keyboard, err := h.seat.GetKeyboard()
		if err != nil {
			h.logger.Printf("Failed to get keyboard: %v", err)
			break
		}
		h.keyboard = keyboard
		h.setKeyboardHandlers()
	case !hasKeyboard && h.keyboard != nil:
		if err := h.keyboard.Release(); err != nil {
			h.logger.Printf("Failed to release keyboard: %v", err)
		}
		h.keyboard = nil
	}
}

// Close closes the connection. It does not unlock the session; a lock client that exits without
// unlocking leaves the session locked.
func (h *Host) Close() error {
	var totalError error

	if err := h.buffers.destroyAll(); err != nil {
		totalError = errors.Join(totalError, fmt.Errorf("error freeing buffers: %w", err))
	}

	if h.pointer != nil {
		if err := h.pointer.Release(); err != nil {
			totalError = errors.Join(totalError, fmt.Errorf("error releasing pointer: %w", err))
		}
	}
	if h.keyboard != nil {
		if err := h.keyboard.Release(); err != nil {
			totalError = errors.Join(totalError, fmt.Errorf("error releasing keyboard: %w", err))
		}
	}
	if h.seat != nil {
		if err := h.seat.Release(); err != nil {
			totalError = errors.Join(totalError, fmt.Errorf("error releasing seat: %w", err))
		}
	}
	if h.manager != nil {
		if err := h.manager.Destroy(); err != nil {
			totalError = errors.Join(totalError, fmt.Errorf(
				"unable to destroy %s: %w",
				sessionLock.ExtSessionLockManagerInterfaceName,
				err,
			))
		}
	}

	select {
	case <-h.close:
	default:
		close(h.close)
	}

	if err := h.context().Close(); err != nil {
		totalError = errors.Join(totalError, fmt.Errorf("error closing wayland connection: %w", err))
	}

	return totalError
}

// closeFd closes file descriptors the compositor hands out but the host does not use.
func (h *Host) closeFd(fd int) {
	if err := unix.Close(fd); err != nil {
		h.logger.Printf("Failed to close fd %d: %v", fd, err)
	}
}
