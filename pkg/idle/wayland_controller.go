package idle

import (
	"errors"
	"fmt"
	"log"

	"github.com/MatthiasKunnen/go-wayland/wayland/client"
	idleNotify "github.com/MatthiasKunnen/go-wayland/wayland/staging/ext-idle-notify-v1"
)

type waylandController struct {
	stop         chan struct{}
	dispatchChan chan func() error
	display      *client.Display
	registry     *client.Registry
	notifier     *idleNotify.IdleNotifier
	seat         *client.Seat
	logger       *log.Logger

	notifications map[*waylandNotification]struct{}
}

type waylandNotification struct {
	controller *waylandController
	proxy      *idleNotify.IdleNotification
	// done is closed by Close, the undelivered change is dropped.
	done chan struct{}
}

// NewWaylandIdleController connects to the compositor and binds ext_idle_notifier_v1 and the
// first seat.
//
// The returned channel yields the Wayland dispatch functions. Run them on the goroutine that also
// calls AddNotification, Notification.Close and Controller.Close; the connection must not be used
// from several goroutines.
func NewWaylandIdleController(logger *log.Logger) (Controller, <-chan func() error, error) {
	if logger == nil {
		logger = log.Default()
	}

	c := &waylandController{
		stop:          make(chan struct{}),
		dispatchChan:  make(chan func() error),
		logger:        logger,
		notifications: make(map[*waylandNotification]struct{}),
	}

	var err error
	c.display, err = client.Connect("")
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to Wayland server: %w", err)
	}

	c.registry, err = c.display.GetRegistry()
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("error getting Wayland registry: %w", err), c.context().Close())
	}

	var bindErr error
	c.registry.SetGlobalHandler(func(e client.RegistryGlobalEvent) {
		bindErr = errors.Join(bindErr, c.bindGlobal(e))
	})

	for i := 1; i <= 2; i++ {
		if err := c.display.Roundtrip(); err != nil {
			return nil, nil, errors.Join(fmt.Errorf("roundtrip %d failed: %w", i, err), c.Close())
		}
		if bindErr != nil {
			return nil, nil, errors.Join(bindErr, c.Close())
		}
	}

	switch {
	case c.notifier == nil:
		return nil, nil, errors.Join(
			fmt.Errorf("no %s, ext-idle-notify-v1 might not be supported", idleNotify.IdleNotifierInterfaceName),
			c.Close(),
		)
	case c.seat == nil:
		return nil, nil, errors.Join(errors.New("no wl_seat was announced"), c.Close())
	}

	go func() {
		for {
			select {
			case c.dispatchChan <- c.context().GetDispatch():
			case <-c.stop:
				return
			}
		}
	}()

	return c, c.dispatchChan, nil
}

func (c *waylandController) context() *client.Context {
	return c.display.Context()
}

func (c *waylandController) bindGlobal(e client.RegistryGlobalEvent) error {
	var proxy client.Proxy
	var version uint32

	switch e.Interface {
	case idleNotify.IdleNotifierInterfaceName:
		c.notifier = idleNotify.NewIdleNotifier(c.context())
		proxy, version = c.notifier, 1
	case client.SeatInterfaceName:
		if c.seat != nil {
			return nil
		}
		c.seat = client.NewSeat(c.context())
		proxy, version = c.seat, 5
	default:
		return nil
	}

	if err := c.registry.Bind(e.Name, e.Interface, min(e.Version, version), proxy); err != nil {
		return fmt.Errorf("unable to bind %s interface: %w", e.Interface, err)
	}

	return nil
}

// AddNotification creates an ext_idle_notification_v1 for the seat. Idle and resume are delivered
// in order from a separate goroutine so a slow reader never stalls the Wayland dispatch.
func (c *waylandController) AddNotification(input *CreateIdleNotification) (Notification, error) {
	timeoutMs, err := input.validate()
	if err != nil {
		return nil, err
	}

	proxy, err := c.notifier.GetIdleNotification(timeoutMs, c.seat)
	if err != nil {
		return nil, fmt.Errorf("unable to get idle notification: %w", err)
	}

	n := &waylandNotification{
		controller: c,
		proxy:      proxy,
		done:       make(chan struct{}),
	}
	changes := newForwarder(input.Changes, n.done)
	proxy.SetIdledHandler(func(idleNotify.IdleNotificationIdledEvent) {
		changes.push(true)
	})
	proxy.SetResumedHandler(func(idleNotify.IdleNotificationResumedEvent) {
		changes.push(false)
	})

	c.notifications[n] = struct{}{}

	return n, nil
}

// Close destroys the notification. Changes is not written to afterward.
func (n *waylandNotification) Close() error {
	if _, ok := n.controller.notifications[n]; !ok {
		return nil
	}
	delete(n.controller.notifications, n)
	close(n.done)

	if err := n.proxy.Destroy(); err != nil {
		return fmt.Errorf("failed to destroy idle notification: %w", err)
	}

	return nil
}

// Close destroys the remaining notifications and closes the connection.
func (c *waylandController) Close() error {
	var totalError error

	for n := range c.notifications {
		totalError = errors.Join(totalError, n.Close())
	}

	if c.notifier != nil {
		if err := c.notifier.Destroy(); err != nil {
			totalError = errors.Join(totalError, fmt.Errorf(
				"unable to destroy %s: %w",
				idleNotify.IdleNotifierInterfaceName,
				err,
			))
		}
	}
	if c.seat != nil {
		if err := c.seat.Release(); err != nil {
			totalError = errors.Join(totalError, fmt.Errorf("error releasing seat: %w", err))
		}
	}

	select {
	case <-c.stop:
	default:
		close(c.stop)
	}

	if err := c.context().Close(); err != nil {
		c.logger.Printf("Closing the idle controller connection failed: %v", err)
		totalError = errors.Join(totalError, fmt.Errorf("error closing wayland connection: %w", err))
	}

	return totalError
}
