package idle

// forwarder delivers idle changes to a channel in the order they happened. When the reader falls
// behind, only the newest undelivered change is kept.
type forwarder struct {
	pending chan bool
	out     chan<- bool
	done    <-chan struct{}
}

func newForwarder(out chan<- bool, done <-chan struct{}) *forwarder {
	f := &forwarder{
		pending: make(chan bool, 1),
		out:     out,
		done:    done,
	}
	go f.run()

	return f
}

// push replaces the undelivered change, if any, with idle. It must not be called concurrently.
func (f *forwarder) push(idle bool) {
	select {
	case <-f.pending:
	default:
	}
	f.pending <- idle
}

func (f *forwarder) run() {
	for {
		select {
		case idle := <-f.pending:
			select {
			case f.out <- idle:
			case <-f.done:
				return
			}
		case <-f.done:
			return
		}
	}
}
