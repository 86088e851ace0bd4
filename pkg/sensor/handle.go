package sensor

import (
	"errors"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrLockUnavailable is returned when the link is already held by someone else.
	ErrLockUnavailable = errors.New("sensor link is in use")
	// ErrNotInitialized is returned by Acquire before a successful Init.
	ErrNotInitialized = errors.New("sensor link not initialized")
)

// Handle owns the sensor link for the lifetime of the process. The port is
// opened and the handshake performed on the first successful Init only; later
// runs reuse the same link. One holder at a time may Acquire it.
type Handle struct {
	open func() (*Link, error)

	mu   sync.Mutex // guards link
	link *Link

	busy sync.Mutex // held between Acquire and release
}

// NewHandle creates a handle that opens its link lazily with open.
func NewHandle(open func() (*Link, error)) *Handle {
	return &Handle{open: open}
}

// Init opens the link and runs the handshake unless that already succeeded.
// A failed attempt leaves the handle empty.
func (h *Handle) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.link != nil {
		return nil
	}

	l, err := h.open()
	if err != nil {
		return err
	}
	if _, err := l.Handshake(); err != nil {
		l.Close()
		return pkgerrors.Wrap(err, "MU did not answer")
	}

	h.link = l
	return nil
}

// Initialized reports whether the handshake has been done.
func (h *Handle) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.link != nil
}

// UID returns the extended UID of the MU, or 0 before Init.
func (h *Handle) UID() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.link == nil {
		return 0
	}
	return h.link.UID()
}

// Acquire takes exclusive use of the link. It never waits: contention is
// reported as ErrLockUnavailable. The returned release func is idempotent.
func (h *Handle) Acquire() (*Link, func(), error) {
	if !h.busy.TryLock() {
		return nil, nil, ErrLockUnavailable
	}

	h.mu.Lock()
	l := h.link
	h.mu.Unlock()
	if l == nil {
		h.busy.Unlock()
		return nil, nil, ErrNotInitialized
	}

	var once sync.Once
	return l, func() { once.Do(h.busy.Unlock) }, nil
}

// Close waits for the current holder to release the link and closes it.
func (h *Handle) Close() error {
	h.busy.Lock()
	defer h.busy.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.link == nil {
		return nil
	}
	err := h.link.Close()
	h.link = nil
	return err
}
