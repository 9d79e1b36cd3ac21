package export

import (
	"errors"
	"sync"

	"golang.design/x/clipboard"
)

// Clipboard receives exported text.
type Clipboard interface {
	WriteText(text string) error
}

// ErrNoClipboard is returned by the system clipboard when the platform
// clipboard could not be initialized (for example without a display).
var ErrNoClipboard = errors.New("system clipboard unavailable")

// System writes to the platform clipboard.
type System struct {
	once sync.Once
	err  error
}

// NewSystem returns the platform clipboard. Initialization is deferred to
// the first write.
func NewSystem() *System {
	return &System{}
}

func (c *System) WriteText(text string) error {
	c.once.Do(func() {
		if err := clipboard.Init(); err != nil {
			c.err = errors.Join(ErrNoClipboard, err)
		}
	})
	if c.err != nil {
		return c.err
	}
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// Buffer keeps the last exported text in memory. Used when no system
// clipboard is configured and in tests.
type Buffer struct {
	mu   sync.Mutex
	text string
}

func (c *Buffer) WriteText(text string) error {
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()
	return nil
}

// Text returns the last written text.
func (c *Buffer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}
