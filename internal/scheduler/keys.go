package scheduler

import (
	"github.com/eiannone/keyboard"
)

type controls interface {
	TogglePause()
	Cancel()
}

// listenKeys reads single key presses while the terminal is in raw mode,
// which also swallows Ctrl+C, so that key cancels as well.
func listenKeys(c controls) (func(), error) {
	keys, err := keyboard.GetKeys(10)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-keys:
				if !ok || ev.Err != nil {
					return
				}
				handleKey(ev, c)
			}
		}
	}()
	return func() {
		close(done)
		keyboard.Close()
	}, nil
}

func handleKey(ev keyboard.KeyEvent, c controls) {
	switch {
	case ev.Rune == 'p' || ev.Rune == 'P':
		go c.TogglePause()
	case ev.Rune == 'q' || ev.Rune == 'Q', ev.Key == keyboard.KeyCtrlC, ev.Key == keyboard.KeyEsc:
		c.Cancel()
	}
}
