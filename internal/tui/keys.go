package tui

// Keybinding constants
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyEsc      = "esc"
	KeyPane1    = "1"
	KeyPane2    = "2"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeySettings = "s"
)

// HelpView returns a one-line help bar. Quitting before the run finishes
// cancels it.
func HelpView(done bool) string {
	quit := "q: cancel run"
	if done {
		quit = "q: quit"
	}
	return StyleHelp.Render("Tab: cycle focus | 1/2: jump to pane | j/k: select task | s: settings | " + quit)
}
