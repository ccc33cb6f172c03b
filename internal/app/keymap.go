package app

// Key binding constants used in handleKey.
const (
	KeyQuit       = "q"
	KeyQuitUpper  = "Q"
	KeyCtrlC      = "ctrl+c"
	KeySpace      = " "
	KeyTab        = "tab"
	KeyUp         = "up"
	KeyDown       = "down"
	KeyJ          = "j"
	KeyK          = "k"
	KeyEnter      = "enter"
	KeyEsc        = "esc"
	KeyBackspace  = "backspace"
	KeyClearInput = "ctrl+u"
	KeyTranscribe = "t"
	KeyManual     = "m"
	KeyEdit       = "e"
	KeyTags       = "#"
	KeyNotes      = "o"
	KeyAnalyze    = "a"
	KeyDiscard    = "x"
	KeyNew        = "n"
	KeyFavorite   = "f"
	KeyRefresh    = "r"
)
