package errco

import (
	"os"

	"golang.org/x/sys/windows"
)

func init() {
	// enable virtual terminal processing to enable colors on windows terminal
	stdout := windows.Handle(os.Stdout.Fd())
	var originalMode uint32
	if err := windows.GetConsoleMode(stdout, &originalMode); err != nil {
		NewLogln(TYPE_WAR, LVL_3, ERROR_COLOR_ENABLE, "error while enabling colors on terminal: %s", err.Error())
	} else if err := windows.SetConsoleMode(stdout, originalMode|windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING); err != nil {
		NewLogln(TYPE_WAR, LVL_3, ERROR_COLOR_ENABLE, "error while enabling colors on terminal: %s", err.Error())
	}
}
