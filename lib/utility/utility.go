package utility

import (
	"net"
	"strconv"
	"strings"
	"unicode/utf8"

	"mortar/lib/errco"
)

// Boxify creates an ascii box around a list of text lines
func Boxify(strList []string) string {
	// find longest string in list
	max := 0
	for _, l := range strList {
		if utf8.RuneCountInString(l) > max {
			max = utf8.RuneCountInString(l)
		}
	}

	// text box generation
	textBox := ""
	textBox += "╔═" + strings.Repeat("═", max) + "═╗" + "\n"
	for _, l := range strList {
		textBox += "║ " + l + strings.Repeat(" ", max-utf8.RuneCountInString(l)) + " ║" + "\n"
	}
	textBox += "╚═" + strings.Repeat("═", max) + "═╝"

	return textBox
}

// SplitHostPort splits an address in "host[:port]" format.
// defPort is returned when the port is not specified.
func SplitHostPort(addr string, defPort int) (string, int, *errco.MrtLog) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_ANALYSIS, "address is empty")
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// no port specified (bare ipv6 addresses included)
		host = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		if strings.Count(addr, ":") == 1 {
			return "", 0, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_ANALYSIS, "address is not valid: %s", addr)
		}
		return host, defPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_ANALYSIS, "port is not valid: %s", portStr)
	}
	if host == "" {
		return "", 0, errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_ANALYSIS, "host is empty: %s", addr)
	}

	return host, port, nil
}
