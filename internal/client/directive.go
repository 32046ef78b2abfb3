package client

import (
	"fmt"
	"strconv"
	"strings"
)

// Directive is one parsed console line.
type Directive struct {
	Quit     bool
	Filename string
	Priority int
	Target   int
}

// ParseDirective parses "quit" or "filename [priority [target]]". Blank lines
// return a zero Directive and ok false.
func ParseDirective(line string) (d Directive, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Directive{}, false, nil
	}
	if len(fields) == 1 && strings.EqualFold(fields[0], "quit") {
		return Directive{Quit: true}, true, nil
	}
	if len(fields) > 3 {
		return Directive{}, false, fmt.Errorf("%w: expected \"filename [priority [target]]\"", ErrInvalidRequest)
	}

	d.Filename = fields[0]
	if len(fields) > 1 {
		if d.Priority, err = strconv.Atoi(fields[1]); err != nil {
			return Directive{}, false, fmt.Errorf("%w: priority %q is not a number", ErrInvalidRequest, fields[1])
		}
		if d.Priority == 0 {
			return Directive{}, false, fmt.Errorf("%w: priority must be 1-10", ErrInvalidRequest)
		}
	}
	if len(fields) > 2 {
		if d.Target, err = strconv.Atoi(fields[2]); err != nil || d.Target <= 0 {
			return Directive{}, false, fmt.Errorf("%w: target %q is not a pid", ErrInvalidRequest, fields[2])
		}
	}
	return d, true, nil
}
