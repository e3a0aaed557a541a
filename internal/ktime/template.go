package ktime

import (
	"fmt"
	"strings"
)

// Templates use Java-style pattern letters. Text between single quotes is
// literal, and an unquoted letter with no meaning (such as the T in the
// RFC 3339 forms) is copied through as-is. The k forms are kept for
// compatibility with stored values and behave exactly like their H twins.
const (
	Template822k   = "EEE, dd MMM yyyy kk:mm:ss z"
	Template822    = "EEE, dd MMM yyyy HH:mm:ss Z"
	Template3339k  = "yyyy-MM-ddTkk:mm:ssz"
	Template3339   = "yyyy-MM-ddTHH:mm:ssZ"
	Template3339fk = "yyyy-MM-ddTkk:mm:ss.SSSz"
	Template3339f  = "yyyy-MM-ddTHH:mm:ss.SSSZ"
	Template8601k  = "yyyy-MM-dd kk:mm:ss.SSSz"
	Template8601   = "yyyy-MM-dd HH:mm:ss.SSSZ"

	TemplateAlert   = "yyyy-MM-dd HH:mm:ss Z"
	TemplateDisplay = "EEE, MMM dd h:mma"
	TemplateDay     = "yyyy-MM-dd"
)

// layout is a template compiled to a Go reference layout. The UTC offset is
// never part of the Go layout; when present it is the tail of the text.
type layout struct {
	goLayout string
	offset   bool
}

func compile(template string) (layout, error) {
	var out strings.Builder
	var l layout

	for i := 0; i < len(template); {
		c := template[i]

		if c == '\'' {
			end := strings.IndexByte(template[i+1:], '\'')
			if end < 0 {
				return layout{}, fmt.Errorf("ktime: unterminated quote in template %q", template)
			}
			if end == 0 {
				out.WriteByte('\'')
			} else {
				out.WriteString(template[i+1 : i+1+end])
			}
			i += end + 2
			continue
		}

		n := 1
		for i+n < len(template) && template[i+n] == c {
			n++
		}

		switch c {
		case 'y':
			if n == 2 {
				out.WriteString("06")
			} else {
				out.WriteString("2006")
			}
		case 'M':
			switch {
			case n == 1:
				out.WriteString("1")
			case n == 2:
				out.WriteString("01")
			case n == 3:
				out.WriteString("Jan")
			default:
				out.WriteString("January")
			}
		case 'd':
			if n == 1 {
				out.WriteString("2")
			} else {
				out.WriteString("02")
			}
		case 'E':
			if n <= 3 {
				out.WriteString("Mon")
			} else {
				out.WriteString("Monday")
			}
		case 'H', 'k':
			out.WriteString("15")
		case 'h':
			if n == 1 {
				out.WriteString("3")
			} else {
				out.WriteString("03")
			}
		case 'a':
			out.WriteString("PM")
		case 'm':
			if n == 1 {
				out.WriteString("4")
			} else {
				out.WriteString("04")
			}
		case 's':
			if n == 1 {
				out.WriteString("5")
			} else {
				out.WriteString("05")
			}
		case 'S':
			// After a separator the zeros form a Go fractional-second
			// field; otherwise they are literal zeros.
			out.WriteString(strings.Repeat("0", n))
		case 'z', 'Z', 'X':
			if i+n != len(template) {
				return layout{}, fmt.Errorf("ktime: offset must end template %q", template)
			}
			l.offset = true
		default:
			out.WriteString(template[i : i+n])
		}
		i += n
	}

	l.goLayout = out.String()
	return l, nil
}
