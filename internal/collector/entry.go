package collector

import (
	"strings"
	"time"
)

// TimestampLayout renders local time with millisecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Entry is one received message as it is written to the log file.
type Entry struct {
	ReceivedAt time.Time
	RoutingKey string
	Text       string
}

var lineBreaks = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

// Line renders the entry as "<timestamp> | RK: <routing key> | <text>\n".
// Backslashes and line breaks in the routing key and the text are escaped so
// every entry is one line and distinct texts stay distinct.
func (e Entry) Line() string {
	var b strings.Builder
	b.WriteString(e.ReceivedAt.Format(TimestampLayout))
	b.WriteString(" | RK: ")
	b.WriteString(lineBreaks.Replace(e.RoutingKey))
	b.WriteString(" | ")
	b.WriteString(lineBreaks.Replace(e.Text))
	b.WriteByte('\n')
	return b.String()
}
