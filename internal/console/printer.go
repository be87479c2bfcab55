// Package console echoes received messages to a terminal.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes one human-readable line per received message. The output
// is for people, not for parsing.
type Printer struct {
	out   io.Writer
	style styles
}

// NewPrinter returns a Printer for out. Colors are only emitted when out is
// a terminal.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, style: newStyles(lipgloss.NewRenderer(out))}
}

// Received echoes a message summary: [console] received '<text>' (RK: <key>)
func (p *Printer) Received(routingKey, text string) {
	_, _ = fmt.Fprintf(p.out, "%s %s %s %s\n",
		p.style.tag.Render("[console]"),
		p.style.muted.Render("received"),
		p.style.body.Render("'"+singleLine(text)+"'"),
		p.style.routingKey.Render("(RK: "+singleLine(routingKey)+")"),
	)
}

var lineBreaks = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

// singleLine keeps multi-line bodies and keys on one console line.
func singleLine(s string) string {
	return lineBreaks.Replace(s)
}
