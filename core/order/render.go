package order

import (
	"html"
	"strings"
)

// RenderOrder formats o as a Telegram HTML message. Every user field is
// escaped on its own before it is placed into markup.
func RenderOrder(o Order, t Texts) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(t.OrderTitle))
	b.WriteString("</b>\n\n")
	writeField(&b, t.LabelName, o.Name)
	b.WriteByte('\n')
	writeField(&b, t.LabelPhone, o.Phone)
	b.WriteByte('\n')
	writeField(&b, t.LabelComment, o.Comment)
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(label))
	b.WriteString(":</b> ")
	b.WriteString(html.EscapeString(value))
}
