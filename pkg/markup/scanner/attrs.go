package scanner

import "golang.org/x/net/html"

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// rawTagName reads the element name of a tag token starting at byte start,
// preserving its case.
func rawTagName(raw string, start int) string {
	if start > len(raw) {
		return ""
	}
	i := start
	for i < len(raw) && !isSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}
	return raw[start:i]
}

// parseAttrs reads the attributes of a start tag token, beginning after the
// element name. Keys keep their case; values are entity-decoded but otherwise
// uninterpreted.
func parseAttrs(raw string, start int) Attrs {
	var attrs Attrs
	i := start
	n := len(raw)
	for i < n {
		for i < n && (isSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= n || raw[i] == '>' {
			break
		}

		keyStart := i
		// A leading '=' belongs to the key, as in the HTML tokenizer.
		if raw[i] == '=' {
			i++
		}
		for i < n && !isSpace(raw[i]) && raw[i] != '=' && raw[i] != '>' && raw[i] != '/' {
			i++
		}
		key := raw[keyStart:i]

		for i < n && isSpace(raw[i]) {
			i++
		}
		if i >= n || raw[i] != '=' {
			attrs = attrs.set(key, "")
			continue
		}
		i++ // '='
		for i < n && isSpace(raw[i]) {
			i++
		}
		if i >= n {
			attrs = attrs.set(key, "")
			break
		}

		var val string
		switch q := raw[i]; q {
		case '"', '\'':
			i++
			valStart := i
			for i < n && raw[i] != q {
				i++
			}
			val = raw[valStart:i]
			if i < n {
				i++ // closing quote
			}
		default:
			valStart := i
			for i < n && !isSpace(raw[i]) && raw[i] != '>' {
				i++
			}
			val = raw[valStart:i]
			// "/>" ends the tag rather than the value.
			if i < n && raw[i] == '>' && i > valStart && raw[i-1] == '/' && i-1 > valStart {
				val = raw[valStart : i-1]
			}
		}
		attrs = attrs.set(key, html.UnescapeString(val))
	}
	return attrs
}
