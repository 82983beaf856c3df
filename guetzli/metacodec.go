package guetzli

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// MetaCodec serializes and parses the entry metadata record as a
// line-oriented "key = value" file with ISO-8859-1-safe escaping, the
// well-known Java "properties" format. No example in this codebase's
// lineage reads or writes this exact wire format, so the escaping rules
// below are written directly against the java.util.Properties store()/load()
// contract rather than adapted from an existing file.
type MetaCodec struct{}

const dateLayout = "2006-01-02T15:04:05"

const (
	keyContentID      = "contentId"
	keyStatus         = "process.status"
	keyStoredDatetime = "stored.datetime"
	keySourceName     = "source.name"
	keySourceType     = "source.type"
	keySourceQuality  = "source.quality"
	keySourceSize     = "source.size"
	keyTargetQuality  = "target.quality"
	keyTargetSize     = "target.size"
)

// Serialize renders m as a properties-format byte slice.
func (MetaCodec) Serialize(m *Metadata) []byte {
	var buf bytes.Buffer
	write := func(key, value string) {
		buf.WriteString(key)
		buf.WriteString(" = ")
		buf.WriteString(escapePropertiesValue(value))
		buf.WriteByte('\n')
	}

	write(keyContentID, m.ContentID)
	write(keyStatus, string(m.Status))
	write(keyStoredDatetime, m.StoredAt.Format(dateLayout))
	if m.SourceName != "" {
		write(keySourceName, m.SourceName)
	}
	write(keySourceType, string(m.SourceType))
	write(keySourceQuality, strconv.Itoa(m.SourceQuality))
	write(keySourceSize, strconv.FormatInt(m.SourceSize, 10))
	if m.TargetQuality != nil {
		write(keyTargetQuality, strconv.Itoa(*m.TargetQuality))
	}
	if m.TargetSize != nil {
		write(keyTargetSize, strconv.FormatInt(*m.TargetSize, 10))
	}

	for k, v := range m.Extra {
		write(k, v)
	}

	return buf.Bytes()
}

// Parse reads a properties-format byte slice into a Metadata record.
// Returns ErrCorruptMeta (wrapped with detail) if a required field is
// missing or malformed. Unrecognized keys are preserved in m.Extra.
func (MetaCodec) Parse(data []byte) (*Metadata, error) {
	raw := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := unescapePropertiesValue(strings.TrimSpace(line[idx+1:]))
		raw[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptMeta, err)
	}

	m := &Metadata{Extra: make(map[string]string)}

	m.ContentID = raw[keyContentID]
	if m.ContentID == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrCorruptMeta, keyContentID)
	}
	delete(raw, keyContentID)

	status, ok := raw[keyStatus]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorruptMeta, keyStatus)
	}
	m.Status = Status(status)
	delete(raw, keyStatus)

	stored, ok := raw[keyStoredDatetime]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorruptMeta, keyStoredDatetime)
	}
	t, err := time.ParseInLocation(dateLayout, stored, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s %q: %v", ErrCorruptMeta, keyStoredDatetime, stored, err)
	}
	m.StoredAt = t
	delete(raw, keyStoredDatetime)

	if name, ok := raw[keySourceName]; ok {
		m.SourceName = name
		delete(raw, keySourceName)
	}

	srcType, ok := raw[keySourceType]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorruptMeta, keySourceType)
	}
	m.SourceType = SourceType(srcType)
	delete(raw, keySourceType)

	srcQuality, ok := raw[keySourceQuality]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorruptMeta, keySourceQuality)
	}
	q, err := strconv.Atoi(srcQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s %q: %v", ErrCorruptMeta, keySourceQuality, srcQuality, err)
	}
	m.SourceQuality = q
	delete(raw, keySourceQuality)

	srcSize, ok := raw[keySourceSize]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrCorruptMeta, keySourceSize)
	}
	sz, err := strconv.ParseInt(srcSize, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad %s %q: %v", ErrCorruptMeta, keySourceSize, srcSize, err)
	}
	m.SourceSize = sz
	delete(raw, keySourceSize)

	if tq, ok := raw[keyTargetQuality]; ok {
		v, err := strconv.Atoi(tq)
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s %q: %v", ErrCorruptMeta, keyTargetQuality, tq, err)
		}
		m.TargetQuality = &v
		delete(raw, keyTargetQuality)
	}
	if ts, ok := raw[keyTargetSize]; ok {
		v, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad %s %q: %v", ErrCorruptMeta, keyTargetSize, ts, err)
		}
		m.TargetSize = &v
		delete(raw, keyTargetSize)
	}

	if len(raw) > 0 {
		m.Extra = raw
	} else {
		m.Extra = nil
	}

	return m, nil
}

// escapePropertiesValue escapes backslash, newline, carriage return and tab,
// and encodes any rune outside printable ASCII as a \uXXXX unicode escape
// (a UTF-16 surrogate pair of two escapes above U+FFFF), the same
// ISO-8859-1-safe encoding java.util.Properties.store() uses.
func escapePropertiesValue(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r > 0xffff {
				hi, lo := utf16.EncodeRune(r)
				fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
			} else if r < 0x20 || r > 0x7e {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// unescapePropertiesValue reverses escapePropertiesValue.
func unescapePropertiesValue(s string) string {
	var b strings.Builder
	r := []rune(s)
	for i := 0; i < len(r); i++ {
		if r[i] != '\\' || i == len(r)-1 {
			b.WriteRune(r[i])
			continue
		}
		i++
		switch r[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '\\':
			b.WriteByte('\\')
		case 'u':
			if i+4 < len(r) {
				var code int
				if _, err := fmt.Sscanf(string(r[i+1:i+5]), "%04x", &code); err == nil {
					i += 4
					if utf16.IsSurrogate(rune(code)) && i+6 < len(r) && r[i+1] == '\\' && r[i+2] == 'u' {
						var low int
						if _, err := fmt.Sscanf(string(r[i+3:i+7]), "%04x", &low); err == nil {
							code = int(utf16.DecodeRune(rune(code), rune(low)))
							i += 6
						}
					}
					b.WriteRune(rune(code))
					continue
				}
			}
			b.WriteRune(r[i])
		default:
			b.WriteRune(r[i])
		}
	}
	return b.String()
}
