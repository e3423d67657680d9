// Package contact turns raw QR payloads into normalized contact records.
//
// Payloads in the wild come from phone contact-sharing apps (vCard, MeCard),
// printed badges (bare URLs, mailto:/tel: links) or freeform text. The parser
// sniffs the scheme and extracts what it can; it never fails, absent fields
// stay empty.
package contact

import (
	"regexp"
	"strings"

	govcard "github.com/emersion/go-vcard"
)

// Record is the normalized contact extracted from a payload. Fields are
// never null; absence is the empty string.
type Record struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Company   string `json:"company"`
	Job       string `json:"job"`
	URL       string `json:"url"`
}

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?[0-9][0-9 ().\-]{5,}[0-9]`)
)

// Parse extracts contact fields from a raw payload string. It is total over
// arbitrary input: malformed or empty payloads yield a (partially) empty
// Record, never an error.
func Parse(payload string) Record {
	var rec Record
	t := strings.TrimSpace(payload)
	if t == "" {
		return rec
	}

	upper := strings.ToUpper(t)
	lower := strings.ToLower(t)

	switch {
	case strings.HasPrefix(upper, "BEGIN:VCARD"):
		parseVCard(t, &rec)
	case strings.HasPrefix(upper, "MECARD:"):
		parseMeCard(t[len("MECARD:"):], &rec)
	case strings.HasPrefix(lower, "mailto:"):
		rec.Email = strings.TrimSpace(t[len("mailto:"):])
	case strings.HasPrefix(lower, "tel:"):
		rec.Phone = strings.TrimSpace(t[len("tel:"):])
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		rec.URL = t
	default:
		parseFreeform(t, &rec)
	}
	return rec
}

// parseVCard first attempts a structured decode; QR vCards are frequently
// truncated or unterminated, so any decode error falls back to a permissive
// line scan that keeps whatever fields are recoverable.
func parseVCard(t string, rec *Record) {
	card, err := govcard.NewDecoder(strings.NewReader(normalizeCRLF(t))).Decode()
	if err == nil {
		fromCard(card, rec)
		return
	}
	scanVCardLines(t, rec)
}

func fromCard(card govcard.Card, rec *Record) {
	if n := lastValue(card, govcard.FieldName); n != "" {
		parts := strings.Split(n, ";")
		rec.LastName = strings.TrimSpace(parts[0])
		if len(parts) > 1 {
			rec.FirstName = strings.TrimSpace(parts[1])
		}
	}
	if rec.FirstName == "" && rec.LastName == "" {
		splitFormattedName(lastValue(card, govcard.FieldFormattedName), rec)
	}
	rec.Email = lastValue(card, govcard.FieldEmail)
	rec.Phone = lastValue(card, govcard.FieldTelephone)
	rec.Company = lastValue(card, govcard.FieldOrganization)
	rec.Job = lastValue(card, govcard.FieldTitle)
	rec.URL = lastValue(card, govcard.FieldURL)
}

// lastValue returns the trimmed value of the last occurrence of key.
// Duplicate keys are common in app-generated cards; the last one wins.
func lastValue(card govcard.Card, key string) string {
	fields := card[key]
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSpace(fields[len(fields)-1].Value)
}

// scanVCardLines is the lenient path: every line containing a colon is
// treated as KEY[;params]:value, keys uppercased, last occurrence wins.
func scanVCardLines(t string, rec *Record) {
	kv := map[string]string{}
	for _, ln := range strings.Split(t, "\n") {
		ln = strings.TrimSpace(ln)
		i := strings.Index(ln, ":")
		if i < 0 {
			continue
		}
		key := ln[:i]
		if j := strings.Index(key, ";"); j >= 0 {
			key = key[:j]
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		kv[key] = strings.TrimSpace(ln[i+1:])
	}

	// N is Last;First;...; FN only fills names N left empty.
	if n, ok := kv["N"]; ok {
		parts := strings.Split(n, ";")
		if len(parts) > 0 {
			rec.LastName = strings.TrimSpace(parts[0])
		}
		if len(parts) > 1 {
			rec.FirstName = strings.TrimSpace(parts[1])
		}
	}
	if rec.FirstName == "" && rec.LastName == "" {
		splitFormattedName(kv["FN"], rec)
	}
	rec.Email = kv["EMAIL"]
	rec.Phone = kv["TEL"]
	rec.Company = kv["ORG"]
	rec.Job = kv["TITLE"]
	rec.URL = kv["URL"]
}

// splitFormattedName splits an FN value on whitespace: first token becomes
// the first name, the remainder the last name. A single token stays a
// first name only.
func splitFormattedName(fn string, rec *Record) {
	words := strings.Fields(fn)
	switch {
	case len(words) >= 2:
		rec.FirstName = words[0]
		rec.LastName = strings.Join(words[1:], " ")
	case len(words) == 1:
		rec.FirstName = words[0]
	}
}

// parseMeCard handles the MECARD: body, a list of KEY:value segments
// separated by semicolons. The N value is Last,First when comma-separated;
// without a comma the whole value is treated as an opaque first name.
func parseMeCard(body string, rec *Record) {
	kv := map[string]string{}
	for _, part := range strings.Split(body, ";") {
		i := strings.Index(part, ":")
		if i < 0 {
			continue
		}
		kv[strings.ToUpper(strings.TrimSpace(part[:i]))] = strings.TrimSpace(part[i+1:])
	}

	if n := kv["N"]; n != "" {
		if i := strings.Index(n, ","); i >= 0 {
			rec.LastName = strings.TrimSpace(n[:i])
			rec.FirstName = strings.TrimSpace(n[i+1:])
		} else {
			rec.FirstName = n
		}
	}
	rec.Email = kv["EMAIL"]
	rec.Phone = kv["TEL"]
	rec.Company = kv["ORG"]
	rec.Job = kv["TITLE"]
	rec.URL = kv["URL"]
}

// parseFreeform grabs the first email-looking and phone-looking runs from
// unstructured text. The email match is blanked out before the phone search
// so digits inside an address never masquerade as a number.
func parseFreeform(t string, rec *Record) {
	rest := t
	if m := emailRe.FindString(t); m != "" {
		rec.Email = m
		rest = strings.Replace(t, m, " ", 1)
	}
	if m := phoneRe.FindString(rest); m != "" && digitCount(m) >= 7 {
		rec.Phone = strings.TrimSpace(m)
	}
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func normalizeCRLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
