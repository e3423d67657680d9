package contact

import (
	"reflect"
	"testing"
)

func TestParseMailto(t *testing.T) {
	rec := Parse("mailto:john.doe@example.com")
	want := Record{Email: "john.doe@example.com"}
	if rec != want {
		t.Errorf("got %+v, want %+v", rec, want)
	}
}

func TestParseTel(t *testing.T) {
	rec := Parse("tel:+33600000000")
	want := Record{Phone: "+33600000000"}
	if rec != want {
		t.Errorf("got %+v, want %+v", rec, want)
	}
}

func TestParseURL(t *testing.T) {
	rec := Parse("https://example.com/booth")
	if rec.URL != "https://example.com/booth" {
		t.Errorf("url = %q", rec.URL)
	}
	if rec.Email != "" || rec.Phone != "" {
		t.Errorf("unexpected extra fields: %+v", rec)
	}
}

func TestParseVCardMinimal(t *testing.T) {
	v := "BEGIN:VCARD\nVERSION:3.0\nN:Doe;John;;;\nEMAIL:john@example.com\nEND:VCARD\n"
	rec := Parse(v)
	want := Record{FirstName: "John", LastName: "Doe", Email: "john@example.com"}
	if rec != want {
		t.Errorf("got %+v, want %+v", rec, want)
	}
}

func TestParseVCardFull(t *testing.T) {
	v := "BEGIN:VCARD\r\nVERSION:3.0\r\nN:Doe;John;;;\r\nFN:John Doe\r\n" +
		"ORG:Acme\r\nTITLE:Engineer\r\nTEL;TYPE=CELL,VOICE:+33600000000\r\n" +
		"EMAIL;TYPE=INTERNET,WORK:john@example.com\r\nURL:https://example.com\r\nEND:VCARD\r\n"
	rec := Parse(v)
	want := Record{
		FirstName: "John",
		LastName:  "Doe",
		Email:     "john@example.com",
		Phone:     "+33600000000",
		Company:   "Acme",
		Job:       "Engineer",
		URL:       "https://example.com",
	}
	if rec != want {
		t.Errorf("got %+v, want %+v", rec, want)
	}
}

func TestParseVCardDuplicateKeysLastWins(t *testing.T) {
	v := "BEGIN:VCARD\nVERSION:3.0\nN:Doe;John;;;\n" +
		"EMAIL:old@example.com\nEMAIL:new@example.com\nEND:VCARD\n"
	rec := Parse(v)
	if rec.Email != "new@example.com" {
		t.Errorf("email = %q, want last occurrence", rec.Email)
	}
}

func TestParseVCardFNFallback(t *testing.T) {
	v := "BEGIN:VCARD\nVERSION:3.0\nFN:Jane van Dorp\nEND:VCARD\n"
	rec := Parse(v)
	if rec.FirstName != "Jane" || rec.LastName != "van Dorp" {
		t.Errorf("got first=%q last=%q", rec.FirstName, rec.LastName)
	}

	// single-token FN stays a first name only
	rec = Parse("BEGIN:VCARD\nVERSION:3.0\nFN:Cher\nEND:VCARD\n")
	if rec.FirstName != "Cher" || rec.LastName != "" {
		t.Errorf("got first=%q last=%q", rec.FirstName, rec.LastName)
	}
}

func TestParseVCardNTakesPriorityOverFN(t *testing.T) {
	v := "BEGIN:VCARD\nVERSION:3.0\nN:Doe;John;;;\nFN:Somebody Else\nEND:VCARD\n"
	rec := Parse(v)
	if rec.FirstName != "John" || rec.LastName != "Doe" {
		t.Errorf("got first=%q last=%q", rec.FirstName, rec.LastName)
	}
}

func TestParseVCardUnterminated(t *testing.T) {
	// badge screens cut payloads off mid-card; extraction stays best effort
	v := "BEGIN:VCARD\nVERSION:3.0\nN:Doe;John;;;\nEMAIL:john@example.com\nTEL:0600000000"
	rec := Parse(v)
	if rec.FirstName != "John" || rec.LastName != "Doe" {
		t.Errorf("names not recovered: %+v", rec)
	}
	if rec.Email != "john@example.com" || rec.Phone != "0600000000" {
		t.Errorf("fields not recovered: %+v", rec)
	}
}

func TestParseMeCard(t *testing.T) {
	rec := Parse("MECARD:N:Doe,John;TEL:0600000000;EMAIL:john@example.com;ORG:Acme;;")
	want := Record{
		FirstName: "John",
		LastName:  "Doe",
		Email:     "john@example.com",
		Phone:     "0600000000",
		Company:   "Acme",
	}
	if rec != want {
		t.Errorf("got %+v, want %+v", rec, want)
	}
}

func TestParseMeCardNameWithoutComma(t *testing.T) {
	rec := Parse("MECARD:N:Cher;TEL:0600000000;;")
	if rec.FirstName != "Cher" || rec.LastName != "" {
		t.Errorf("got first=%q last=%q", rec.FirstName, rec.LastName)
	}
}

func TestParseEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		if rec := Parse(in); rec != (Record{}) {
			t.Errorf("Parse(%q) = %+v, want empty record", in, rec)
		}
	}
}

func TestParseFreeform(t *testing.T) {
	rec := Parse("Contact me at jane@example.com or +1 555-123-4567")
	want := Record{Email: "jane@example.com", Phone: "+1 555-123-4567"}
	if rec != want {
		t.Errorf("got %+v, want %+v", rec, want)
	}
}

func TestParseFreeformEmailOnly(t *testing.T) {
	rec := Parse("reach me: bob.smith+leads@corp.example.org thanks")
	if rec.Email != "bob.smith+leads@corp.example.org" {
		t.Errorf("email = %q", rec.Email)
	}
	if rec.Phone != "" {
		t.Errorf("phone = %q, want empty", rec.Phone)
	}
}

func TestParseFreeformShortDigitRunIgnored(t *testing.T) {
	// fewer than 7 digits is not a phone number
	rec := Parse("booth 12-345 hall B")
	if rec.Phone != "" {
		t.Errorf("phone = %q, want empty", rec.Phone)
	}
}

func TestParseNoMatch(t *testing.T) {
	if rec := Parse("just some words"); rec != (Record{}) {
		t.Errorf("got %+v, want empty record", rec)
	}
}

func TestParseIsPure(t *testing.T) {
	in := "MECARD:N:Doe,John;TEL:0600000000;EMAIL:john@example.com;;"
	a, b := Parse(in), Parse(in)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("parse not idempotent: %+v vs %+v", a, b)
	}
}
