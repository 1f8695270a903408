// Package recipients loads recipient lists from CSV files with tolerant
// header matching.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Recipient is one row of a recipient CSV.
type Recipient struct {
	Email        string
	Name         string
	MembershipID string
	Mobile       string
	Extra        map[string]string // remaining columns, keyed by normalized header
}

// Key returns the identity used to match delivery events: the lower-cased,
// trimmed email address.
func (r Recipient) Key() string {
	return strings.ToLower(strings.TrimSpace(r.Email))
}

var (
	ErrNoEmailColumn = errors.New("no email column found in header")
	ErrEmptyFile     = errors.New("csv file has no data rows")
)

// Header aliases per canonical field, already normalized. A header matches a
// field when its normalized form appears here.
var aliases = map[string][]string{
	"email":        {"email", "emailaddress", "mail", "emailid"},
	"name":         {"name", "fullname", "recipientname"},
	"membershipid": {"membershipid", "memberid", "membership", "membershipno"},
	"mobile":       {"mobile", "phone", "mobileno", "phonenumber", "mobilenumber"},
}

// Normalize strips case, whitespace and common punctuation from a header so
// "E-Mail", "email" and "Email Address" all resolve to the same key.
func Normalize(header string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(header) {
		switch r {
		case ' ', '\t', '-', '_', '.':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// columnMap maps canonical field -> column index, resolved once per file.
type columnMap struct {
	email, name, membershipID, mobile int
	extra                             map[int]string // index -> normalized header
}

func resolveColumns(header []string) (columnMap, error) {
	cm := columnMap{email: -1, name: -1, membershipID: -1, mobile: -1, extra: make(map[int]string)}

	match := func(norm string) string {
		for field, names := range aliases {
			for _, n := range names {
				if n == norm {
					return field
				}
			}
		}
		return ""
	}

	for i, h := range header {
		norm := Normalize(h)
		if norm == "" {
			continue
		}
		switch match(norm) {
		case "email":
			if cm.email < 0 {
				cm.email = i
				continue
			}
		case "name":
			if cm.name < 0 {
				cm.name = i
				continue
			}
		case "membershipid":
			if cm.membershipID < 0 {
				cm.membershipID = i
				continue
			}
		case "mobile":
			if cm.mobile < 0 {
				cm.mobile = i
				continue
			}
		}
		cm.extra[i] = norm
	}

	if cm.email < 0 {
		return cm, ErrNoEmailColumn
	}
	return cm, nil
}

// Load reads a recipient CSV from path. The file must be UTF-8 (an optional
// BOM is stripped) with a header row; the email column is required.
func Load(path string) ([]Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads recipients from r. See Load.
func Parse(r io.Reader) ([]Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	cm, err := resolveColumns(header)
	if err != nil {
		return nil, err
	}

	field := func(record []string, idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var out []Recipient
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		rec := Recipient{
			Email:        field(record, cm.email),
			Name:         field(record, cm.name),
			MembershipID: field(record, cm.membershipID),
			Mobile:       field(record, cm.mobile),
		}
		if len(cm.extra) > 0 {
			rec.Extra = make(map[string]string, len(cm.extra))
			for idx, key := range cm.extra {
				if v := field(record, idx); v != "" {
					rec.Extra[key] = v
				}
			}
		}
		out = append(out, rec)
	}

	if len(out) == 0 {
		return nil, ErrEmptyFile
	}
	return out, nil
}
