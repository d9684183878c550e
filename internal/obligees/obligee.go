// Package obligees is the directory of public bodies an inforequest can be
// addressed to. Every mutation keeps an append-only historical snapshot so
// branches can freeze the obligee as it looked when they were created.
package obligees

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Status of an obligee.
type Status int16

const (
	StatusPending   Status = 1
	StatusDissolved Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusDissolved:
		return "DISSOLVED"
	default:
		return "UNKNOWN"
	}
}

// Obligee is a public body. Emails is a comma-separated list of addresses,
// each optionally of the form "Name <mail>".
type Obligee struct {
	ID     int64
	Name   string
	Street string
	City   string
	Zip    string
	Emails string
	Status Status
	Slug   string
}

// EmailAddress is one parsed entry of the obligee email list.
type EmailAddress struct {
	Name string
	Mail string
}

// EmailsParsed parses the comma-separated email list. Malformed entries are
// skipped.
func (o *Obligee) EmailsParsed() []EmailAddress {
	var res []EmailAddress
	for _, part := range strings.Split(o.Emails, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := mail.ParseAddress(part)
		if err != nil {
			continue
		}
		res = append(res, EmailAddress{Name: addr.Name, Mail: addr.Address})
	}
	return res
}

// HistoryType marks what kind of mutation a snapshot records.
type HistoryType string

const (
	HistoryCreated HistoryType = "+"
	HistoryChanged HistoryType = "~"
	HistoryDeleted HistoryType = "-"
)

// HistoricalObligee is a frozen snapshot of an Obligee at a mutation point.
type HistoricalObligee struct {
	ID          int64
	ObligeeID   int64
	Name        string
	Street      string
	City        string
	Zip         string
	Emails      string
	Status      Status
	Slug        string
	HistoryDate time.Time
	HistoryType HistoryType
	HistoryUser string
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives the search slug from an obligee name: diacritics folded,
// lowercased, words separated by single dashes.
func Slugify(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	dash := true // suppress leading dashes
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
