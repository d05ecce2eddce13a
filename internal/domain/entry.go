package domain

import "strings"

// SeqPrefix marks the trailing sequence-number gloss of an EDICT2 line.
const SeqPrefix = "EntL"

// Entry is one parsed dictionary line.
//
// Kanjis is never empty for an Entry produced by the parser. Readings, Infos
// and Meanings are non-nil and may be empty. Seq is empty when the line had
// no sequence marker; storage rejects such entries.
type Entry struct {
	Seq      string   `json:"seq"      db:"seq"`
	Kanjis   []string `json:"kanjis"   db:"kanjis"`
	Readings []string `json:"readings" db:"readings"`
	Infos    []string `json:"infos"    db:"infos"`
	Meanings []string `json:"meanings" db:"meanings"`
}

// HasAudio reports whether the sequence marker carries the trailing "X" flag
// that signals an available audio clip for the reading.
func (e Entry) HasAudio() bool {
	return strings.HasPrefix(e.Seq, SeqPrefix) && strings.HasSuffix(e.Seq, "X")
}

// Validate checks the fields storage requires: a non-empty seq and at least
// one surface form.
func (e Entry) Validate() error {
	var errs []FieldError
	if e.Seq == "" {
		errs = append(errs, FieldError{Field: "seq", Message: "required"})
	}
	if len(e.Kanjis) == 0 {
		errs = append(errs, FieldError{Field: "kanjis", Message: "at least one required"})
	}
	if len(errs) > 0 {
		return &ValidationError{Seq: e.Seq, Errors: errs}
	}
	return nil
}
