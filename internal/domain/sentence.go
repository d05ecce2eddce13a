package domain

// Sentence is one row of the Tatoeba sentences export.
type Sentence struct {
	ID   int64    `db:"id"`
	Lang string   `db:"lang"`
	Text string   `db:"text"`
	Tags []string `db:"tags"`
}

// SentenceLink pairs a sentence with one of its translations.
type SentenceLink struct {
	SentenceID    int64 `db:"sentence_id"`
	TranslationID int64 `db:"translation_id"`
}

// SentenceTags is the deduplicated tag set of one sentence.
type SentenceTags struct {
	SentenceID int64
	Tags       []string
}
