package record

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/transhist/internal/store"
)

// Document field names used in store queries.
const (
	FieldID                  = "id"
	FieldSentence            = "sentence"
	FieldIsForcedTranslation = "isForcedTranslation"
	FieldSourceLanguage      = "sourceLanguage"
	FieldTargetLanguage      = "targetLanguage"
	FieldTranslationsNumber  = "translationsNumber"
	FieldCreatedDate         = "createdDate"
	FieldUpdatedDate         = "updatedDate"
	FieldLastTranslatedDate  = "lastTranslatedDate"
	FieldLastModifiedDate    = "lastModifiedDate"
	FieldIsStarred           = "isStarred"
	FieldIsArchived          = "isArchived"
	FieldTags                = "tags"
	FieldSyncData            = "syncData"
	FieldMergedRecordIDs     = "mergedRecordIds"
)

// DateFields lists the date fields of a record, in declaration order.
var DateFields = []string{
	FieldCreatedDate,
	FieldUpdatedDate,
	FieldLastTranslatedDate,
	FieldLastModifiedDate,
}

// ToDocument converts a record to its stored document form.
// Tags are deduplicated on the way in.
func ToDocument(r HistoryRecord) (store.Document, error) {
	r.Tags = NormalizeTags(r.Tags)
	r.MergedRecordIDs = UnionTags(r.MergedRecordIDs)

	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", r.ID, err)
	}
	return doc, nil
}

// FromDocument converts a stored document to a record.
// Fails if a field has an unexpected type, e.g. a legacy date string that
// the migrations have not normalized yet.
func FromDocument(doc store.Document) (HistoryRecord, error) {
	data, err := json.Marshal(map[string]any(doc))
	if err != nil {
		return HistoryRecord{}, fmt.Errorf("marshal document %s: %w", doc.Key(), err)
	}
	var r HistoryRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return HistoryRecord{}, fmt.Errorf("decode record from document %s: %w", doc.Key(), err)
	}
	return r, nil
}

// FromDocuments converts every document, failing on the first bad one.
func FromDocuments(docs []store.Document) ([]HistoryRecord, error) {
	out := make([]HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		r, err := FromDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// KeyFromDocument reads the semantic key fields of a (possibly legacy) document.
// Missing fields read as zero values.
func KeyFromDocument(doc store.Document) TranslationKey {
	sentence, _ := doc.String(FieldSentence)
	forced, _ := doc[FieldIsForcedTranslation].(bool)
	source, _ := doc.String(FieldSourceLanguage)
	target, _ := doc.String(FieldTargetLanguage)
	return TranslationKey{
		Sentence:            sentence,
		IsForcedTranslation: forced,
		SourceLanguage:      source,
		TargetLanguage:      target,
	}
}

// KeyQuery matches documents carrying the given semantic key.
func KeyQuery(key TranslationKey) store.Query {
	return store.And(
		store.Where(FieldSentence, key.Sentence),
		store.Where(FieldIsForcedTranslation, key.IsForcedTranslation),
		store.Where(FieldSourceLanguage, key.SourceLanguage),
		store.Where(FieldTargetLanguage, key.TargetLanguage),
	)
}

// ActiveQuery matches records that are not archived.
// Records without the flag are active.
func ActiveQuery() store.Query {
	return store.Not(store.Where(FieldIsArchived, true))
}
