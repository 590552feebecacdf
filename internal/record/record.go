package record

import (
	"encoding/json"
)

// MergedTag marks a record that was merged into another record.
const MergedTag = "Merged"

// TranslationKey is the semantic key of a translation request.
type TranslationKey struct {
	Sentence            string `json:"sentence"`
	IsForcedTranslation bool   `json:"isForcedTranslation"`
	SourceLanguage      string `json:"sourceLanguage"`
	TargetLanguage      string `json:"targetLanguage"`
}

// ID returns the content-addressed identifier for the key.
func (k TranslationKey) ID() string {
	return GenerateID(k)
}

// HistoryRecord is one translation history entry, one per distinct TranslationKey.
type HistoryRecord struct {
	ID string `json:"id"`
	TranslationKey

	// TranslateResult is cached provider output; opaque to this module.
	TranslateResult json.RawMessage `json:"translateResult,omitempty"`

	TranslationsNumber int64 `json:"translationsNumber"`

	CreatedDate        int64 `json:"createdDate"`
	UpdatedDate        int64 `json:"updatedDate"`
	LastTranslatedDate int64 `json:"lastTranslatedDate"`
	LastModifiedDate   int64 `json:"lastModifiedDate"`

	IsStarred  bool `json:"isStarred"`
	IsArchived bool `json:"isArchived"`

	Tags     []string   `json:"tags,omitempty"`
	SyncData []SyncData `json:"syncData,omitempty"`

	// MergedRecordIDs lists records already merged into this one.
	// A merge that finds the source here does not add its counts again.
	MergedRecordIDs []string `json:"mergedRecordIds,omitempty"`
}

// Key returns the record's semantic key.
func (r HistoryRecord) Key() TranslationKey {
	return r.TranslationKey
}

// IsActive reports whether the record takes part in display and duplicate scans.
func (r HistoryRecord) IsActive() bool {
	return !r.IsArchived
}

// HasTag reports whether the record carries tag.
func (r HistoryRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasMerged reports whether the record with the given id was already merged into r.
func (r HistoryRecord) HasMerged(id string) bool {
	for _, m := range r.MergedRecordIDs {
		if m == id {
			return true
		}
	}
	return false
}

// SyncData is the per-account synchronization state of a record.
// It is owned by the remote synchronizer and stored with the record.
type SyncData struct {
	UserEmail                string   `json:"userEmail"`
	ServerTimestamp          int64    `json:"serverTimestamp"`
	LastModifiedDate         int64    `json:"lastModifiedDate"`
	ServerTranslationsNumber int64    `json:"serverTranslationsNumber"`
	ServerTags               []string `json:"serverTags,omitempty"`
}

// MergeHistoryRecord is the minimal projection of a record used for merge suggestions.
type MergeHistoryRecord struct {
	ID string `json:"id"`
	TranslationKey
	TranslationsNumber int64  `json:"translationsNumber"`
	Translation        string `json:"translation"`
}

// MergeCandidate is a computed group of likely duplicates of one anchor record.
// It is never persisted.
type MergeCandidate struct {
	Record       MergeHistoryRecord   `json:"record"`
	MergeRecords []MergeHistoryRecord `json:"mergeRecords"`
}

// Project returns the merge projection of r.
func (r HistoryRecord) Project() MergeHistoryRecord {
	return MergeHistoryRecord{
		ID:                 r.ID,
		TranslationKey:     r.TranslationKey,
		TranslationsNumber: r.TranslationsNumber,
		Translation:        r.Translation(),
	}
}

// Translation extracts the sentence translation from the cached provider output.
// Returns "" when the result is absent or has an unexpected shape.
func (r HistoryRecord) Translation() string {
	if len(r.TranslateResult) == 0 {
		return ""
	}
	var result struct {
		Sentence struct {
			Translation *string `json:"translation"`
		} `json:"sentence"`
	}
	if err := json.Unmarshal(r.TranslateResult, &result); err != nil {
		return ""
	}
	if result.Sentence.Translation == nil {
		return ""
	}
	return *result.Sentence.Translation
}

// Clone returns a deep copy of r.
func (r HistoryRecord) Clone() HistoryRecord {
	out := r
	if r.TranslateResult != nil {
		out.TranslateResult = append(json.RawMessage(nil), r.TranslateResult...)
	}
	if r.Tags != nil {
		out.Tags = append([]string(nil), r.Tags...)
	}
	if r.MergedRecordIDs != nil {
		out.MergedRecordIDs = append([]string(nil), r.MergedRecordIDs...)
	}
	if r.SyncData != nil {
		out.SyncData = make([]SyncData, len(r.SyncData))
		for i, sd := range r.SyncData {
			sd.ServerTags = append([]string(nil), sd.ServerTags...)
			out.SyncData[i] = sd
		}
	}
	return out
}
