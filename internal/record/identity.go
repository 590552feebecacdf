package record

import (
	"crypto/md5"
	"encoding/hex"
)

// GenerateID computes the content-addressed identifier of a translation key.
//
// Format: md5hex(sentence) + ["-forced"] + "-" + source + "-" + target
//
// The digest covers the exact sentence bytes: it is case- and
// whitespace-sensitive. Ids produced here must stay byte-identical to ids
// already stored on disk and on remote accounts, so the digest algorithm is
// fixed at MD5.
func GenerateID(key TranslationKey) string {
	sum := md5.Sum([]byte(key.Sentence))
	id := hex.EncodeToString(sum[:])
	if key.IsForcedTranslation {
		id += "-forced"
	}
	return id + "-" + key.SourceLanguage + "-" + key.TargetLanguage
}
