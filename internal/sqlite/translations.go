package sqlite

import (
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
	"golang.org/x/text/language"

	"github.com/mesh-intelligence/possum/pkg/types"
)

var _ types.Translations = (*Translations)(nil)

// Stored language codes. The translations table keys text by these
// integers, not by tag.
var languageCodes = []struct {
	tag  language.Tag
	code int
}{
	{language.AmericanEnglish, 1},
	{language.MustParse("de-DE"), 2},
	{language.MustParse("fr-FR"), 3},
}

var languageMatcher = func() language.Matcher {
	tags := make([]language.Tag, len(languageCodes))
	for i, lc := range languageCodes {
		tags[i] = lc.tag
	}
	return language.NewMatcher(tags)
}()

// languageCode maps a BCP-47 tag to its stored code, falling back to the
// closest supported language.
func languageCode(tag string) (int, error) {
	t, err := language.Parse(tag)
	if err != nil {
		return 0, &types.ValidationError{Field: "language", Reason: err.Error()}
	}
	_, idx, _ := languageMatcher.Match(t)
	return languageCodes[idx].code, nil
}

// Translations looks up text by id in the configured language.
type Translations struct {
	conn *Conn
	lang int
}

func newTranslations(conn *Conn, lang string) (*Translations, error) {
	code, err := languageCode(lang)
	if err != nil {
		return nil, err
	}
	return &Translations{conn: conn, lang: code}, nil
}

// Translate returns the text for textID, with every {name} placeholder
// replaced by vars[name]. A missing translation yields "".
func (t *Translations) Translate(textID int64, vars map[string]any) (string, error) {
	var text string
	err := t.conn.ScanOne(
		"SELECT text FROM translations WHERE textid = ? AND language = ?",
		[]any{textID, t.lang}, &text,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "reading text %d", textID)
	}
	if len(vars) == 0 {
		return text, nil
	}

	pairs := make([]string, 0, 2*len(vars))
	for name, v := range vars {
		pairs = append(pairs, "{"+name+"}", cast.ToString(v))
	}
	return strings.NewReplacer(pairs...).Replace(text), nil
}

// Set stores text for lang. A positive textID inserts or replaces that
// entry. Otherwise an identical existing text is reused, or a new id one
// past the current maximum is allocated. Returns the text id.
func (t *Translations) Set(lang, text string, textID int64) (int64, error) {
	code, err := languageCode(lang)
	if err != nil {
		return 0, err
	}

	err = t.conn.WithTx(func(tx *sql.Tx) error {
		if textID > 0 {
			res, err := tx.Exec("UPDATE translations SET text = ? WHERE textid = ? AND language = ?", text, textID, code)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				return nil
			}
			_, err = tx.Exec("INSERT INTO translations (textid, language, text) VALUES (?, ?, ?)", textID, code, text)
			return err
		}

		err := tx.QueryRow("SELECT textid FROM translations WHERE language = ? AND text = ?", code, text).Scan(&textID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := tx.QueryRow("SELECT COALESCE(MAX(textid), 0) + 1 FROM translations").Scan(&textID); err != nil {
			return err
		}
		_, err = tx.Exec("INSERT INTO translations (textid, language, text) VALUES (?, ?, ?)", textID, code, text)
		return err
	})
	if err != nil {
		return 0, errors.Wrapf(err, "setting %s text", lang)
	}
	return textID, nil
}
