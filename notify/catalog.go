package notify

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supported = []language.Tag{language.English, language.Korean}

var translations = map[language.Tag]map[MessageKey]string{
	language.English: {
		SaveError:       "Could not save your changes.",
		PermissionError: "You do not have permission to do that.",
		NetworkError:    "A network error occurred.",
		NotFound:        "The item could not be found.",
		ServerError:     "The server is having trouble. Please try again.",
		LoadError:       "Could not load data.",
	},
	language.Korean: {
		SaveError:       "저장에 실패했습니다.",
		PermissionError: "권한이 없습니다.",
		NetworkError:    "네트워크 오류가 발생했습니다.",
		NotFound:        "항목을 찾을 수 없습니다",
		ServerError:     "서버 오류가 발생했습니다. 잠시 후 다시 시도해주세요.",
		LoadError:       "데이터를 불러오지 못했습니다",
	},
}

// Catalog renders message keys for one locale.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// NewCatalog builds a catalog for locale (BCP 47, e.g. "ko-KR").
// Unsupported or malformed locales fall back to English.
func NewCatalog(locale string) *Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for k, v := range msgs {
			// keys and texts are static; SetString only fails on malformed tags
			_ = b.SetString(tag, string(k), v)
		}
	}

	tag := language.English
	if t, err := language.Parse(locale); err == nil {
		_, idx, conf := language.NewMatcher(supported).Match(t)
		if conf != language.No {
			tag = supported[idx]
		}
	}
	return &Catalog{tag: tag, printer: message.NewPrinter(tag, message.Catalog(b))}
}

// Tag is the resolved language.
func (c *Catalog) Tag() language.Tag { return c.tag }

// Text returns the localized message for key.
func (c *Catalog) Text(key MessageKey) string {
	return c.printer.Sprintf(string(key))
}
