package periodlock

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/odyssey-erp/gobd-ledger/internal/shared"
)

const msgPeriodLocked = "period locked"

var (
	supportedLanguages = []language.Tag{language.German, language.English}
	languageMatcher    = language.NewMatcher(supportedLanguages)
	messages           = newCatalog()
)

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.German))
	mustSet(b, language.German, msgPeriodLocked,
		"Zeitraum %[1]s ist gesperrt (%[2]s): Vorgang %[3]q am %[4]s ist nicht zulässig")
	mustSet(b, language.English, msgPeriodLocked,
		"Period %[1]s is locked (%[2]s): operation %[3]q on %[4]s is not permitted")
	return b
}

func mustSet(b *catalog.Builder, tag language.Tag, key, msg string) {
	if err := b.SetString(tag, key, msg); err != nil {
		panic(fmt.Sprintf("periodlock: catalog entry %s/%s: %v", tag, key, err))
	}
}

// MatchLanguage picks the best supported message language for an
// Accept-Language header value. German is the default.
func MatchLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.German
	}
	_, idx, _ := languageMatcher.Match(tags...)
	return supportedLanguages[idx]
}

// PeriodLockedError is returned by EnforcePeriodLock when the effective date of
// a write lies inside an active lock.
type PeriodLockedError struct {
	PeriodType PeriodType
	PeriodKey  string
	Reason     string
	Operation  string
	Date       time.Time
}

// Error renders the German message used in filings and logs.
func (e *PeriodLockedError) Error() string {
	return e.Localize(language.German)
}

// Localize renders the message in the given language.
func (e *PeriodLockedError) Localize(tag language.Tag) string {
	p := message.NewPrinter(tag, message.Catalog(messages))
	return p.Sprintf(msgPeriodLocked, e.PeriodKey, e.Reason, e.Operation, e.Date.Format("2006-01-02"))
}

// Unwrap exposes the shared error class.
func (e *PeriodLockedError) Unwrap() error {
	return shared.ErrPeriodLocked
}
