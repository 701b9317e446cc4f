// Package funnel implements the conversation state machine that walks a
// candidate through the intake funnel:
//
//	START → AWAITING_AGE → AWAITING_COUNTRY → AWAITING_EXPERIENCE →
//	AWAITING_CONTACT_CONSENT → [AWAITING_PHONE] → done (session cleared)
//
// Dispatch is two-stage: the inbound text is first classified by shape
// (Classify), then the shape is combined with the session's current state
// via the routes table to pick a handler.
package funnel

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/akozyrev/hr-intake-bot/internal/candidates"
	"github.com/akozyrev/hr-intake-bot/internal/logger"
	"github.com/akozyrev/hr-intake-bot/internal/matching"
	"go.uber.org/zap"
)

const (
	ageMin = 18
	ageMax = 55
)

// Matcher ranks the vacancy catalog against a candidate's experience text.
type Matcher interface {
	Match(ctx context.Context, text, country string) []matching.Result
}

// RecordSink persists one finalized candidate record.
type RecordSink interface {
	Append(record candidates.Record) error
}

// User identifies the person behind an inbound message.
type User struct {
	ID       int64
	Name     string
	FullName string
}

// Machine drives funnel conversations. One Machine serves every session; all
// per-conversation state lives in the Session.
type Machine struct {
	matcher       Matcher
	sink          RecordSink
	contactMethod string
	logger        *zap.Logger
	now           func() time.Time
}

func NewMachine(matcher Matcher, sink RecordSink, contactMethod string, logger *zap.Logger) *Machine {
	return &Machine{
		matcher:       matcher,
		sink:          sink,
		contactMethod: contactMethod,
		logger:        logger,
		now:           time.Now,
	}
}

type action int

const (
	actAge action = iota
	actCountry
	actExperience
	actConsent
	actPhone
)

// routes picks the handler for a (state, input shape) pair. Missing entries
// fall through to the experience handler, which restarts the funnel when the
// session has not collected a country yet.
var routes = map[State]map[InputKind]action{
	StateAwaitingAge: {
		// Every shape is validated as an age answer so malformed input
		// re-prompts instead of leaking into the experience handler.
		InputFreeText: actAge,
		InputAge:      actAge,
		InputCountry:  actAge,
		InputConsent:  actAge,
		InputPhone:    actAge,
	},
	StateAwaitingCountry: {
		InputCountry: actCountry,
	},
	StateAwaitingExperience: {
		InputFreeText: actExperience,
		InputAge:      actExperience,
		InputCountry:  actExperience,
		InputConsent:  actExperience,
		InputPhone:    actExperience,
	},
	StateAwaitingConsent: {
		// Anything that is not an explicit yes counts as a decline.
		InputFreeText: actConsent,
		InputAge:      actConsent,
		InputCountry:  actConsent,
		InputConsent:  actConsent,
		InputPhone:    actConsent,
	},
	StateAwaitingPhone: {
		InputFreeText: actPhone,
		InputAge:      actPhone,
		InputCountry:  actPhone,
		InputConsent:  actPhone,
		InputPhone:    actPhone,
	},
}

// Start resets the session and greets the user with the age prompt. It backs
// the transport's /start command.
func (m *Machine) Start(sess *Session, user User) []Reply {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	return m.start(sess, user)
}

func (m *Machine) start(sess *Session, user User) []Reply {
	sess.Clear()
	sess.State = StateAwaitingAge

	m.logger.Info("funnel started", zap.Int64("user_id", user.ID))

	return []Reply{greeting(user.Name)}
}

// Handle processes one inbound message and returns the replies to render.
// The session lock is held for the whole call, so messages from the same
// user are handled strictly one at a time.
func (m *Machine) Handle(ctx context.Context, sess *Session, user User, text string) []Reply {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	kind := Classify(text)

	act, ok := routes[sess.State][kind]
	if !ok {
		act = actExperience
	}

	switch act {
	case actAge:
		return m.handleAge(sess, user, text)
	case actCountry:
		return m.handleCountry(sess, user, text)
	case actConsent:
		return m.handleConsent(sess, user, text)
	case actPhone:
		return m.handlePhone(sess, user, text)
	default:
		return m.handleExperience(ctx, sess, user, text)
	}
}

func (m *Machine) handleAge(sess *Session, user User, text string) []Reply {
	bracket, reject := validateAge(text)
	if reject != "" {
		return []Reply{{Text: reject, Keyboard: KeyboardAge}}
	}

	sess.AgeBracket = bracket
	sess.State = StateAwaitingCountry

	m.logger.Debug("age accepted", zap.Int64("user_id", user.ID), zap.String("bracket", bracket))

	return []Reply{{Text: msgCountryAsk, Keyboard: KeyboardCountry}}
}

// validateAge checks a raw age answer. It returns the accepted bracket, or a
// rejection message when the input contains letters or the leading number
// falls outside the accepted range.
func validateAge(text string) (bracket, reject string) {
	text = strings.TrimSpace(text)
	for _, r := range text {
		if unicode.IsLetter(r) {
			return "", msgAgeFormat
		}
	}

	lead, _, _ := strings.Cut(text, "-")
	age, err := strconv.Atoi(strings.TrimSpace(lead))
	if err != nil {
		return "", msgAgeFormat
	}

	if age < ageMin || age > ageMax {
		return "", msgAgeRange
	}

	return text, ""
}

func (m *Machine) handleCountry(sess *Session, user User, text string) []Reply {
	if text == CountryOther {
		// The funnel does not advance: the user may pick a supported
		// country and continue, but no automatic reset happens.
		m.logger.Info("unsupported citizenship", zap.Int64("user_id", user.ID))
		return []Reply{{Text: msgCountryOther}}
	}

	sess.Country = text
	sess.State = StateAwaitingExperience

	m.logger.Debug("country accepted", zap.Int64("user_id", user.ID), zap.String("country", text))

	return []Reply{{Text: msgExperience}}
}

func (m *Machine) handleExperience(ctx context.Context, sess *Session, user User, text string) []Reply {
	// Out-of-order invocation: the funnel restarts rather than failing.
	if sess.Country == "" {
		return m.start(sess, user)
	}

	sess.Experience = text

	results := m.matcher.Match(ctx, text, sess.Country)
	if len(results) == 0 {
		m.logger.Info("no matching vacancies",
			zap.Int64("user_id", user.ID),
			zap.String("text_preview", logger.TruncateForLog(text, 80)),
		)
		return []Reply{{Text: msgNoMatches}}
	}

	sess.LastMatches = results
	sess.SelectedVacancy = results[0].Title
	sess.State = StateAwaitingConsent

	m.logger.Info("vacancies matched",
		zap.Int64("user_id", user.ID),
		zap.Int("count", len(results)),
		zap.String("top", results[0].Title),
	)

	return []Reply{
		renderMatches(results),
		{Text: msgConsentAsk, Keyboard: KeyboardYesNo},
	}
}

func (m *Machine) handleConsent(sess *Session, user User, text string) []Reply {
	if IsAffirmative(text) {
		sess.AwaitingPhone = true
		sess.State = StateAwaitingPhone
		return []Reply{{Text: msgPhoneAsk, Keyboard: KeyboardCancel}}
	}

	m.logger.Info("contact consent declined", zap.Int64("user_id", user.ID))
	sess.Clear()

	return []Reply{{Text: msgGoodbye}}
}

func (m *Machine) handlePhone(sess *Session, user User, text string) []Reply {
	// The phone handler is armed only by an affirmative consent.
	if !sess.AwaitingPhone {
		return nil
	}

	if !IsValidPhone(text) {
		return []Reply{{Text: msgPhoneInvalid}}
	}

	record := candidates.Record{
		Timestamp:       m.now(),
		UserID:          user.ID,
		Name:            user.FullName,
		Phone:           text,
		Age:             sess.AgeBracket,
		Country:         sess.Country,
		SelectedVacancy: sess.SelectedVacancy,
		Experience:      sess.Experience,
		ContactMethod:   m.contactMethod,
	}

	// Persistence is fire-and-forget for the user: a failed write is
	// logged, the confirmation is sent either way.
	if err := m.sink.Append(record); err != nil {
		m.logger.Error("saving candidate record failed",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
	} else {
		m.logger.Info("candidate saved",
			zap.Int64("user_id", user.ID),
			zap.String("vacancy", record.SelectedVacancy),
		)
	}

	reply := confirmation(record.Name, record.Phone, record.SelectedVacancy)
	sess.Clear()

	return []Reply{reply}
}
