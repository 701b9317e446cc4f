package funnel

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akozyrev/hr-intake-bot/internal/candidates"
	"github.com/akozyrev/hr-intake-bot/internal/matching"
	"go.uber.org/zap"
)

type stubMatcher struct {
	results  []matching.Result
	lastText string
	calls    int
}

func (s *stubMatcher) Match(_ context.Context, text, _ string) []matching.Result {
	s.calls++
	s.lastText = text
	return s.results
}

type stubSink struct {
	records []candidates.Record
	err     error
}

func (s *stubSink) Append(record candidates.Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

var testUser = User{ID: 42, Name: "Иван", FullName: "Иван Петров"}

func newTestMachine(matcher *stubMatcher, sink *stubSink) *Machine {
	return NewMachine(matcher, sink, "Telegram", zap.NewNop())
}

func matched() []matching.Result {
	return []matching.Result{
		{Title: "Сварщик", Salary: "70-90 тыс.", Description: "Сварка металлоконструкций", Score: 0.83},
		{Title: "Строитель", Salary: "60-80 тыс.", Description: "Общестроительные работы", Score: 0.47},
	}
}

func startSession(m *Machine) *Session {
	sess := &Session{State: StateStart}
	m.Start(sess, testUser)
	return sess
}

func TestStartResetsSession(t *testing.T) {
	m := newTestMachine(&stubMatcher{}, &stubSink{})
	sess := &Session{
		State:           StateAwaitingConsent,
		AgeBracket:      "26-35",
		Country:         "Россия",
		Experience:      "old",
		SelectedVacancy: "Сварщик",
		AwaitingPhone:   true,
	}

	replies := m.Start(sess, testUser)

	if sess.State != StateAwaitingAge {
		t.Fatalf("expected AWAITING_AGE, got %s", sess.State)
	}
	if sess.AgeBracket != "" || sess.Country != "" || sess.Experience != "" ||
		sess.SelectedVacancy != "" || sess.AwaitingPhone {
		t.Fatalf("expected cleared session, got %+v", sess)
	}
	if len(replies) != 1 || replies[0].Keyboard != KeyboardAge {
		t.Fatalf("expected one age-keyboard reply, got %+v", replies)
	}
	if !strings.Contains(replies[0].Text, "Иван") {
		t.Fatalf("greeting should address the user: %q", replies[0].Text)
	}
}

func TestAgeAcceptedAdvancesToCountry(t *testing.T) {
	for _, bracket := range AgeBrackets {
		m := newTestMachine(&stubMatcher{}, &stubSink{})
		sess := startSession(m)

		replies := m.Handle(context.Background(), sess, testUser, bracket)

		if sess.State != StateAwaitingCountry {
			t.Fatalf("bracket %q: expected AWAITING_COUNTRY, got %s", bracket, sess.State)
		}
		if sess.AgeBracket != bracket {
			t.Fatalf("bracket %q not stored, got %q", bracket, sess.AgeBracket)
		}
		if len(replies) != 1 || replies[0].Keyboard != KeyboardCountry {
			t.Fatalf("bracket %q: expected country prompt, got %+v", bracket, replies)
		}
	}
}

func TestAgeRejected(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "alphabetic", input: "двадцать"},
		{name: "mixed", input: "25 лет"},
		{name: "below range", input: "17-20"},
		{name: "above range", input: "56-60"},
		{name: "empty", input: ""},
		{name: "punctuation only", input: "--"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine(&stubMatcher{}, &stubSink{})
			sess := startSession(m)

			replies := m.Handle(context.Background(), sess, testUser, tt.input)

			if sess.State != StateAwaitingAge {
				t.Fatalf("expected to remain in AWAITING_AGE, got %s", sess.State)
			}
			if sess.AgeBracket != "" {
				t.Fatalf("no field should be mutated, got bracket %q", sess.AgeBracket)
			}
			if len(replies) != 1 || replies[0].Text == "" {
				t.Fatalf("expected a re-prompt, got %+v", replies)
			}
		})
	}
}

func TestAgeBoundaryValues(t *testing.T) {
	// Free-form bands with a leading number inside [18, 55] are accepted.
	for _, input := range []string{"18-25", "55-60", "46-55"} {
		m := newTestMachine(&stubMatcher{}, &stubSink{})
		sess := startSession(m)

		m.Handle(context.Background(), sess, testUser, input)
		if sess.State != StateAwaitingCountry {
			t.Fatalf("input %q: expected acceptance, state %s", input, sess.State)
		}
	}
}

func TestCountryOtherNeverAdvances(t *testing.T) {
	m := newTestMachine(&stubMatcher{}, &stubSink{})
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")

	replies := m.Handle(context.Background(), sess, testUser, "Другое")

	if sess.State != StateAwaitingCountry {
		t.Fatalf("expected to remain in AWAITING_COUNTRY, got %s", sess.State)
	}
	if sess.Country != "" {
		t.Fatalf("country must not be stored, got %q", sess.Country)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "не рассматриваем") {
		t.Fatalf("expected rejection message, got %+v", replies)
	}

	// A supported country can still be picked afterwards.
	m.Handle(context.Background(), sess, testUser, "Казахстан")
	if sess.State != StateAwaitingExperience || sess.Country != "Казахстан" {
		t.Fatalf("expected recovery to AWAITING_EXPERIENCE, got %s / %q", sess.State, sess.Country)
	}
}

func TestExperienceWithoutCountryRestartsFunnel(t *testing.T) {
	matcher := &stubMatcher{results: matched()}
	m := newTestMachine(matcher, &stubSink{})
	sess := &Session{State: StateStart}

	replies := m.Handle(context.Background(), sess, testUser, "работал сварщиком")

	if sess.State != StateAwaitingAge {
		t.Fatalf("expected restart to AWAITING_AGE, got %s", sess.State)
	}
	if matcher.calls != 0 {
		t.Fatalf("matching must not run without a country")
	}
	if len(replies) != 1 || replies[0].Keyboard != KeyboardAge {
		t.Fatalf("expected greeting with age keyboard, got %+v", replies)
	}
}

func TestExperienceNoMatchesStaysAndRetries(t *testing.T) {
	matcher := &stubMatcher{}
	m := newTestMachine(matcher, &stubSink{})
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")
	m.Handle(context.Background(), sess, testUser, "Россия")

	replies := m.Handle(context.Background(), sess, testUser, "немного работал")

	if sess.State != StateAwaitingExperience {
		t.Fatalf("expected to remain in AWAITING_EXPERIENCE, got %s", sess.State)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "не найдено вакансий") {
		t.Fatalf("expected no-match message, got %+v", replies)
	}

	// A more detailed second attempt can still succeed.
	matcher.results = matched()
	m.Handle(context.Background(), sess, testUser, "работал сварщиком 3 года, ручная дуговая сварка")
	if sess.State != StateAwaitingConsent {
		t.Fatalf("expected AWAITING_CONTACT_CONSENT after retry, got %s", sess.State)
	}
	if sess.SelectedVacancy != "Сварщик" {
		t.Fatalf("expected top match stored, got %q", sess.SelectedVacancy)
	}
}

func TestExperienceRendersRankedList(t *testing.T) {
	m := newTestMachine(&stubMatcher{results: matched()}, &stubSink{})
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")
	m.Handle(context.Background(), sess, testUser, "Россия")

	replies := m.Handle(context.Background(), sess, testUser, "опыт сварки")

	if len(replies) != 2 {
		t.Fatalf("expected listing + consent prompt, got %d replies", len(replies))
	}

	listing := replies[0]
	if !listing.HTML {
		t.Fatalf("listing must be HTML")
	}
	if !strings.Contains(listing.Text, "<b>Сварщик</b>") {
		t.Fatalf("expected bold title in listing: %q", listing.Text)
	}
	if !strings.Contains(listing.Text, "83.0%") || !strings.Contains(listing.Text, "47.0%") {
		t.Fatalf("expected one-decimal percentages: %q", listing.Text)
	}

	consent := replies[1]
	if consent.Keyboard != KeyboardYesNo {
		t.Fatalf("expected yes/no keyboard, got %+v", consent)
	}
}

func TestConsentNoClearsSessionWithoutRecord(t *testing.T) {
	sink := &stubSink{}
	m := newTestMachine(&stubMatcher{results: matched()}, sink)
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")
	m.Handle(context.Background(), sess, testUser, "Россия")
	m.Handle(context.Background(), sess, testUser, "опыт сварки")

	replies := m.Handle(context.Background(), sess, testUser, "Нет")

	if sess.State != StateStart || sess.AwaitingPhone {
		t.Fatalf("expected cleared session, got %+v", sess)
	}
	if len(sink.records) != 0 {
		t.Fatalf("no record must be written on decline")
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "/start") {
		t.Fatalf("expected goodbye, got %+v", replies)
	}
}

func TestConsentAnythingElseCountsAsDecline(t *testing.T) {
	m := newTestMachine(&stubMatcher{results: matched()}, &stubSink{})
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")
	m.Handle(context.Background(), sess, testUser, "Россия")
	m.Handle(context.Background(), sess, testUser, "опыт сварки")

	m.Handle(context.Background(), sess, testUser, "возможно")

	if sess.State != StateStart {
		t.Fatalf("expected cleared session on non-yes answer, got %s", sess.State)
	}
}

func TestPhoneValidation(t *testing.T) {
	valid := []string{"+79123456789"}
	invalid := []string{
		"89123456789",      // missing prefix
		"+7912345678",      // nine digits
		"+791234567890",    // eleven digits
		"+7912345678a",     // non-digit
		"+7 912 345 67 89", // separators
		"+89123456789",     // wrong prefix
	}

	for _, number := range valid {
		if !IsValidPhone(number) {
			t.Fatalf("expected %q to be valid", number)
		}
	}
	for _, number := range invalid {
		if IsValidPhone(number) {
			t.Fatalf("expected %q to be invalid", number)
		}
	}
}

func TestPhoneMismatchReprompts(t *testing.T) {
	sink := &stubSink{}
	m := newTestMachine(&stubMatcher{results: matched()}, sink)
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")
	m.Handle(context.Background(), sess, testUser, "Россия")
	m.Handle(context.Background(), sess, testUser, "опыт сварки")
	m.Handle(context.Background(), sess, testUser, "Да")

	replies := m.Handle(context.Background(), sess, testUser, "89123456789")

	if sess.State != StateAwaitingPhone {
		t.Fatalf("expected to remain in AWAITING_PHONE, got %s", sess.State)
	}
	if len(sink.records) != 0 {
		t.Fatalf("no record must be written for invalid phone")
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Некорректный формат") {
		t.Fatalf("expected re-prompt, got %+v", replies)
	}
}

func TestCompletedFunnelWritesExactlyOneRecord(t *testing.T) {
	sink := &stubSink{}
	m := newTestMachine(&stubMatcher{results: matched()}, sink)
	sess := startSession(m)

	m.Handle(context.Background(), sess, testUser, "26-35")
	m.Handle(context.Background(), sess, testUser, "Россия")
	m.Handle(context.Background(), sess, testUser, "работал сварщиком 3 года")
	m.Handle(context.Background(), sess, testUser, "Да")
	replies := m.Handle(context.Background(), sess, testUser, "+79123456789")

	if len(sink.records) != 1 {
		t.Fatalf("expected exactly one record, got %d", len(sink.records))
	}

	record := sink.records[0]
	if record.SelectedVacancy != "Сварщик" {
		t.Fatalf("selected vacancy must equal top match, got %q", record.SelectedVacancy)
	}
	if record.UserID != testUser.ID || record.Name != testUser.FullName {
		t.Fatalf("unexpected identity fields: %+v", record)
	}
	if record.Phone != "+79123456789" || record.Age != "26-35" || record.Country != "Россия" {
		t.Fatalf("unexpected record fields: %+v", record)
	}
	if record.ContactMethod != "Telegram" {
		t.Fatalf("unexpected contact method: %q", record.ContactMethod)
	}

	if sess.State != StateStart {
		t.Fatalf("expected cleared session after completion, got %s", sess.State)
	}
	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Ваши данные сохранены") {
		t.Fatalf("expected confirmation, got %+v", replies)
	}
}

func TestSinkFailureDoesNotBlockConfirmation(t *testing.T) {
	sink := &stubSink{err: errors.New("disk full")}
	m := newTestMachine(&stubMatcher{results: matched()}, sink)
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")
	m.Handle(context.Background(), sess, testUser, "Россия")
	m.Handle(context.Background(), sess, testUser, "опыт сварки")
	m.Handle(context.Background(), sess, testUser, "Да")

	replies := m.Handle(context.Background(), sess, testUser, "+79123456789")

	if len(replies) != 1 || !strings.Contains(replies[0].Text, "Ваши данные сохранены") {
		t.Fatalf("confirmation must be sent despite sink failure, got %+v", replies)
	}
	if sess.State != StateStart {
		t.Fatalf("expected cleared session, got %s", sess.State)
	}
}

func TestPhoneIgnoredWhenNotArmed(t *testing.T) {
	m := newTestMachine(&stubMatcher{}, &stubSink{})
	sess := startSession(m)
	m.Handle(context.Background(), sess, testUser, "26-35")
	sess.State = StateAwaitingPhone // forced, consent never given

	replies := m.Handle(context.Background(), sess, testUser, "+79123456789")

	if replies != nil {
		t.Fatalf("expected no response for unarmed phone state, got %+v", replies)
	}
	if sess.State != StateAwaitingPhone {
		t.Fatalf("state must not change, got %s", sess.State)
	}
}

func TestStoreIsolatesUsers(t *testing.T) {
	store := NewStore()

	a := store.Get(1)
	b := store.Get(2)
	if a == b {
		t.Fatalf("sessions must not be shared between users")
	}

	a.State = StateAwaitingCountry
	if store.Get(1) != a {
		t.Fatalf("expected the same session on repeated Get")
	}
	if store.Get(2).State != StateStart {
		t.Fatalf("other user's session must be untouched")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}
}
