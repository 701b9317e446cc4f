// Package telegram adapts the funnel to the Telegram Bot API: it routes
// inbound updates into the state machine and renders replies as messages
// with reply keyboards.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/akozyrev/hr-intake-bot/internal/funnel"
	"github.com/akozyrev/hr-intake-bot/internal/logger"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

const pollTimeout = 10 * time.Second

// ContactMethod is the transport channel literal written into candidate
// records produced through this adapter.
const ContactMethod = "Telegram"

type Bot struct {
	bot      *tele.Bot
	machine  *funnel.Machine
	sessions *funnel.Store
	logger   *zap.Logger
}

func New(token string, machine *funnel.Machine, sessions *funnel.Store, logger *zap.Logger) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
	}

	inner, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	b := &Bot{
		bot:      inner,
		machine:  machine,
		sessions: sessions,
		logger:   logger,
	}

	inner.Handle("/start", b.onStart)
	inner.Handle(tele.OnText, b.onText)

	return b, nil
}

// Start begins long polling. It blocks until Stop is called.
func (b *Bot) Start() {
	b.logger.Info("telegram bot started")
	b.bot.Start()
}

func (b *Bot) Stop() {
	b.bot.Stop()
	b.logger.Info("telegram bot stopped")
}

func (b *Bot) onStart(c tele.Context) error {
	user := senderToUser(c.Sender())
	sess := b.sessions.Get(user.ID)

	return b.send(c, b.machine.Start(sess, user))
}

func (b *Bot) onText(c tele.Context) error {
	user := senderToUser(c.Sender())
	sess := b.sessions.Get(user.ID)

	b.logger.Debug("inbound message",
		zap.Int64("user_id", user.ID),
		zap.String("text_preview", logger.TruncateForLog(c.Text(), 80)),
	)

	return b.send(c, b.machine.Handle(context.Background(), sess, user, c.Text()))
}

func (b *Bot) send(c tele.Context, replies []funnel.Reply) error {
	for _, reply := range replies {
		opts := &tele.SendOptions{ReplyMarkup: markupFor(reply.Keyboard)}
		if reply.HTML {
			opts.ParseMode = tele.ModeHTML
		}

		if err := c.Send(reply.Text, opts); err != nil {
			return fmt.Errorf("sending reply: %w", err)
		}
	}
	return nil
}

func senderToUser(sender *tele.User) funnel.User {
	if sender == nil {
		return funnel.User{}
	}

	fullName := strings.TrimSpace(sender.FirstName + " " + sender.LastName)
	return funnel.User{
		ID:       sender.ID,
		Name:     sender.FirstName,
		FullName: fullName,
	}
}

// markupFor renders the funnel's abstract keyboard as a one-time resized
// reply keyboard. KeyboardNone removes any previous keyboard.
func markupFor(kind funnel.Keyboard) *tele.ReplyMarkup {
	switch kind {
	case funnel.KeyboardAge:
		return choicesMarkup(funnel.AgeBrackets)
	case funnel.KeyboardCountry:
		return choicesMarkup(funnel.CountryChoices)
	case funnel.KeyboardYesNo:
		return choicesMarkup(funnel.ConsentChoices)
	case funnel.KeyboardCancel:
		return choicesMarkup([]string{"Отмена"})
	default:
		return &tele.ReplyMarkup{RemoveKeyboard: true}
	}
}

func choicesMarkup(choices []string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}

	rows := make([]tele.Row, 0, len(choices))
	for _, choice := range choices {
		rows = append(rows, markup.Row(markup.Text(choice)))
	}
	markup.Reply(rows...)

	return markup
}
