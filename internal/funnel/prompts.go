package funnel

import (
	"fmt"
	"strings"

	"github.com/akozyrev/hr-intake-bot/internal/logger"
	"github.com/akozyrev/hr-intake-bot/internal/matching"
)

// Keyboard names the fixed-choice keyboard a reply should render. The
// transport decides how to draw it; the funnel only picks which one.
type Keyboard int

const (
	KeyboardNone Keyboard = iota
	KeyboardAge
	KeyboardCountry
	KeyboardYesNo
	KeyboardCancel
)

// AgeBrackets are the accepted age bands, one keyboard button each.
var AgeBrackets = []string{"18-25", "26-35", "36-45", "46-55"}

// CountryChoices are the citizenship options, including the catch-all label.
var CountryChoices = []string{"Россия", "Узбекистан", "Казахстан", CountryOther}

// CountryOther is the catch-all citizenship label that ends the intake.
const CountryOther = "Другое"

// ConsentChoices are the contact-consent options.
var ConsentChoices = []string{"Да", "Нет"}

// Reply is one outbound message. HTML replies carry limited rich-text
// emphasis and must be rendered with an HTML-capable parse mode.
type Reply struct {
	Text     string
	Keyboard Keyboard
	HTML     bool
}

const (
	msgAgeFormat    = "Пожалуйста, укажите возраст числом в формате '18-25'"
	msgAgeRange     = "К сожалению, мы рассматриваем кандидатов только от 18 до 55 лет"
	msgCountryAsk   = "Отлично! Укажите ваше гражданство:"
	msgCountryOther = "К сожалению, мы сейчас не рассматриваем кандидатов с таким гражданством"
	msgExperience   = "Расскажите подробно о вашем опыте и навыках:\n" +
		"Пример: 'Работал сварщиком 3 года на промышленных объектах, " +
		"владею ручной дуговой сваркой, читаю чертежи, работал со сталью и алюминием'"
	msgNoMatches = "К сожалению, не найдено вакансий с достаточным уровнем совместимости (минимум 40%).\n" +
		"Совет: укажите больше технических деталей о вашем опыте и навыках."
	msgConsentAsk   = "Хотите оставить контакты для HR? (Напишите 'Да' или 'Нет')"
	msgPhoneAsk     = "Пожалуйста, отправьте ваш номер телефона в формате +79123456789"
	msgPhoneInvalid = "Некорректный формат номера. Пожалуйста, введите номер в формате +79123456789"
	msgGoodbye      = "Спасибо за использование нашего бота! Для нового поиска используйте /start"
)

const descriptionPreviewRunes = 150

func greeting(firstName string) Reply {
	return Reply{
		Text: fmt.Sprintf("Привет, %s!\n", firstName) +
			"Я HR-бот для подбора вакансий в строительной сфере.\n" +
			"Сначала уточню несколько моментов:\n" +
			"Сколько вам лет?",
		Keyboard: KeyboardAge,
	}
}

// renderMatches formats the ranked listing: title in bold, salary, the
// similarity as a percentage with one decimal place and a truncated
// description.
func renderMatches(results []matching.Result) Reply {
	var b strings.Builder
	b.WriteString("🏆 Найденные вакансии (совместимость от 40%):\n\n")

	for i, r := range results {
		fmt.Fprintf(&b, "%d. <b>%s</b>\n", i+1, r.Title)
		fmt.Fprintf(&b, "   💰 <i>Зарплата:</i> %s\n", r.Salary)
		fmt.Fprintf(&b, "   📊 <i>Совместимость:</i> %.1f%%\n", r.Score*100)
		fmt.Fprintf(&b, "   📌 <i>Описание:</i> %s\n\n", logger.TruncateForLog(r.Description, descriptionPreviewRunes))
	}

	return Reply{Text: b.String(), HTML: true}
}

func confirmation(name, phone, vacancy string) Reply {
	return Reply{
		Text: "✅ Ваши данные сохранены:\n" +
			fmt.Sprintf("Имя: %s\n", name) +
			fmt.Sprintf("Телефон: %s\n", phone) +
			fmt.Sprintf("Рассматриваемая вакансия: %s\n\n", vacancy) +
			"HR-менеджер свяжется с вами в течение 2 рабочих дней.\n" +
			"Для нового поиска используйте /start",
	}
}
