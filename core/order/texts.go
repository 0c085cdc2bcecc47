package order

// Texts is the user-facing copy of the conversation.
type Texts struct {
	Welcome      string `yaml:"welcome"`
	AskPhone     string `yaml:"ask_phone"`
	InvalidPhone string `yaml:"invalid_phone"`
	AskComment   string `yaml:"ask_comment"`
	SkipComment  string `yaml:"skip_comment"`
	Confirmation string `yaml:"confirmation"`
	Cancelled    string `yaml:"cancelled"`
	Apology      string `yaml:"apology"`

	OrderTitle   string `yaml:"order_title"`
	LabelName    string `yaml:"label_name"`
	LabelPhone   string `yaml:"label_phone"`
	LabelComment string `yaml:"label_comment"`
}

// DefaultTexts returns the stock Russian copy.
func DefaultTexts() Texts {
	return Texts{
		Welcome:      "🍰 Добро пожаловать! Я приму ваш заказ на торт.\nКак вас зовут?",
		AskPhone:     "📞 Укажите номер телефона:",
		InvalidPhone: "❗ Некорректный номер, попробуйте ещё раз:",
		AskComment:   "💬 Ваш комментарий (вкус, вес, дата) или «-» если без:",
		SkipComment:  "-",
		Confirmation: "Спасибо! Ваш заказ принят ✅",
		Cancelled:    "Отменено. Чтобы начать заново, отправьте /start.",
		Apology:      "😔 Не удалось передать заказ. Пожалуйста, попробуйте позже.",

		OrderTitle:   "🎂 Новый заказ торта!",
		LabelName:    "Имя",
		LabelPhone:   "Телефон",
		LabelComment: "Комментарий",
	}
}

// WithDefaults fills every empty field from DefaultTexts.
func (t Texts) WithDefaults() Texts {
	d := DefaultTexts()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&t.Welcome, d.Welcome)
	fill(&t.AskPhone, d.AskPhone)
	fill(&t.InvalidPhone, d.InvalidPhone)
	fill(&t.AskComment, d.AskComment)
	fill(&t.SkipComment, d.SkipComment)
	fill(&t.Confirmation, d.Confirmation)
	fill(&t.Cancelled, d.Cancelled)
	fill(&t.Apology, d.Apology)
	fill(&t.OrderTitle, d.OrderTitle)
	fill(&t.LabelName, d.LabelName)
	fill(&t.LabelPhone, d.LabelPhone)
	fill(&t.LabelComment, d.LabelComment)
	return t
}
