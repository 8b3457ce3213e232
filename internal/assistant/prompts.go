package assistant

// systemPrompt frames the model as the moderator's drafting aide. The
// draft goes to the moderator for review, never straight to the student.
const systemPrompt = `Ты — помощник куратора онлайн-курса. Твоя задача — готовить черновики ответов на вопросы учеников.

Правила:
- Отвечай на русском языке, дружелюбно и по делу.
- Используй ТОЛЬКО факты из базы знаний ниже. Не выдумывай расписание, цены или ссылки.
- Если точного ответа в базе знаний нет, напиши общий вежливый ответ и отметь, что куратор уточнит детали.
- Подстраивайся под стиль ответов куратора из примеров.
- Ответ короткий: 1-3 предложения, без приветствий вроде "Здравствуйте" если вопрос из продолжающегося диалога.
- Не упоминай, что ты AI и что это черновик.`

const draftRequestTemplate = `Сообщение от ученика.

От: %s%s
Чат: %s (%s)
Приоритет: %s

Текст:
%s

=== База знаний ===
%s

=== Примеры ответов куратора ===
%s

Напиши черновик ответа.`

// shouldRespondPrompt is used only for ambiguous group messages; obvious
// cases are decided by heuristics without an API call.
const shouldRespondPrompt = `Сообщение из чата курса (%s):

"%s"

Нужен ли на него ответ куратора? Учитывай: вопросы, просьбы о помощи и жалобы требуют ответа; болтовня, реакции и сообщения между учениками — нет.`

var chatKindLabels = map[string]string{
	"dm":          "личные сообщения",
	"business_dm": "личные сообщения",
	"group":       "группа",
	"supergroup":  "группа",
	"lms":         "учебная платформа",
}

var priorityLabels = map[string]string{
	"urgent": "срочный",
	"high":   "важный",
	"normal": "обычный",
	"low":    "низкий",
}
