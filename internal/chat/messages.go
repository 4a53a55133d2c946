package chat

import (
	"fmt"
	"html"
)

// Actions carried by inline buttons.
const (
	ActionSetTemplate    = "set_template"
	ActionViewTemplate   = "view_template"
	ActionSetDescription = "set_description"
	ActionHelp           = "help"
	ActionBackToMenu     = "back_to_menu"
	ActionGenerateNow    = "generate_now"
)

var (
	btnSetTemplate    = Button{Label: "📝 Загрузить образец", Action: ActionSetTemplate}
	btnViewTemplate   = Button{Label: "📋 Мой образец", Action: ActionViewTemplate}
	btnSetDescription = Button{Label: "✏️ Изменить пояснения", Action: ActionSetDescription}
	btnHelp           = Button{Label: "ℹ️ Как пользоваться", Action: ActionHelp}
	btnBackToMenu     = Button{Label: "« В меню", Action: ActionBackToMenu}
	btnGenerateNow    = Button{Label: "🚀 Создать объявление", Action: ActionGenerateNow}
)

func mainMenu() [][]Button {
	return [][]Button{
		{btnSetTemplate},
		{btnViewTemplate},
		{btnSetDescription},
		{btnHelp},
	}
}

func welcomeText(firstName string) string {
	name := html.EscapeString(firstName)
	if name == "" {
		name = "друг"
	}
	return fmt.Sprintf(`👋 Здравствуйте, %s!

Я оформляю объявления о вакансиях по вашему образцу.

<b>Как это работает:</b>
1. Пришлите готовое объявление, которое вам нравится.
2. Коротко объясните, как оно устроено.
3. Присылайте новые вакансии текстом или ссылкой, а я оформлю их так же.

Пожелания можно дописать под чертой <code>---</code>, например: «заголовок сделай короче».

Выберите действие:`, name)
}

const (
	menuText = "Выберите действие:"

	askTemplateText = `📝 <b>Образец объявления</b>

Пришлите объявление в том виде, в каком хотите получать результат. Жирный текст, цитаты, ссылки и эмодзи сохранятся.

Я посмотрю на:
• порядок блоков
• оформление
• расположение эмодзи

Для отмены отправьте /cancel.`

	askDescriptionText = `✅ Образец получен.

Теперь опишите его устройство, чтобы модель поняла роль каждого блока. Например:
«Первая строка: должность жирным. Дальше компания между 💚, потом формат и опыт. О компании цитатой. Внизу ссылка на отклик».

Для отмены отправьте /cancel.`

	askDescriptionEditText = `✏️ <b>Новые пояснения к образцу</b>

Пришлите обновлённое описание структуры. Например:
«Должность жирным в первой строке, компания между 💚, описание в цитате, ссылка в конце».

Для отмены отправьте /cancel.`

	noTemplateText = "❌ Образца пока нет. Нажмите «Загрузить образец», чтобы добавить его."

	describeNeedsTemplateText = "Сначала загрузите образец, после этого можно будет поменять пояснения."

	vacancyNeedsTemplateText = "⚠️ Мне нужен образец объявления.\nНажмите кнопку ниже и пришлите пример."

	readyText = `📋 <b>Жду вакансию</b>

Пришлите текст вакансии или ссылку на неё.

Пожелания можно добавить после строки <code>---</code>:
• «заголовок: Senior Go Developer»
• «ссылку на отклик возьми https://...»
• «компанию назови TechCorp»`

	helpText = `<b>📖 Как пользоваться</b>

<b>1. Образец.</b> Нажмите «Загрузить образец» и пришлите готовое объявление, затем короткое описание его структуры.

<b>2. Вакансии.</b> Присылайте текст вакансии или ссылку. Страницу по ссылке я прочитаю сам.

<b>3. Пожелания.</b> Под строкой <code>---</code> можно написать, что поменять именно в этот раз.

Образец задаёт стиль, а не жёсткий шаблон: содержание берётся из новой вакансии.

Команды: /start, /generate, /cancel, /help.`

	cancelledText = "❌ Действие отменено.\n\nВ главное меню: /start."

	emptyInputText = "Пришлите, пожалуйста, текст."

	doneHintText = `✅ Готово, можно пересылать в канал.

Пришлите следующую вакансию. Пожелания пишите под строкой <code>---</code>.`

	genericErrorText = "❌ Не получилось обработать запрос. Попробуйте ещё раз."

	statusProcessing = "🔄 Разбираю вакансию..."
	statusFetching   = "🔄 Читаю страницу вакансии...\n🌐 Извлекаю текст..."
	statusGenerating = "🔄 Оформляю объявление..."
)

func savedText(description string) string {
	return fmt.Sprintf(`✅ <b>Образец сохранён.</b>

<b>Пояснения:</b> %s

Теперь присылайте вакансии текстом или ссылкой. Меню: /start.`, html.EscapeString(description))
}

func descriptionUpdatedText(description string) string {
	return fmt.Sprintf("✅ Пояснения обновлены.\n\n<b>Теперь так:</b> %s", html.EscapeString(description))
}

func viewTemplateText(text, description string) string {
	desc := html.EscapeString(description)
	if desc == "" {
		desc = "<i>нет</i>"
	}
	return fmt.Sprintf("<b>Ваш образец</b>\n\n<b>Пояснения:</b> %s\n\n%s", desc, text)
}
