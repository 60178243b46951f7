package bot

import (
	"fmt"

	"memebot/internal/media"
	kit "memebot/internal/transport"
)

// Reply keyboard labels. They route to the same handlers as the commands.
const (
	labelVideo   = "🎥 Видео"
	labelMemes   = "🖼️ Мемы"
	labelSticker = "📦 Стикеры"
	labelVoice   = "🎙️ Голосовухи"
	labelLuck    = "🍀 Узнать уровень удачи"
)

const (
	txtWelcome = "Приветствую вас в нашем боте!\n" +
		"Бот умеет присылать вам прикольные видео, мемы, стикеры, смешные голосовые сообщения)\n" +
		"Приятного пользования нашим ботом!\nУдачи!!!"
	txtUnlocked = "Теперь вы можете использовать бота\n" +
		"Есть два способа использования бота\n" +
		"Первый способ через \"меню\" которое находится рядом с кнопками отправки сообщения\n" +
		"Второй способ через такие команды как /menu, /video, /memes и т.д."
	txtChooseCategory = "Выберите категорию:"

	txtGatePrompt     = "Для работы бота требуется подписка на эти каналы:"
	txtGateCheck      = "✅ Проверить подписку"
	txtGateOK         = "Вы подписаны!"
	txtGateStillNeeds = "Пожалуйста, подпишитесь на каналы, чтобы бот работал."

	txtNotFound     = "Контент не найден."
	txtFailure      = "Что-то пошло не так, попробуйте позже."
	txtVoteCounted  = "Ваш голос учтён!"
	txtAlreadyVoted = "Вы уже голосовали за этот контент!"
	txtVoteFailed   = "Ошибка обработки."
	txtNext         = "➡️ Следующее"

	txtUploadWrong    = "Отправленный контент не подходит. Попробуйте снова."
	txtUploadCanceled = "Добавление контента отменено."
	txtNoMode         = "Нет активного режима."

	txtBroadcastStart = "Вы вошли в режим рассылки. Отправьте сообщение, которое нужно разослать всем пользователям.\n" +
		"Когда захотите завершить рассылку, напишите /stop."
	txtBroadcastStop        = "Режим рассылки завершён."
	txtBroadcastUnsupported = "Этот тип сообщения не поддерживается."

	txtGrantUsage   = "Пожалуйста, введите число после команды. Пример: /dobro 123"
	txtGranted      = "ID добавлен в бота как админ"
	txtAlreadyAdmin = "Так он ж и так админ че хочешь"
	txtRevokeUsage  = "Пожалуйста, введите число после команды. Пример: /pshlnx 123"
	txtRevoked      = "Ура! теперь стало меньше на одного чупиздрика в админах"
	txtNotAdmin     = "Такого админа нет."
	txtOwnerRevoke  = "Владельца убрать нельзя."

	txtChannelUsageAdd    = "Пожалуйста, укажите название канала. Пример: /add_channel @example_channel"
	txtChannelUsageMinus  = "Пожалуйста, укажите название канала. Пример: /minus_channel @example_channel"
	txtChannelFormatAdd   = "Название канала должно начинаться с '@'. Пример: /add_channel @example_channel"
	txtChannelFormatMinus = "Название канала должно начинаться с '@'. Пример: /minus_channel @example_channel"
	txtChannelsEmpty      = "Список каналов пуст."

	txtPushDisabled = "Ежедневная рассылка выключена."
	txtPushBusy     = "Рассылка уже идёт, дождитесь завершения."
	txtPushNever    = "Ещё не запускалась."
)

// kindText holds the per-kind wording.
type kindText struct {
	label      string // reply keyboard and stats label
	accusative string
	genPlural  string
	added      string
	exists     string
	purged     string
	empty      string
	listHead   string
}

var kindTexts = map[media.Kind]kindText{
	media.KindVideo: {
		label:      labelVideo,
		accusative: "видео",
		genPlural:  "видео",
		added:      "Видео успешно добавлено.",
		exists:     "Это видео уже есть в базе.",
		purged:     "Все видео успешно удалены из базы данных.",
		empty:      "База данных не содержит видео.",
		listHead:   "Сохраненные видео ID:",
	},
	media.KindMeme: {
		label:      labelMemes,
		accusative: "мем",
		genPlural:  "мемов",
		added:      "Мем успешно добавлен.",
		exists:     "Этот мем уже есть в базе.",
		purged:     "Все мемы успешно удалены из базы данных.",
		empty:      "База данных не содержит мемов.",
		listHead:   "Сохраненные мемы ID:",
	},
	media.KindSticker: {
		label:      labelSticker,
		accusative: "стикер",
		genPlural:  "стикеров",
		added:      "Стикер успешно добавлен.",
		exists:     "Этот стикер уже есть в базе.",
		purged:     "Все стикеры успешно удалены из базы данных.",
		empty:      "База данных не содержит стикеров.",
		listHead:   "Сохраненные стикеры ID:",
	},
	media.KindVoice: {
		label:      labelVoice,
		accusative: "голосовое сообщение",
		genPlural:  "голосовух",
		added:      "Голосовое сообщение успешно добавлено.",
		exists:     "Это голосовое сообщение уже есть в базе.",
		purged:     "Все голосовые сообщения успешно удалены из базы данных.",
		empty:      "База данных не содержит голосовух.",
		listHead:   "Сохраненные голосовые сообщения ID:",
	},
}

// mediaTypes maps a kind to the transport media class it is sent and
// accepted as.
var mediaTypes = map[media.Kind]kit.MediaType{
	media.KindVideo:   kit.MediaVideo,
	media.KindMeme:    kit.MediaPhoto,
	media.KindSticker: kit.MediaSticker,
	media.KindVoice:   kit.MediaVoice,
}

func quotaText(limit int, kind media.Kind) string {
	return fmt.Sprintf("Вы достигли дневного лимита в %d %s за сегодня. Попробуйте завтра.", limit, kindTexts[kind].genPlural)
}

func exhaustedText(kind media.Kind) string {
	return fmt.Sprintf("Вы посмотрели всё: новых %s пока нет. Загляните позже.", kindTexts[kind].genPlural)
}

func uploadPrompt(kind media.Kind) string {
	return fmt.Sprintf("Отправьте %s, чтобы я его сохранил.", kindTexts[kind].accusative)
}

func broadcastDone(succeeded, failed int) string {
	if failed > 0 {
		return fmt.Sprintf("Сообщение успешно отправлено %d пользователям (не доставлено: %d).", succeeded, failed)
	}
	return fmt.Sprintf("Сообщение успешно отправлено %d пользователям.", succeeded)
}
