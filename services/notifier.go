package services

import (
	"context"
	"fmt"
	"html"
	"log"

	"clinic_backend/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TrialNotice уведомление о скором окончании пробного периода
type TrialNotice struct {
	ClinicID    uint
	ClinicName  string
	ClinicEmail string
	PlanName    string
	DaysLeft    int
}

// Notifier канал доставки уведомлений о подписках
type Notifier interface {
	NotifyTrialEnding(ctx context.Context, notice TrialNotice) error
}

// LogNotifier пишет уведомления в лог, используется без настроенного Telegram
type LogNotifier struct{}

// NotifyTrialEnding реализует Notifier
func (LogNotifier) NotifyTrialEnding(_ context.Context, notice TrialNotice) error {
	logger.Info("пробный период заканчивается",
		"clinic_id", notice.ClinicID,
		"clinic", notice.ClinicName,
		"email", notice.ClinicEmail,
		"plan", notice.PlanName,
		"days_left", notice.DaysLeft,
	)
	return nil
}

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier отправляет уведомления в служебный чат Telegram
type TelegramNotifier struct {
	bot    telegramSender
	chatID int64
}

// NewTelegramNotifier авторизует бота и создает уведомитель
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}
	bot.Debug = false

	log.Printf("✅ Telegram бот авторизован: %s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// NotifyTrialEnding реализует Notifier
func (tn *TelegramNotifier) NotifyTrialEnding(_ context.Context, notice TrialNotice) error {
	msg := tgbotapi.NewMessage(tn.chatID, FormatTrialNotice(notice))
	msg.ParseMode = tgbotapi.ModeHTML

	if _, err := tn.bot.Send(msg); err != nil {
		return fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	return nil
}

// FormatTrialNotice формирует HTML текст уведомления
func FormatTrialNotice(notice TrialNotice) string {
	return fmt.Sprintf(
		"⏳ <b>Пробный период заканчивается</b>\n\nКлиника: %s (#%d)\nEmail: %s\nТариф: %s\nОсталось дней: %d",
		html.EscapeString(notice.ClinicName), notice.ClinicID,
		html.EscapeString(notice.ClinicEmail), notice.PlanName, notice.DaysLeft,
	)
}

// NewNotifier выбирает Telegram, если он настроен, иначе лог
func NewNotifier(token string, chatID int64) Notifier {
	if token == "" || chatID == 0 {
		return LogNotifier{}
	}
	notifier, err := NewTelegramNotifier(token, chatID)
	if err != nil {
		log.Printf("⚠️ Telegram недоступен, уведомления пишутся в лог: %v", err)
		return LogNotifier{}
	}
	return notifier
}
