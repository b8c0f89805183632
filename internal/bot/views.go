package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/models"
)

// Reply keyboard labels. Pressing one sends its text as an ordinary turn.
const (
	btnCreateTrip  = "Создать рейс"
	btnSearchTrips = "Поиск рейсов"
	btnManageTrips = "Управление рейсами"
	btnChooseRole  = "Выбрать роль"
	btnMyData      = "Мои данные"
	btnEditData    = "Изменить"
	btnBackToMenu  = "Назад в меню"
)

const (
	msgAskName        = "Сәләм! Введите имя:"
	msgAskNameAgain   = "Введите имя:"
	msgAskPhone       = "Введите номер телефона:"
	msgAskRole        = "Выберите роль:"
	msgAskDate        = "Выберите дату:"
	msgAskFrom        = "Откуда:"
	msgAskTo          = "Куда:"
	msgAskTime        = "Введите время и место отправления (например, 15:00 Центральный Автовокзал):"
	msgAskCar         = "Введите марку автомобиля:"
	msgAskPrice       = "Цена проезда:"
	msgAskSeats       = "Количество мест:"
	msgAskRoute       = "Введите новый маршрут в формате: Откуда → Куда"
	msgChooseFunction = "Выберите функцию:"
	msgUseMenu        = "Пожалуйста, пользуйтесь меню"
	msgUseMenuReset   = "Используйте меню:"

	msgTripMissing     = "Рейс не найден или уже завершён."
	msgAlreadyAsked    = "Вы уже отправили запрос на этот рейс!"
	msgRequestSent     = "Запрос отправлен, ожидайте подтверждения!"
	msgConfirmPrompt   = "Подтвердите запрос:"
	msgTripVanished    = "Рейс не найден или был отменён."
	msgNoSeats         = "К сожалению, мест нет."
	msgRejected        = "❌ Ваш запрос отклонен."
	msgNotOwner        = "Вы не являетесь владельцем этого рейса."
	msgTripDeleted     = "🗑️ Рейс удалён."
	msgSeatCancelled   = "❌ Вы отменили своё место в рейсе."
	msgNoMatches       = "❌ Нет подходящих рейсов."
	msgNoDriverTrips   = "❌ У вас пока нет созданных рейсов."
	msgNoPassengers    = "Нет пассажиров"
	msgUnknownRole     = "Роль не выбрана"
	fmtRoleChosen      = "Вы выбрали роль: %s"
	fmtTripLimit       = "❌ Нельзя создавать больше %d активных рейсов. Удалите или дождитесь окончания одного из текущих рейсов."
	fmtProfile         = "Ваше имя: %s, ваш номер: %s"
	fmtJoinRequest     = "Пассажир %s (%s, %s) хочет присоединиться к рейсу %s."
	fallbackPassenger  = "Пассажир"
	datePickerDays     = 7
	datePickerRowWidth = 4
)

// Cities offered as quick picks for departure and arrival.
var cities = [][]string{
	{"Уфа", "Инзер"},
	{"Белорецк", "Аскарово"},
	{"Магнитогорск"},
}

func replyKeyboard(rows ...[]string) *messenger.Keyboard {
	kb := &messenger.Keyboard{}
	for _, row := range rows {
		buttons := make([]messenger.Button, 0, len(row))
		for _, text := range row {
			buttons = append(buttons, messenger.Button{Text: text})
		}
		kb.Rows = append(kb.Rows, buttons)
	}
	return kb
}

func inlineKeyboard(rows ...[]messenger.Button) *messenger.Keyboard {
	return &messenger.Keyboard{Inline: true, Rows: rows}
}

func mainMenu(role models.Role) *messenger.Keyboard {
	if role == models.RoleDriver {
		return replyKeyboard([]string{btnCreateTrip}, []string{btnManageTrips}, []string{btnChooseRole}, []string{btnMyData})
	}
	return replyKeyboard([]string{btnSearchTrips}, []string{btnChooseRole}, []string{btnMyData})
}

func roleKeyboard() *messenger.Keyboard {
	return replyKeyboard([]string{string(models.RoleDriver), string(models.RolePassenger)})
}

func profileKeyboard() *messenger.Keyboard {
	return replyKeyboard([]string{btnEditData, btnBackToMenu})
}

func cityKeyboard() *messenger.Keyboard {
	kb := &messenger.Keyboard{Inline: true}
	for _, row := range cities {
		buttons := make([]messenger.Button, 0, len(row))
		for _, c := range row {
			buttons = append(buttons, messenger.Button{Text: c, Data: c})
		}
		kb.Rows = append(kb.Rows, buttons)
	}
	return kb
}

const datePrefix = "date_"

// dateKeyboard offers today and the following days as dd.MM buttons.
func dateKeyboard(today time.Time) *messenger.Keyboard {
	kb := &messenger.Keyboard{Inline: true}
	var row []messenger.Button
	for i := range datePickerDays {
		label := today.AddDate(0, 0, i).Format("02.01")
		row = append(row, messenger.Button{Text: label, Data: datePrefix + label})
		if len(row) == datePickerRowWidth {
			kb.Rows = append(kb.Rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb.Rows = append(kb.Rows, row)
	}
	return kb
}

func callbackData(verb string, tripID int) string {
	return verb + "_" + strconv.Itoa(tripID)
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// md escapes user-entered text for Markdown output.
func md(s string) string {
	return markdownEscaper.Replace(s)
}

// handle renders a username for Markdown output.
func handle(name string) string {
	return "@" + md(name)
}

func createdView(t models.Trip) string {
	var b strings.Builder
	b.WriteString("🚗 *Ваш рейс создан!* 🚗\n\n")
	fmt.Fprintf(&b, "*Маршрут:* %s\n", md(t.Route()))
	fmt.Fprintf(&b, "*Дата и время:* %s %s\n", md(t.Date), md(t.Time))
	fmt.Fprintf(&b, "*Авто:* %s\n", md(t.Car))
	fmt.Fprintf(&b, "*Цена:* %s\n", md(t.Price))
	fmt.Fprintf(&b, "*Мест:* %d\n\n", t.Seats)
	b.WriteString("Вы можете управлять рейсом через 'Управление рейсами'.")
	return b.String()
}

func matchView(t models.Trip, driverHandle, driverPhone string) messenger.Message {
	var b strings.Builder
	b.WriteString("🚗 *Рейс найден:*\n")
	fmt.Fprintf(&b, "Маршрут: %s\n", md(t.Route()))
	fmt.Fprintf(&b, "Дата и время: %s %s\n", md(t.Date), md(t.Time))
	fmt.Fprintf(&b, "Водитель: %s | %s\n", md(t.DriverName), handle(driverHandle))
	fmt.Fprintf(&b, "Телефон водителя: %s\n", md(driverPhone))
	fmt.Fprintf(&b, "Авто: %s\n", md(t.Car))
	fmt.Fprintf(&b, "Цена: %s\n", md(t.Price))
	fmt.Fprintf(&b, "Осталось мест: %d", t.Seats)
	return messenger.Message{
		Text:     b.String(),
		Markdown: true,
		Keyboard: inlineKeyboard([]messenger.Button{{Text: "Выбрать рейс", Data: callbackData(verbJoin, t.ID)}}),
	}
}

// passengerLine is one row of the passenger list in the driver view.
type passengerLine struct {
	Name   string
	Handle string
	Phone  string
}

func driverView(t models.Trip, passengers []passengerLine) messenger.Message {
	var b strings.Builder
	b.WriteString("🚗 *Ваш рейс:*\n")
	fmt.Fprintf(&b, "Маршрут: %s\n", md(t.Route()))
	fmt.Fprintf(&b, "Дата и время: %s %s\n", md(t.Date), md(t.Time))
	fmt.Fprintf(&b, "Авто: %s\n", md(t.Car))
	fmt.Fprintf(&b, "Цена: %s\n", md(t.Price))
	fmt.Fprintf(&b, "Осталось мест: %d\n\n", t.Seats)
	b.WriteString("*Пассажиры:*")
	if len(passengers) == 0 {
		b.WriteString(msgNoPassengers)
	}
	for _, p := range passengers {
		fmt.Fprintf(&b, "\n- %s | %s | %s", md(p.Name), handle(p.Handle), md(p.Phone))
	}
	return messenger.Message{
		Text:     b.String(),
		Markdown: true,
		Keyboard: inlineKeyboard([]messenger.Button{
			{Text: "Удалить", Data: callbackData(verbDelete, t.ID)},
			{Text: "Редактировать", Data: callbackData(verbEdit, t.ID)},
		}),
	}
}

func confirmedView(t models.Trip, driverHandle, driverPhone string) messenger.Message {
	var b strings.Builder
	b.WriteString("✅ *Ваше место подтверждено!* \n")
	fmt.Fprintf(&b, "Маршрут: %s\n", md(t.Route()))
	fmt.Fprintf(&b, "Дата и время: %s %s\n", md(t.Date), md(t.Time))
	fmt.Fprintf(&b, "Водитель: %s | %s\n", md(t.DriverName), handle(driverHandle))
	fmt.Fprintf(&b, "Телефон водителя: %s", md(driverPhone))
	return messenger.Message{
		Text:     b.String(),
		Markdown: true,
		Keyboard: inlineKeyboard([]messenger.Button{{Text: "Отменить место", Data: callbackData(verbCancel, t.ID)}}),
	}
}

func deletedView(t models.Trip) messenger.Message {
	var b strings.Builder
	b.WriteString("❌ *Рейс отменён!* ❌\n")
	fmt.Fprintf(&b, "Водитель %s отменил рейс.\n", md(t.DriverName))
	fmt.Fprintf(&b, "Маршрут: %s\n", md(t.Route()))
	fmt.Fprintf(&b, "Дата и время: %s %s", md(t.Date), md(t.Time))
	return messenger.Message{Text: b.String(), Markdown: true}
}

func joinRequestView(t models.Trip, name, passengerHandle, phone string) messenger.Message {
	text := fmt.Sprintf(fmtJoinRequest, name, "@"+passengerHandle, phone, t.Route()) + "\n" + msgConfirmPrompt
	return messenger.Message{
		Text: text,
		Keyboard: inlineKeyboard([]messenger.Button{
			{Text: "Подтвердить", Data: callbackData(verbConfirm, t.ID)},
			{Text: "Отклонить", Data: callbackData(verbReject, t.ID)},
		}),
	}
}

func roleLabel(r models.Role) string {
	if r == models.RoleUnset {
		return msgUnknownRole
	}
	return string(r)
}
