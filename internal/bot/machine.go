package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/example/ridebot/internal/events"
	"github.com/example/ridebot/internal/matcher"
	"github.com/example/ridebot/internal/messenger"
	"github.com/example/ridebot/internal/models"
	"github.com/example/ridebot/internal/notify"
	"github.com/example/ridebot/internal/observability"
	"github.com/example/ridebot/internal/registry"
)

// Sweeper removes departed trips on demand.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

// Machine advances chat dialogues. It is safe for concurrent use as long as
// turns of the same chat are not handled concurrently.
type Machine struct {
	reg     *registry.Registry
	out     *notify.Notifier
	sweeper Sweeper
	logger  *slog.Logger
	states  *stateStore
}

func NewMachine(reg *registry.Registry, out *notify.Notifier, sweeper Sweeper, logger *slog.Logger) *Machine {
	return &Machine{
		reg:     reg,
		out:     out,
		sweeper: sweeper,
		logger:  logger,
		states:  newStateStore(),
	}
}

// State reports the chat's current dialogue state.
func (m *Machine) State(chatID int64) State {
	return m.states.get(chatID)
}

// Handle processes one inbound turn.
func (m *Machine) Handle(ctx context.Context, ev messenger.Event) {
	if ev.IsCallback {
		m.HandleCallback(ctx, ev.FromID, ev.Callback)
		return
	}
	m.HandleText(ctx, ev.ChatID, ev.Text)
}

// HandleText processes a typed message or a reply keyboard press.
func (m *Machine) HandleText(ctx context.Context, chatID int64, text string) {
	profile, created := m.reg.EnsureProfile(ctx, chatID)
	if created {
		m.states.set(chatID, StateAwaitingName)
		m.send(ctx, chatID, messenger.Message{Text: msgAskName})
		return
	}
	m.step(ctx, profile, m.states.get(chatID), strings.TrimSpace(text))
}

func (m *Machine) step(ctx context.Context, p models.UserProfile, st State, text string) {
	chatID := p.ChatID
	switch st {
	case StateAwaitingName:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Name = text })
		m.transition(ctx, chatID, StateAwaitingPhone, messenger.Message{Text: msgAskPhone})

	case StateAwaitingPhone:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Phone = text })
		m.transition(ctx, chatID, StateChoosingRole, messenger.Message{Text: msgAskRole, Keyboard: roleKeyboard()})

	case StateChoosingRole:
		role := parseRole(text)
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Role = role })
		m.transition(ctx, chatID, StateMainMenu, messenger.Message{
			Text:     fmt.Sprintf(fmtRoleChosen, roleLabel(role)),
			Keyboard: mainMenu(role),
		})

	case StateMainMenu:
		m.mainMenu(ctx, p, text)

	case StateDriverAwaitingDate:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Date = text })
		m.transition(ctx, chatID, StateDriverAwaitingDeparture, messenger.Message{Text: msgAskFrom, Keyboard: cityKeyboard()})

	case StateDriverAwaitingDeparture:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Departure = text })
		m.transition(ctx, chatID, StateDriverAwaitingArrival, messenger.Message{Text: msgAskTo, Keyboard: cityKeyboard()})

	case StateDriverAwaitingArrival:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Arrival = text })
		m.transition(ctx, chatID, StateDriverAwaitingTime, messenger.Message{Text: msgAskTime})

	case StateDriverAwaitingTime:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Time = text })
		m.transition(ctx, chatID, StateDriverAwaitingCar, messenger.Message{Text: msgAskCar})

	case StateDriverAwaitingCar:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Car = text })
		m.transition(ctx, chatID, StateDriverAwaitingPrice, messenger.Message{Text: msgAskPrice})

	case StateDriverAwaitingPrice:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Price = text })
		m.transition(ctx, chatID, StateDriverAwaitingSeats, messenger.Message{Text: msgAskSeats})

	case StateDriverAwaitingSeats:
		m.createTrip(ctx, p, parseSeats(text))

	case StatePassengerAwaitingDeparture:
		m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Departure = text })
		m.transition(ctx, chatID, StatePassengerAwaitingArrival, messenger.Message{Text: msgAskTo, Keyboard: cityKeyboard()})

	case StatePassengerAwaitingArrival:
		p = m.reg.UpdateProfile(ctx, chatID, func(u *models.UserProfile) { u.Draft.Arrival = text })
		m.states.set(chatID, StateMainMenu)
		m.showMatches(ctx, chatID, matcher.Query{Departure: p.Draft.Departure, Arrival: p.Draft.Arrival})

	default:
		if tripID, ok := st.EditedTrip(); ok {
			m.states.set(chatID, StateMainMenu)
			m.editRoute(ctx, chatID, tripID, text)
			return
		}
		m.logger.Warn("unknown chat state, resetting", "chat_id", chatID, "state", string(st))
		m.transition(ctx, chatID, StateMainMenu, messenger.Message{Text: msgUseMenuReset, Keyboard: mainMenu(p.Role)})
	}
}

func (m *Machine) mainMenu(ctx context.Context, p models.UserProfile, text string) {
	chatID := p.ChatID
	switch {
	case text == btnCreateTrip && p.Role == models.RoleDriver:
		if m.reg.ActiveTripCount(chatID) >= m.reg.MaxActiveTrips() {
			observability.TripCreationRejected.Inc()
			m.send(ctx, chatID, m.tripLimitMessage(p.Role))
			return
		}
		m.transition(ctx, chatID, StateDriverAwaitingDate, messenger.Message{Text: msgAskDate, Keyboard: dateKeyboard(m.reg.Now())})

	case text == btnSearchTrips && p.Role == models.RolePassenger:
		m.transition(ctx, chatID, StatePassengerAwaitingDeparture, messenger.Message{Text: msgAskFrom, Keyboard: cityKeyboard()})

	case text == btnManageTrips && p.Role == models.RoleDriver:
		m.showDriverTrips(ctx, chatID)

	case text == btnChooseRole:
		m.transition(ctx, chatID, StateChoosingRole, messenger.Message{Text: msgAskRole, Keyboard: roleKeyboard()})

	case text == btnMyData:
		m.send(ctx, chatID, messenger.Message{Text: fmt.Sprintf(fmtProfile, p.Name, p.Phone), Keyboard: profileKeyboard()})

	case text == btnEditData:
		m.transition(ctx, chatID, StateAwaitingName, messenger.Message{Text: msgAskNameAgain})

	case text == btnBackToMenu:
		m.send(ctx, chatID, messenger.Message{Text: msgChooseFunction, Keyboard: mainMenu(p.Role)})

	default:
		m.send(ctx, chatID, messenger.Message{Text: msgUseMenu, Keyboard: mainMenu(p.Role)})
	}
}

func (m *Machine) createTrip(ctx context.Context, p models.UserProfile, seats int) {
	chatID := p.ChatID
	m.states.set(chatID, StateMainMenu)
	trip, err := m.reg.CreateTrip(ctx, chatID, seats)
	if errors.Is(err, registry.ErrTripLimit) {
		observability.TripCreationRejected.Inc()
		m.send(ctx, chatID, m.tripLimitMessage(p.Role))
		return
	}
	if err != nil {
		m.logger.Error("trip creation failed", "chat_id", chatID, "error", err)
		return
	}
	observability.TripsCreated.Inc()
	m.logger.Info("trip created", "chat_id", chatID, "trip_id", trip.ID, "seats", trip.Seats)
	m.send(ctx, chatID, messenger.Message{Text: createdView(trip), Markdown: true, Keyboard: mainMenu(p.Role)})
	m.publish(ctx, events.TripCreated, trip, 0)
}

func (m *Machine) tripLimitMessage(role models.Role) messenger.Message {
	return messenger.Message{Text: fmt.Sprintf(fmtTripLimit, m.reg.MaxActiveTrips()), Keyboard: mainMenu(role)}
}

func (m *Machine) editRoute(ctx context.Context, chatID int64, tripID int, text string) {
	dep, arr, ok := models.SplitRoute(text)
	if !ok {
		m.logger.Debug("malformed route edit discarded", "chat_id", chatID, "trip_id", tripID)
		return
	}
	trip, err := m.reg.EditRoute(ctx, tripID, chatID, dep, arr)
	switch {
	case errors.Is(err, registry.ErrNotOwner):
		m.send(ctx, chatID, messenger.Message{Text: msgNotOwner})
		return
	case err != nil:
		return
	}
	m.refreshDriverView(ctx, tripID)
	m.publish(ctx, events.RouteEdited, trip, 0)
}

// showMatches sends one card per open trip on the queried route.
func (m *Machine) showMatches(ctx context.Context, chatID int64, q matcher.Query) {
	m.sweeper.Sweep(ctx)
	trips := m.reg.FindMatches(q)
	if len(trips) == 0 {
		m.send(ctx, chatID, messenger.Message{Text: msgNoMatches})
		return
	}
	for _, t := range trips {
		driver, _ := m.reg.Profile(t.DriverID)
		m.send(ctx, chatID, matchView(t, m.out.Handle(ctx, t.DriverID), driver.Phone))
	}
}

func (m *Machine) showDriverTrips(ctx context.Context, chatID int64) {
	m.sweeper.Sweep(ctx)
	trips := m.reg.DriverTrips(chatID)
	if len(trips) == 0 {
		m.send(ctx, chatID, messenger.Message{Text: msgNoDriverTrips})
		return
	}
	for _, t := range trips {
		if id, ok := m.out.Send(ctx, chatID, driverView(t, m.passengerLines(ctx, t))); ok {
			m.reg.BindMessage(ctx, t.ID, id)
		}
	}
}

// refreshDriverView rewrites the driver's bound trip message, if any.
func (m *Machine) refreshDriverView(ctx context.Context, tripID int) {
	trip, messageID, ok := m.reg.MessageBinding(tripID)
	if !ok {
		return
	}
	m.out.Edit(ctx, trip.DriverID, messageID, driverView(trip, m.passengerLines(ctx, trip)))
}

func (m *Machine) passengerLines(ctx context.Context, t models.Trip) []passengerLine {
	lines := make([]passengerLine, 0, len(t.Passengers))
	for _, pid := range t.Passengers {
		p, ok := m.reg.Profile(pid)
		if !ok {
			continue
		}
		lines = append(lines, passengerLine{Name: p.Name, Handle: m.out.Handle(ctx, pid), Phone: p.Phone})
	}
	return lines
}

func (m *Machine) transition(ctx context.Context, chatID int64, next State, msg messenger.Message) {
	m.states.set(chatID, next)
	m.send(ctx, chatID, msg)
}

func (m *Machine) send(ctx context.Context, chatID int64, msg messenger.Message) {
	m.out.Send(ctx, chatID, msg)
}

func (m *Machine) publish(ctx context.Context, kind events.Kind, trip models.Trip, passengerID int64) {
	m.out.Publish(ctx, events.New(kind, trip, passengerID, m.reg.Now()))
}

func parseRole(text string) models.Role {
	switch models.Role(text) {
	case models.RoleDriver:
		return models.RoleDriver
	case models.RolePassenger:
		return models.RolePassenger
	default:
		return models.RoleUnset
	}
}

// parseSeats reads a seat count. Anything that is not a non-negative integer
// counts as zero.
func parseSeats(text string) int {
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
