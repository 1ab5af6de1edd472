package tipjar

import (
	"errors"
	"math/big"
	"unicode/utf8"

	"tipjar/core/events"
)

var errNilState = errors.New("tipjar engine: state not configured")

type stateReader interface {
	TipjarCreatorGet(account [20]byte) (*CreatorProfile, bool, error)
	TipjarTipGet(id uint64) (*TipRecord, bool, error)
	TipjarTipIndexLen(recipient [20]byte) (uint64, error)
	TipjarTipIndexAt(recipient [20]byte, position uint64) (uint64, bool, error)
	TipjarTipperStatsGet(recipient [20]byte, tipper [20]byte) (*TipperStats, bool, error)
	TipjarGlobalsGet() (*Globals, error)
}

type engineState interface {
	stateReader
	TipjarCreatorPut(account [20]byte, profile *CreatorProfile) error
	TipjarTipPut(tip *TipRecord) error
	TipjarTipIndexAppend(recipient [20]byte, id uint64) error
	TipjarTipperStatsPut(stats *TipperStats) error
	TipjarGlobalsPut(globals *Globals) error
}

// Transferer moves value between accounts. A failed transfer must leave every
// balance unchanged.
type Transferer interface {
	Transfer(amount *big.Int, from [20]byte, to [20]byte) error
}

// Engine applies the tip jar state transitions. It performs every validation
// before its first write, but rollback of a failed operation is the job of the
// state backend: callers hand it a transactional view and discard that view
// when an operation returns an error.
type Engine struct {
	state    engineState
	transfer Transferer
	emitter  events.Emitter
}

// NewEngine constructs an engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTransferer configures the value transfer used by SendTip.
func (e *Engine) SetTransferer(t Transferer) { e.transfer = t }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Query returns a read-only view over the engine's state.
func (e *Engine) Query() *Query {
	if e == nil || e.state == nil {
		return NewQuery(nil)
	}
	return NewQuery(e.state)
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func validDisplayName(name string) bool {
	if !utf8.ValidString(name) {
		return false
	}
	n := utf8.RuneCountInString(name)
	return n > 0 && n <= MaxDisplayNameLength
}

// Register creates the creator profile for account at the given ledger height.
func (e *Engine) Register(account [20]byte, displayName string, height uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok, err := e.state.TipjarCreatorGet(account); err != nil {
		return err
	} else if ok {
		return ErrAlreadyRegistered
	}
	if !validDisplayName(displayName) {
		return ErrInvalidName
	}
	profile := &CreatorProfile{
		DisplayName:   displayName,
		RegisteredAt:  height,
		TotalReceived: big.NewInt(0),
		TipCount:      0,
	}
	if err := e.state.TipjarCreatorPut(account, profile); err != nil {
		return err
	}
	e.emit(WrapEvent(CreatorRegisteredEvent(account, displayName, height)))
	return nil
}

// UpdateDisplayName replaces the display name of an existing creator. The
// height is only recorded on the emitted event.
func (e *Engine) UpdateDisplayName(account [20]byte, newName string, height uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	profile, ok, err := e.state.TipjarCreatorGet(account)
	if err != nil {
		return err
	}
	if !ok || profile == nil {
		return ErrNotRegistered
	}
	if !validDisplayName(newName) {
		return ErrInvalidName
	}
	previous := profile.DisplayName
	profile.DisplayName = newName
	if err := e.state.TipjarCreatorPut(account, profile); err != nil {
		return err
	}
	e.emit(WrapEvent(CreatorRenamedEvent(account, previous, newName, height)))
	return nil
}

// SendTip moves amount from tipper to recipient, appends the tip to the log and
// updates every aggregate. It returns the id assigned to the new tip.
func (e *Engine) SendTip(tipper [20]byte, recipient [20]byte, amount *big.Int, message *string, height uint64) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	profile, ok, err := e.state.TipjarCreatorGet(recipient)
	if err != nil {
		return 0, err
	}
	if !ok || profile == nil {
		return 0, ErrNotRegistered
	}
	if tipper == recipient {
		return 0, ErrUnauthorized
	}
	if amount == nil || amount.Cmp(MinTip()) < 0 || amount.Cmp(MaxTip()) > 0 {
		return 0, ErrInvalidAmount
	}
	if message != nil && (!utf8.ValidString(*message) || utf8.RuneCountInString(*message) > MaxMessageLength) {
		return 0, ErrMessageTooLong
	}
	if e.transfer == nil {
		return 0, transferFailed(errors.New("no transfer backend configured"))
	}
	if err := e.transfer.Transfer(new(big.Int).Set(amount), tipper, recipient); err != nil {
		return 0, transferFailed(err)
	}

	globals, err := e.state.TipjarGlobalsGet()
	if err != nil {
		return 0, err
	}
	if globals == nil {
		globals = &Globals{TotalVolume: big.NewInt(0)}
	}
	globals.TipCounter++
	id := globals.TipCounter

	tip := &TipRecord{
		ID:              id,
		Tipper:          tipper,
		Recipient:       recipient,
		Amount:          new(big.Int).Set(amount),
		Timestamp:       height,
		CreatedAtHeight: height,
	}
	if message != nil {
		msg := *message
		tip.Message = &msg
	}
	if err := e.state.TipjarTipPut(tip); err != nil {
		return 0, err
	}

	profile.TotalReceived = new(big.Int).Add(newBigInt(profile.TotalReceived), amount)
	profile.TipCount++
	if err := e.state.TipjarCreatorPut(recipient, profile); err != nil {
		return 0, err
	}

	globals.TotalTips++
	globals.TotalVolume = new(big.Int).Add(newBigInt(globals.TotalVolume), amount)
	if err := e.state.TipjarGlobalsPut(globals); err != nil {
		return 0, err
	}

	if err := e.state.TipjarTipIndexAppend(recipient, id); err != nil {
		return 0, err
	}

	stats, ok, err := e.state.TipjarTipperStatsGet(recipient, tipper)
	if err != nil {
		return 0, err
	}
	if !ok || stats == nil {
		stats = &TipperStats{Recipient: recipient, Tipper: tipper, TotalTipped: big.NewInt(0)}
	}
	stats.TotalTipped = new(big.Int).Add(newBigInt(stats.TotalTipped), amount)
	stats.TipCount++
	stats.LastTipAt = height
	if err := e.state.TipjarTipperStatsPut(stats); err != nil {
		return 0, err
	}

	e.emit(WrapEvent(TipSentEvent(tip)))
	return id, nil
}
