// Package domain defines the Game and Play types shared by every component
// of arcadewatchd: the database adapter, the orchestrator, and the intake
// submitter all operate on plain values of these types.
package domain

// Language is a Game's spoken/text language, read from the games table.
type Language struct {
	// Known holds one of "English", "Japanese", "Cantonese" when the
	// language is not a free-form string; Other holds the raw value
	// otherwise.
	Known Known
	Other string
}

// Known enumerates the languages with a canonical remote-side label.
type Known int

const (
	English Known = iota
	Japanese
	Cantonese
	OtherLanguage
)

// RemoteLabel maps a Language to the label the intake submitter sends
// remotely: English and unrecognized/Other languages both submit as
// "English", with Other additionally warned about by the caller.
func (l Language) RemoteLabel() string {
	switch l.Known {
	case Japanese:
		return "日本語"
	case Cantonese:
		return "廣東話"
	default:
		return "English"
	}
}

// IsOther reports whether this Language fell back to the "Other" bucket,
// which the intake submitter logs a warning for before sending RemoteLabel.
func (l Language) IsOther() bool {
	return l.Known == OtherLanguage
}

// Game is read-only reference data keyed by canonical filesystem path.
type Game struct {
	ID        int64
	Path      string
	Directory string
	Language  Language
	Label     string
}

// Play is one recorded session of a single game.
type Play struct {
	ID             int64
	Game           Game
	StartTime      int64
	EndTime        *int64
	IntakeID       *string
	SubmittedStart *int64
	SubmittedEnd   *int64
	Skipped        bool
}

// Live reports whether the play has not yet ended.
func (p Play) Live() bool { return p.EndTime == nil }

// IntakeConfirmed reports whether the remote has acknowledged this play's
// start; submitted_start is set if and only if intake_id is set.
func (p Play) IntakeConfirmed() bool { return p.IntakeID != nil && p.SubmittedStart != nil }

// Terminal reports whether no further intake work remains for this play:
// a Play with submitted_end set needs nothing further sent remotely.
func (p Play) Terminal() bool { return p.SubmittedEnd != nil }
