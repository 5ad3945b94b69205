// Package smfexport writes a recorded take as a Standard MIDI File.
package smfexport

import (
	"io"

	"github.com/chase3718/lou-looper/internal/note"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	// Resolution is the number of ticks per quarter note.
	Resolution = 960
	// Tempo is chosen so one quarter note lasts 500ms.
	Tempo = 120.0
)

func ticks(ms uint16) uint32 {
	return uint32(ms) * Resolution / 500
}

// Build lays the notes out on one track: each start message after its gap,
// each stop message after its duration.
func Build(notes []note.Note) *smf.SMF {
	var tr smf.Track
	tr.Add(0, smf.MetaTempo(Tempo))
	for _, n := range notes {
		tr.Add(ticks(n.TimeElapsed), n.Start.MIDI())
		tr.Add(ticks(n.Duration), n.Stop.MIDI())
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(Resolution)
	s.Add(tr)
	return s
}

// Write encodes notes as an SMF to w.
func Write(w io.Writer, notes []note.Note) error {
	_, err := Build(notes).WriteTo(w)
	return err
}

// WriteFile encodes notes as an SMF at path.
func WriteFile(path string, notes []note.Note) error {
	return Build(notes).WriteFile(path)
}
