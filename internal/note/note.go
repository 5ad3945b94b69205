// Package note holds the message and note value types exchanged over the serial
// line and stored in the note log.
package note

import (
	"errors"
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// MessageSize is the number of bytes in one protocol message.
const MessageSize = 3

// ErrProtocol is returned when a message violates the start/data byte classes.
var ErrProtocol = errors.New("protocol error")

// Class is the role of a byte inside a message, decided by its most significant bit.
type Class int

const (
	Data Class = iota
	Start
)

func (c Class) String() string {
	if c == Start {
		return "start"
	}
	return "data"
}

// Classify reports whether b opens a message (MSB set) or carries data.
func Classify(b byte) Class {
	if b&0x80 != 0 {
		return Start
	}
	return Data
}

// Message is one 3-byte protocol unit: a status byte followed by two data bytes.
type Message struct {
	Status byte
	Data1  byte
	Data2  byte
}

// MessageFrom builds a Message from its wire bytes.
func MessageFrom(b [MessageSize]byte) Message {
	return Message{Status: b[0], Data1: b[1], Data2: b[2]}
}

// Bytes returns the wire form of the message.
func (m Message) Bytes() [MessageSize]byte {
	return [MessageSize]byte{m.Status, m.Data1, m.Data2}
}

// Validate checks the byte classes: status must be a start byte and both data
// bytes must be data bytes.
func (m Message) Validate() error {
	if Classify(m.Status) != Start {
		return fmt.Errorf("%w: byte 1 is 0x%02X, want a start byte", ErrProtocol, m.Status)
	}
	if Classify(m.Data1) != Data {
		return fmt.Errorf("%w: byte 2 is 0x%02X, want a data byte", ErrProtocol, m.Data1)
	}
	if Classify(m.Data2) != Data {
		return fmt.Errorf("%w: byte 3 is 0x%02X, want a data byte", ErrProtocol, m.Data2)
	}
	return nil
}

// MIDI returns the message as a gomidi message for decoding and export.
func (m Message) MIDI() midi.Message {
	return midi.Message([]byte{m.Status, m.Data1, m.Data2})
}

func (m Message) String() string {
	return m.MIDI().String()
}

var pitchClasses = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName spells a key number in scientific pitch notation (60 is C4).
func PitchName(key byte) string {
	return fmt.Sprintf("%s%d", pitchClasses[key%12], int(key)/12-1)
}

// Note is a start/stop message pair with the time the note was held and the
// gap since the previous note ended. Both times are in milliseconds.
type Note struct {
	Start       Message
	Stop        Message
	Duration    uint16
	TimeElapsed uint16
}

// Validate checks both contained messages.
func (n Note) Validate() error {
	if err := n.Start.Validate(); err != nil {
		return fmt.Errorf("start message: %w", err)
	}
	if err := n.Stop.Validate(); err != nil {
		return fmt.Errorf("stop message: %w", err)
	}
	return nil
}

// Key returns the note number carried by the start message.
func (n Note) Key() uint8 {
	var ch, key, vel uint8
	if n.Start.MIDI().GetNoteStart(&ch, &key, &vel) {
		return key
	}
	return n.Start.Data1
}

func (n Note) String() string {
	return fmt.Sprintf("[%s] -> [%s] dur=%dms gap=%dms", n.Start, n.Stop, n.Duration, n.TimeElapsed)
}
