package note

import (
	"encoding/binary"
	"fmt"
)

// RecordSize is the stored size of one note.
const RecordSize = 2*MessageSize + 2 + 2

// ByteOrder is used for every 16-bit word in the log, header included.
var ByteOrder = binary.LittleEndian

// MarshalBinary builds the stored representation:
//
//	[start(3)][stop(3)][duration(2)][time_elapsed(2)]
func (n Note) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, RecordSize)
	start, stop := n.Start.Bytes(), n.Stop.Bytes()
	out = append(out, start[:]...)
	out = append(out, stop[:]...)
	out = ByteOrder.AppendUint16(out, n.Duration)
	out = ByteOrder.AppendUint16(out, n.TimeElapsed)
	return out, nil
}

// UnmarshalBinary decodes a stored record. It does not validate the messages.
func (n *Note) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return fmt.Errorf("note: record is %d bytes, want %d", len(data), RecordSize)
	}
	n.Start = MessageFrom([MessageSize]byte(data[0:3]))
	n.Stop = MessageFrom([MessageSize]byte(data[3:6]))
	n.Duration = ByteOrder.Uint16(data[6:8])
	n.TimeElapsed = ByteOrder.Uint16(data[8:10])
	return nil
}
