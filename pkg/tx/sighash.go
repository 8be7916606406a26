package tx

import "encoding/binary"

// RawDataToSign returns the canonical byte representation signed by input i.
// It extends SigningBytes with the input index so that a signature commits
// to the position it occupies; signatures on other inputs are never part of
// this message, which is what lets each input be signed independently.
func (tx *Transaction) RawDataToSign(i int) []byte {
	buf := tx.SigningBytes()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(i))
	return buf
}
