// Package flog reads the optional per-cell annotation stream written by bots
// and answers lookups keyed by turn and cell.
package flog

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/tidwall/gjson"
)

var (
	// ErrParse reports an annotation stream that is not JSON even after repair.
	ErrParse = errors.New("flog: couldn't parse annotation stream")
	// ErrNoReplay reports an overlay requested before any replay was opened.
	ErrNoReplay = errors.New("flog: open a game first")
)

// Separator joins messages that share a key, in arrival order.
const Separator = " "

// Key addresses one cell at one turn as written by the bot.
type Key struct {
	Turn int
	X    int
	Y    int
}

// Overlay is an immutable merged view of an annotation stream.
type Overlay struct {
	messages map[Key]string
	colours  map[Key]string
	// Entries counts the records read; Skipped counts records without a full key.
	Entries  int
	Skipped  int
	Repaired bool
}

// ReadFile parses the annotation stream stored at path.
func ReadFile(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return Parse(data)
}

// Parse reads a JSON array of {t, x, y, msg?, colour?|color?} records. A
// stream cut off mid-write is repaired once by closing the array.
func Parse(data []byte) (*Overlay, error) {
	repaired := false
	if !gjson.ValidBytes(data) {
		data = repair(data)
		repaired = true
		if !gjson.ValidBytes(data) {
			return nil, ErrParse
		}
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: top level is not an array", ErrParse)
	}

	o := &Overlay{messages: make(map[Key]string), colours: make(map[Key]string), Repaired: repaired}
	root.ForEach(func(_, entry gjson.Result) bool {
		o.Entries++
		t, x, y := entry.Get("t"), entry.Get("x"), entry.Get("y")
		if !integral(t) || !integral(x) || !integral(y) {
			o.Skipped++
			return true
		}
		key := Key{Turn: int(t.Int()), X: int(x.Int()), Y: int(y.Int())}

		//1.- Messages at one key concatenate in arrival order.
		if msg := entry.Get("msg"); msg.Exists() && msg.Type != gjson.Null {
			if old, ok := o.messages[key]; ok {
				o.messages[key] = old + Separator + msg.String()
			} else {
				o.messages[key] = msg.String()
			}
		}

		//2.- Colours overwrite; the British spelling wins when both are set.
		colour := entry.Get("colour")
		if !colour.Exists() || colour.String() == "" {
			colour = entry.Get("color")
		}
		if colour.Exists() && colour.Type != gjson.Null {
			o.colours[key] = colour.String()
		}
		return true
	})
	return o, nil
}

// integral reports whether r is a whole JSON number; fractional coordinates
// never name a cell.
func integral(r gjson.Result) bool {
	return r.Type == gjson.Number && r.Num == math.Trunc(r.Num)
}

// repair closes an array whose writer stopped before the final bracket.
func repair(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	out := make([]byte, 0, len(trimmed)+1)
	if n := len(trimmed); n > 0 && trimmed[n-1] == ',' {
		out = append(out, trimmed[:n-1]...)
	} else {
		out = append(out, trimmed...)
	}
	return append(out, ']')
}

// Message returns the merged message at key.
func (o *Overlay) Message(turn, x, y int) (string, bool) {
	if o == nil {
		return "", false
	}
	msg, ok := o.messages[Key{Turn: turn, X: x, Y: y}]
	return msg, ok
}

// Colour returns the last colour written at key.
func (o *Overlay) Colour(turn, x, y int) (string, bool) {
	if o == nil {
		return "", false
	}
	colour, ok := o.colours[Key{Turn: turn, X: x, Y: y}]
	return colour, ok
}

// Len is the number of keys carrying a message or a colour.
func (o *Overlay) Len() int {
	if o == nil {
		return 0
	}
	keys := len(o.messages)
	for key := range o.colours {
		if _, ok := o.messages[key]; !ok {
			keys++
		}
	}
	return keys
}
