// Package channel resolves user channel requests into the ordered scan list
// used by every downstream stage. The order returned by Resolve is the order
// samples appear in the device's interleaved stream buffer.
package channel

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itohio/cryotherm/pkg/fault"
)

// Prefix is prepended to channel numbers to form device channel names.
const Prefix = "AIN"

// All requests every thermometer lane of the device.
const All = "all"

// Polarity of a channel within a differential pair.
type Polarity int

const (
	// Positive is a positive terminal or a single-ended input.
	Positive Polarity = iota
	// Negative is the negative terminal of a differential pair.
	Negative
)

func (p Polarity) String() string {
	if p == Negative {
		return "negative"
	}
	return "positive"
}

// NoPair marks a channel without a differential partner.
const NoPair = -1

// Channel is one analog input lane in the scan list.
type Channel struct {
	Name     string // Device channel name, e.g. "AIN48"
	Number   int    // Terminal number, e.g. 48
	Polarity Polarity
	Pair     int // Partner terminal number or NoPair
	Position int // Index in the scan list
}

func (c Channel) String() string {
	return c.Name
}

// Lane is a contiguous block of positive terminals whose negative partners
// start at Negative.
type Lane struct {
	Positive int
	Negative int
	Width    int
}

// Lanes are the extended-channel blocks wired to thermometers: AIN48-55 with
// AIN56-63, AIN80-87 with AIN88-95 and AIN96-103 with AIN104-111.
var Lanes = []Lane{
	{Positive: 48, Negative: 56, Width: 8},
	{Positive: 80, Negative: 88, Width: 8},
	{Positive: 96, Negative: 104, Width: 8},
}

// MaxChannelNumber is the highest analog input terminal the device exposes.
const MaxChannelNumber = 149

// Resolve turns a request into an ordered, duplicate-free channel list.
//
// "all" yields every lane as interleaved positive/negative pairs. Otherwise
// the request is a comma separated list of terminal numbers (an optional
// "AIN" prefix is accepted), taken as positive-only channels in declaration
// order.
func Resolve(request string) ([]Channel, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, fault.Param(fault.ErrInvalidChannelSpec, "channels", nil, "empty request")
	}
	if strings.EqualFold(request, All) {
		return resolveAll(), nil
	}
	return resolveList(request)
}

func resolveAll() []Channel {
	var channels []Channel
	for _, lane := range Lanes {
		for i := range lane.Width {
			pos := lane.Positive + i
			neg := lane.Negative + i
			channels = append(channels,
				Channel{Name: Name(pos), Number: pos, Polarity: Positive, Pair: neg, Position: len(channels)},
			)
			channels = append(channels,
				Channel{Name: Name(neg), Number: neg, Polarity: Negative, Pair: pos, Position: len(channels)},
			)
		}
	}
	return channels
}

func resolveList(request string) ([]Channel, error) {
	tokens := strings.Split(request, ",")
	channels := make([]Channel, 0, len(tokens))
	seen := make(map[int]bool, len(tokens))

	for i, token := range tokens {
		n, err := parseToken(token)
		if err != nil {
			return nil, fault.Param(fault.ErrInvalidChannelSpec, fmt.Sprintf("channels[%d]", i), strings.TrimSpace(token), err.Error())
		}
		if seen[n] {
			return nil, fault.Param(fault.ErrInvalidChannelSpec, fmt.Sprintf("channels[%d]", i), strings.TrimSpace(token), "duplicate channel")
		}
		seen[n] = true
		channels = append(channels, Channel{
			Name:     Name(n),
			Number:   n,
			Polarity: Positive,
			Pair:     NoPair,
			Position: len(channels),
		})
	}

	return channels, nil
}

func parseToken(token string) (int, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, fmt.Errorf("empty entry")
	}
	if len(token) > len(Prefix) && strings.EqualFold(token[:len(Prefix)], Prefix) {
		token = token[len(Prefix):]
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, fmt.Errorf("not a channel number")
	}
	if n < 0 || n > MaxChannelNumber {
		return 0, fmt.Errorf("out of range 0-%d", MaxChannelNumber)
	}
	return n, nil
}

// Name returns the device name of terminal n.
func Name(n int) string {
	return Prefix + strconv.Itoa(n)
}

// Names returns the device names of channels in scan order.
func Names(channels []Channel) []string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name
	}
	return names
}
